package headers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBasePrefix    = "hlsgrab:headers:"
	redisRefererPrefix = "hlsgrab:referer:"
)

// RedisStore shares captures between processes. Expiry is left to Redis TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. ttl <= 0 selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Observe records req when its URL looks like media.
func (r *RedisStore) Observe(ctx context.Context, req Request) error {
	if !ShouldCapture(req.URL) {
		return nil
	}
	key, err := BaseKey(req.URL)
	if err != nil {
		return nil
	}

	data, err := json.Marshal(Filter(req.Headers))
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisBasePrefix+key, data, r.ttl)
	if ref := referer(req.Headers); ref != "" && req.Page != "" {
		pipe.Set(ctx, redisRefererPrefix+req.Page, ref, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// HeadersFor mirrors MemoryStore.HeadersFor.
func (r *RedisStore) HeadersFor(ctx context.Context, rawURL, page string) (map[string]string, error) {
	if key, err := BaseKey(rawURL); err == nil {
		data, err := r.client.Get(ctx, redisBasePrefix+key).Bytes()
		switch {
		case err == nil:
			var h map[string]string
			if err := json.Unmarshal(data, &h); err != nil {
				return nil, err
			}
			if len(h) > 0 {
				return h, nil
			}
		case err != redis.Nil:
			return nil, err
		}
	}

	if page != "" {
		ref, err := r.client.Get(ctx, redisRefererPrefix+page).Result()
		switch {
		case err == nil:
			return map[string]string{"Referer": ref}, nil
		case err != redis.Nil:
			return nil, err
		}
	}
	return map[string]string{}, nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
