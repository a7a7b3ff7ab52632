package headers

import (
	"context"
	"sync"
	"time"

	"github.com/heyjunin/hlsgrab/pkg/logger"
)

type entry struct {
	headers map[string]string
	at      time.Time
}

// MemoryStore keeps captures in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	byBase   map[string]entry
	referers map[string]entry
	ttl      time.Duration
	now      func() time.Time
	log      logger.Logger
}

// NewMemoryStore creates a MemoryStore. ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration, log logger.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		byBase:   make(map[string]entry),
		referers: make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
		log:      logger.OrDefault(log),
	}
}

// Observe records req when its URL looks like media. Other requests are ignored.
func (s *MemoryStore) Observe(_ context.Context, req Request) error {
	if !ShouldCapture(req.URL) {
		return nil
	}
	key, err := BaseKey(req.URL)
	if err != nil {
		// Unparseable URLs are not worth failing the caller for.
		return nil
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byBase[key] = entry{headers: Filter(req.Headers), at: now}
	if ref := referer(req.Headers); ref != "" && req.Page != "" {
		s.referers[req.Page] = entry{headers: map[string]string{"Referer": ref}, at: now}
	}
	return nil
}

// HeadersFor returns the headers captured for url's base, else the page Referer,
// else an empty map. Expired captures are never returned.
func (s *MemoryStore) HeadersFor(_ context.Context, rawURL, page string) (map[string]string, error) {
	cutoff := s.now().Add(-s.ttl)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, err := BaseKey(rawURL); err == nil {
		if e, ok := s.byBase[key]; ok && e.at.After(cutoff) && len(e.headers) > 0 {
			return copyHeaders(e.headers), nil
		}
	}
	if page != "" {
		if e, ok := s.referers[page]; ok && e.at.After(cutoff) {
			return copyHeaders(e.headers), nil
		}
	}
	return map[string]string{}, nil
}

// Prune drops expired captures and returns how many were removed.
func (s *MemoryStore) Prune() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, m := range []map[string]entry{s.byBase, s.referers} {
		for k, e := range m {
			if !e.at.After(cutoff) {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of live entries, referers included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byBase) + len(s.referers)
}

// RunPruner prunes every interval until ctx is done.
func (s *MemoryStore) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				s.log.Debug("Pruned expired headers", "headers", map[string]interface{}{
					"removed": n,
				})
			}
		}
	}
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
