// Package segments downloads the segments of a media playlist with a bounded pool of
// workers that pull indices from a shared cursor.
package segments

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/hls"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
)

// DefaultConcurrency is the number of workers used when the caller passes a
// non-positive concurrency.
const DefaultConcurrency = 5

// Getter fetches a URL with the given request headers and returns the body.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Result is the outcome of one segment. A failed segment keeps its slot with OK false.
type Result struct {
	Index  int
	Data   []byte
	IsInit bool
	OK     bool
}

// ProgressFunc is called after each segment resolves, success or failure.
type ProgressFunc func(completed, total int)

// Options configures a Fetcher.
type Options struct {
	// RateLimit caps segment requests per second across all workers. Zero disables it.
	RateLimit float64
	// Burst is the limiter burst size. Defaults to the worker count of the batch.
	Burst int
	// Logger receives per-segment events. Defaults to the global logger.
	Logger logger.Logger
}

// Fetcher downloads segment batches. It is safe for concurrent use by several jobs.
type Fetcher struct {
	getter  Getter
	limiter *rate.Limiter
	log     logger.Logger
}

// NewFetcher creates a Fetcher on top of getter.
func NewFetcher(getter Getter, opts Options) *Fetcher {
	f := &Fetcher{
		getter: getter,
		log:    logger.OrDefault(opts.Logger),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = DefaultConcurrency
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return f
}

// FetchAll downloads every segment and returns one Result per input, in input order.
//
// At most min(concurrency, len(segs)) requests are in flight. A segment that fails is
// recorded as a gap and the batch goes on. When ctx is cancelled the batch stops
// claiming new segments and FetchAll returns a CancelledError. When the rate limiter
// cannot grant a token before the deadline, FetchAll returns a NetworkError.
//
// onProgress calls are serialised and completed never decreases.
func (f *Fetcher) FetchAll(ctx context.Context, segs []hls.Segment, concurrency int, headers map[string]string, onProgress ProgressFunc) ([]Result, error) {
	total := len(segs)
	results := make([]Result, total)
	for i, seg := range segs {
		results[i] = Result{Index: i, IsInit: seg.IsInit}
	}
	if total == 0 {
		return results, nil
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	workers := min(concurrency, total)

	var (
		cursor    atomic.Int64
		mu        sync.Mutex
		completed int
		failed    int
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(cursor.Add(1) - 1)
				if i >= total {
					return nil
				}
				if f.limiter != nil {
					if err := f.limiter.Wait(gctx); err != nil {
						return err
					}
				}

				data, err := f.getter.Get(gctx, segs[i].URL, headers)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					f.log.Warn("Segment failed", "segments", map[string]interface{}{
						"index": i,
						"url":   logger.Truncate(segs[i].URL, 100),
						"error": err.Error(),
					})
					metrics.SegmentsTotal.WithLabelValues("failed").Inc()
				} else {
					results[i].Data = data
					results[i].OK = true
					metrics.SegmentsTotal.WithLabelValues("ok").Inc()
					metrics.BytesDownloadedTotal.Add(float64(len(data)))
				}

				mu.Lock()
				completed++
				if err != nil {
					failed++
				}
				if onProgress != nil {
					onProgress(completed, total)
				}
				mu.Unlock()
			}
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Wrap(ctxErr, errors.CancelledError, errors.GetErrorMessage(errors.ErrCodeCancelled), errors.ErrCodeCancelled)
	}
	if err != nil {
		// The limiter refuses a wait that would run past the deadline.
		return nil, errors.Wrap(err, errors.NetworkError, errors.GetErrorMessage(errors.ErrCodeSegmentFetch), errors.ErrCodeSegmentFetch)
	}

	f.log.Debug("Segment batch finished", "segments", map[string]interface{}{
		"total":   total,
		"failed":  failed,
		"workers": workers,
	})
	return results, nil
}

// Succeeded counts the results with OK set.
func Succeeded(results []Result) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}
