// Package transcoder turns an assembled stream into the file that is delivered:
// fMP4 streams pass through, MPEG-TS streams are remuxed to MP4 when the codec
// engine is available and kept as TS otherwise.
package transcoder

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
)

// Engine is the external codec engine.
type Engine interface {
	// Load prepares the engine. It is called once until it succeeds.
	Load(ctx context.Context) error
	// Remux converts an MPEG-TS buffer into MP4 without re-encoding.
	Remux(ctx context.Context, jobID string, ts []byte) ([]byte, error)
}

// Result is the finalized stream.
type Result struct {
	Data []byte
	// IsMP4 is false when the data is still MPEG-TS.
	IsMP4 bool
	// Remuxed is true when the engine produced Data.
	Remuxed bool
}

// Finalizer shares one Engine between jobs.
type Finalizer struct {
	engine      Engine
	loadTimeout time.Duration
	logger      logger.Logger

	group  singleflight.Group
	loaded atomic.Bool
}

// NewFinalizer creates a Finalizer. A nil engine makes every TS stream fall back.
func NewFinalizer(engine Engine, options Options) *Finalizer {
	options = options.withDefaults()
	return &Finalizer{
		engine:      engine,
		loadTimeout: options.LoadTimeout,
		logger:      options.Logger,
	}
}

// Finalize never fails: a remux problem yields the original bytes with IsMP4 false.
func (f *Finalizer) Finalize(ctx context.Context, jobID string, data []byte, hasInit bool) Result {
	if hasInit {
		metrics.RemuxTotal.WithLabelValues("passthrough").Inc()
		return Result{Data: data, IsMP4: true}
	}

	out, err := f.remux(ctx, jobID, data)
	if err != nil {
		f.logger.Warn("Remux failed, keeping MPEG-TS", "transcoder", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
		metrics.RemuxTotal.WithLabelValues("fallback").Inc()
		return Result{Data: data}
	}

	metrics.RemuxTotal.WithLabelValues("remuxed").Inc()
	return Result{Data: out, IsMP4: true, Remuxed: true}
}

func (f *Finalizer) remux(ctx context.Context, jobID string, data []byte) ([]byte, error) {
	if f.engine == nil {
		return nil, errors.FromCode(errors.RemuxError, errors.ErrCodeEngineUnavailable, "no engine configured")
	}
	if err := f.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return f.engine.Remux(ctx, jobID, data)
}

// ensureLoaded loads the engine at most once at a time. Callers arriving during a load
// wait for it instead of starting another. A failed load is retried by the next caller.
func (f *Finalizer) ensureLoaded(ctx context.Context) error {
	if f.loaded.Load() {
		return nil
	}

	ch := f.group.DoChan("load", func() (interface{}, error) {
		if f.loaded.Load() {
			return nil, nil
		}
		// The load outlives the caller that triggered it, others may be waiting.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.loadTimeout)
		defer cancel()

		if err := f.engine.Load(loadCtx); err != nil {
			if errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
				return nil, errors.Wrap(err, errors.RemuxError, errors.GetErrorMessage(errors.ErrCodeEngineLoadTimeout), errors.ErrCodeEngineLoadTimeout)
			}
			return nil, err
		}
		f.loaded.Store(true)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loaded reports whether the engine finished loading.
func (f *Finalizer) Loaded() bool {
	return f.loaded.Load()
}
