// Package coordinator runs download jobs: it owns the registry of active jobs, drives
// each one through parse, fetch, assemble, finalize and deliver, and publishes every
// state change as a progress event.
package coordinator

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/headers"
	"github.com/heyjunin/hlsgrab/pkg/hls"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/media"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
	"github.com/heyjunin/hlsgrab/pkg/progress"
	"github.com/heyjunin/hlsgrab/pkg/segments"
	"github.com/heyjunin/hlsgrab/pkg/sink"
	"github.com/heyjunin/hlsgrab/pkg/telemetry"
	"github.com/heyjunin/hlsgrab/pkg/transcoder"
)

const (
	// DefaultConcurrency is the number of segments fetched in parallel per job.
	DefaultConcurrency = segments.DefaultConcurrency
	// DefaultGracePeriod is how long a finished job stays visible in the registry.
	DefaultGracePeriod = 2 * time.Second
)

// HTTPClient is the transport used for playlists, segments and direct downloads.
// *downloader.Client implements it.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Download(ctx context.Context, url string, headers map[string]string, onProgress func(received, total int64)) ([]byte, error)
}

// Options configures a Coordinator.
type Options struct {
	// Sink receives finished files. Required.
	Sink sink.Sink
	// Client defaults to a downloader.Client with default options.
	Client HTTPClient
	// Finalizer defaults to one without engine, every TS stream is then kept as TS.
	Finalizer *transcoder.Finalizer
	// Headers is consulted when a job is started without headers.
	Headers headers.Provider
	// Hub receives the events. Defaults to a new hub.
	Hub *progress.Hub
	// Concurrency is the per-job segment parallelism. Defaults to DefaultConcurrency.
	Concurrency int
	// RateLimit caps segment requests per second per coordinator. Zero disables it.
	RateLimit float64
	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
	// Logger defaults to the global logger.
	Logger logger.Logger
}

// Coordinator manages download jobs. It is safe for concurrent use.
type Coordinator struct {
	opts      Options
	client    HTTPClient
	parser    *hls.Parser
	fetcher   *segments.Fetcher
	finalizer *transcoder.Finalizer
	hub       *progress.Hub
	tracer    trace.Tracer
	log       logger.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	closed bool
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Sink == nil {
		return nil, errors.FromCode(errors.ValidationError, errors.ErrCodeMissingSink, "")
	}
	opts.Logger = logger.OrDefault(opts.Logger)
	if opts.Client == nil {
		dopts := downloader.DefaultOptions()
		dopts.Logger = opts.Logger
		opts.Client = downloader.NewClient(dopts)
	}
	if opts.Finalizer == nil {
		opts.Finalizer = transcoder.NewFinalizer(nil, transcoder.Options{Logger: opts.Logger})
	}
	if opts.Hub == nil {
		opts.Hub = progress.NewHub(0)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(telemetry.TracerName)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		opts:      opts,
		client:    opts.Client,
		parser:    hls.NewParser(opts.Client, opts.Logger),
		fetcher:   segments.NewFetcher(opts.Client, segments.Options{RateLimit: opts.RateLimit, Burst: opts.Concurrency, Logger: opts.Logger}),
		finalizer: opts.Finalizer,
		hub:       opts.Hub,
		tracer:    opts.Tracer,
		log:       opts.Logger,
		baseCtx:   ctx,
		stop:      stop,
		jobs:      make(map[string]*jobEntry),
	}, nil
}

// Start begins downloading the HLS playlist at rawURL and returns the job ID.
// headers may be nil, the Headers provider is then asked. An empty filename is derived
// from the URL. Only malformed input is reported here, everything else arrives as the
// job's terminal event.
func (c *Coordinator) Start(rawURL, filename string, hdrs map[string]string) (string, error) {
	return c.start(KindHLS, rawURL, filename, hdrs, "")
}

// StartDirect begins downloading a non-segmented media URL in one request. pageURL, when
// set, is sent as Referer unless headers carry one.
func (c *Coordinator) StartDirect(rawURL, filename string, hdrs map[string]string, pageURL string) (string, error) {
	return c.start(KindDirect, rawURL, filename, hdrs, pageURL)
}

func (c *Coordinator) start(kind Kind, rawURL, filename string, hdrs map[string]string, pageURL string) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}
	if filename == "" {
		mk := media.KindVideo
		if kind == KindHLS {
			mk = media.KindHLS
		}
		filename = media.OutputFilename(rawURL, mk)
	}

	id := newJobID()
	ctx, cancel := context.WithCancel(c.baseCtx)
	entry := &jobEntry{
		job: Job{
			ID:        id,
			URL:       rawURL,
			Filename:  filename,
			Kind:      kind,
			Status:    progress.StatusStarting,
			CreatedAt: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return "", errors.FromCode(errors.ValidationError, errors.ErrCodeClosed, "")
	}
	c.jobs[id] = entry
	c.wg.Add(1)
	c.mu.Unlock()

	metrics.JobsStartedTotal.WithLabelValues(string(kind)).Inc()
	metrics.ActiveJobs.Inc()
	c.log.Info("Download started", "coordinator", map[string]interface{}{
		"job_id":   id,
		"kind":     string(kind),
		"url":      logger.Truncate(rawURL, 100),
		"filename": filename,
	})

	go c.run(ctx, entry, hdrs, pageURL)
	return id, nil
}

// Cancel requests cancellation of a running job. It reports whether the job was
// running. Calling it again, or for a finished or unknown job, changes nothing.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.RLock()
	entry, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Status.Terminal() {
		return false
	}
	entry.cancel()
	c.log.Info("Download cancel requested", "coordinator", map[string]interface{}{
		"job_id": id,
	})
	return true
}

// Status returns a snapshot of job id. ok is false for unknown or expired jobs.
func (c *Coordinator) Status(id string) (Job, bool) {
	c.mu.RLock()
	entry, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	return entry.snapshot(), true
}

// List returns every job still in the registry, oldest first.
func (c *Coordinator) List() []Job {
	c.mu.RLock()
	jobs := make([]Job, 0, len(c.jobs))
	for _, entry := range c.jobs {
		jobs = append(jobs, entry.snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Subscribe returns a channel of events for all jobs and a function to stop receiving.
func (c *Coordinator) Subscribe() (<-chan progress.Event, func()) {
	return c.hub.Subscribe()
}

// Wait blocks until every started job has reached a terminal state.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels running jobs, waits for them and closes the event hub.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()

	c.mu.Lock()
	for id, entry := range c.jobs {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(c.jobs, id)
	}
	c.mu.Unlock()
	c.hub.Close()
}

// emit records a state change of entry and publishes it. Intermediate events are
// published under the entry lock, so none can follow a Cancel. The terminal event may
// block on slow subscribers and is published after the lock is released.
func (c *Coordinator) emit(entry *jobEntry, status progress.Status, pct int, message string) {
	if status.Terminal() {
		if ev, ok := entry.transition(status, pct, message); ok {
			c.hub.Publish(ev)
		}
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if ev, ok := entry.transitionLocked(status, pct, message); ok {
		c.hub.Publish(ev)
	}
}

// run is the body of a job goroutine.
func (c *Coordinator) run(ctx context.Context, entry *jobEntry, hdrs map[string]string, pageURL string) {
	defer c.wg.Done()
	defer entry.cancel()

	job := entry.snapshot()
	started := time.Now()

	ctx, span := c.tracer.Start(ctx, "hlsgrab.download", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("url.full", job.URL),
	))
	defer span.End()

	var err error
	switch job.Kind {
	case KindDirect:
		err = c.runDirect(ctx, entry, hdrs, pageURL)
	default:
		err = c.runHLS(ctx, entry, hdrs)
	}

	c.finish(ctx, entry, err, span)

	final := entry.snapshot()
	metrics.ActiveJobs.Dec()
	metrics.JobsFinishedTotal.WithLabelValues(string(final.Kind), string(final.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(final.Kind)).Observe(time.Since(started).Seconds())

	c.scheduleRemoval(entry)
}

// finish moves the job to its terminal state. Cancellation wins over any error.
func (c *Coordinator) finish(ctx context.Context, entry *jobEntry, err error, span trace.Span) {
	id := entry.snapshot().ID
	switch {
	case err == nil:
		c.emit(entry, progress.StatusComplete, 100, "Complete!")
		span.SetStatus(codes.Ok, "")
		c.log.Info("Download complete", "coordinator", map[string]interface{}{"job_id": id})

	case ctx.Err() != nil || errors.Is(err, errors.ErrCancelled):
		c.emit(entry, progress.StatusCancelled, 0, errors.GetErrorMessage(errors.ErrCodeCancelled))
		span.SetAttributes(attribute.Bool("job.cancelled", true))
		c.log.Info("Download cancelled", "coordinator", map[string]interface{}{"job_id": id})

	default:
		message := userMessage(err)
		if entry.snapshot().Kind == KindDirect {
			message = "Failed: " + rawMessage(err)
		}
		c.emit(entry, progress.StatusError, 0, message)
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
		c.log.Error("Download failed", "coordinator", map[string]interface{}{
			"job_id":     id,
			"error":      err.Error(),
			"error_type": string(errors.TypeOf(err)),
		})
	}
}

// scheduleRemoval drops entry from the registry once the grace period has passed.
func (c *Coordinator) scheduleRemoval(entry *jobEntry) {
	id := entry.snapshot().ID
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	entry.timer = time.AfterFunc(c.opts.GracePeriod, func() {
		c.mu.Lock()
		if c.jobs[id] == entry {
			delete(c.jobs, id)
		}
		c.mu.Unlock()
	})
}

// resolveHeaders returns a private copy of hdrs, asking the provider when hdrs is nil.
func (c *Coordinator) resolveHeaders(ctx context.Context, rawURL string, hdrs map[string]string, page string) map[string]string {
	out := make(map[string]string, len(hdrs))
	if hdrs == nil && c.opts.Headers != nil {
		provided, err := c.opts.Headers.HeadersFor(ctx, rawURL, page)
		if err != nil {
			c.log.Warn("Header provider failed", "coordinator", map[string]interface{}{
				"url":   logger.Truncate(rawURL, 100),
				"error": err.Error(),
			})
		}
		hdrs = provided
	}
	for k, v := range hdrs {
		out[k] = v
	}
	return out
}

// userMessage turns err into the single line shown for a failed job.
func userMessage(err error) string {
	var se *errors.StructuredError
	if !errors.As(err, &se) {
		return err.Error()
	}
	if se.Type == errors.NetworkError && se.Details != "" {
		return strings.TrimSuffix(se.Message, ".") + ": " + se.Details
	}
	return se.Message
}

// rawMessage prefers the underlying cause over the category message.
func rawMessage(err error) string {
	var se *errors.StructuredError
	if errors.As(err, &se) && se.Details != "" {
		return se.Details
	}
	return userMessage(err)
}

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return errors.FromCode(errors.ValidationError, errors.ErrCodeInvalidURL, "empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrCodeInvalidURL), errors.ErrCodeInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.FromCode(errors.ValidationError, errors.ErrCodeUnsupportedURL, rawURL)
	}
	if u.Host == "" {
		return errors.FromCode(errors.ValidationError, errors.ErrCodeInvalidURL, rawURL)
	}
	return nil
}

func newJobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
