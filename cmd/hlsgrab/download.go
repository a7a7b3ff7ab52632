package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"golang.org/x/term"

	"github.com/heyjunin/hlsgrab/pkg/coordinator"
	"github.com/heyjunin/hlsgrab/pkg/downloader"
	"github.com/heyjunin/hlsgrab/pkg/headers"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
	"github.com/heyjunin/hlsgrab/pkg/progress"
	"github.com/heyjunin/hlsgrab/pkg/sink"
	"github.com/heyjunin/hlsgrab/pkg/telemetry"
	"github.com/heyjunin/hlsgrab/pkg/transcoder"
)

type downloadOptions struct {
	// Output
	output    string
	filename  string
	prefix    string
	overwrite bool

	// Request
	headers      []string
	direct       bool
	page         string
	requestsFile string
	redisURL     string
	concurrency  int
	rateLimit    float64
	retries      int
	timeout      time.Duration

	// Remux
	ffmpegBinary      string
	ffmpegExtraParams []string
	tempDir           string

	// Reporting
	progressFile   string
	progressFormat string
	metricsFile    string
	quiet          bool
}

func newDownloadCmd() *cobra.Command {
	opts := &downloadOptions{}
	cmd := &cobra.Command{
		Use:   "download [flags] URL...",
		Short: "Download one or more HLS playlists or media URLs",
		Example: `  hlsgrab download -o ./videos https://cdn.example.com/show/master.m3u8
  hlsgrab download -o s3://my-bucket?region=eu-west-1 --prefix videos/ -H "Referer: https://example.com/" URL
  hlsgrab download --direct --page https://example.com/watch https://cdn.example.com/clip.mp4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", ".", "Output directory or bucket URL (file://, s3://, gs://, mem://)")
	f.StringVarP(&opts.filename, "filename", "f", "", "Output filename (single URL only, derived from the URL by default)")
	f.StringVar(&opts.prefix, "prefix", "", "Key prefix inside the output bucket")
	f.BoolVar(&opts.overwrite, "overwrite", false, "Replace existing files instead of picking a new name")

	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Request header \"Name: value\" (repeatable)")
	f.BoolVar(&opts.direct, "direct", false, "Treat URLs as single media files instead of playlists")
	f.StringVar(&opts.page, "page", "", "Page URL the media belongs to, used as Referer fallback")
	f.StringVar(&opts.requestsFile, "requests", "", "JSON lines file of captured requests ({\"url\",\"page\",\"headers\"}) to replay headers from")
	f.StringVar(&opts.redisURL, "redis", os.Getenv("HLSGRAB_REDIS_URL"), "Redis URL of a shared header capture store")
	f.IntVarP(&opts.concurrency, "concurrency", "c", coordinator.DefaultConcurrency, "Segments fetched in parallel per download")
	f.Float64Var(&opts.rateLimit, "rate-limit", 0, "Maximum segment requests per second (0 for unlimited)")
	f.IntVar(&opts.retries, "retries", 0, "Retries for transport errors and 5xx responses")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Timeout of a single request")

	f.StringVar(&opts.ffmpegBinary, "ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	f.StringArrayVar(&opts.ffmpegExtraParams, "ffmpeg-param", []string{}, "Extra parameters to pass to ffmpeg")
	f.StringVar(&opts.tempDir, "temp-dir", "", "Directory for remux scratch files")

	f.StringVar(&opts.progressFile, "progress-file", "", "File the current progress is written to")
	f.StringVar(&opts.progressFormat, "progress-format", "text", "Progress file format: text or json")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not draw progress bars")

	return cmd
}

func runDownload(parent context.Context, opts *downloadOptions, urls []string) error {
	if parent == nil {
		parent = context.Background()
	}
	if opts.filename != "" && len(urls) > 1 {
		return withCode(ExitInvalidArgs, fmt.Errorf("--filename needs exactly one URL"))
	}
	hdrs, err := parseHeaders(opts.headers)
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	shutdown, err := telemetry.Init(ctx, "hlsgrab")
	if err != nil {
		logger.Warn("Tracing setup failed", "main", map[string]interface{}{"error": err.Error()})
	} else {
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdown(sctx)
		}()
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	if opts.metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
				logger.Warn("Failed to write metrics file", "main", map[string]interface{}{
					"path":  opts.metricsFile,
					"error": err.Error(),
				})
			}
		}()
	}

	bucketURL, err := bucketURLFor(opts.output)
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	out, err := sink.OpenBlobSink(ctx, bucketURL, sink.BlobOptions{Prefix: opts.prefix, Overwrite: opts.overwrite})
	if err != nil {
		return withCode(ExitStorageError, err)
	}
	defer out.Close()

	provider, closeProvider, err := headerProvider(ctx, opts)
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	defer closeProvider()

	tOpts := transcoder.Options{
		FFmpegBinary:      opts.ffmpegBinary,
		FFmpegExtraParams: opts.ffmpegExtraParams,
		TempDir:           opts.tempDir,
	}
	if err := transcoder.ValidateOptions(tOpts); err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	dOpts := downloader.DefaultOptions()
	dOpts.Timeout = opts.timeout
	dOpts.RetryAttempts = opts.retries

	coord, err := coordinator.New(coordinator.Options{
		Sink:        out,
		Client:      downloader.NewClient(dOpts),
		Finalizer:   transcoder.NewFinalizer(transcoder.NewFFmpegEngine(tOpts), tOpts),
		Headers:     provider,
		Concurrency: opts.concurrency,
		RateLimit:   opts.rateLimit,
	})
	if err != nil {
		return withCode(ExitGeneralError, err)
	}
	defer coord.Close()

	events, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	single := len(urls) == 1
	// Bars are only drawn on a terminal, redirected output keeps the logs readable.
	quiet := opts.quiet || !single || !term.IsTerminal(int(os.Stderr.Fd()))
	renderers := make(map[string]*progress.BarRenderer, len(urls))
	for _, u := range urls {
		var id string
		if opts.direct {
			id, err = coord.StartDirect(u, opts.filename, hdrs, opts.page)
		} else {
			id, err = coord.Start(u, opts.filename, hdrs)
		}
		if err != nil {
			logger.Error("Cannot start download", "main", map[string]interface{}{
				"url":   u,
				"error": err.Error(),
			})
			continue
		}
		job, _ := coord.Status(id)
		rOpts := []progress.RendererOption{
			progress.WithDescription(job.Filename),
			progress.WithQuiet(quiet),
			progress.WithThrottle(500 * time.Millisecond),
		}
		if single && opts.progressFile != "" {
			rOpts = append(rOpts, progress.WithProgressFile(opts.progressFile), progress.WithProgressFileFormat(opts.progressFormat))
		}
		renderers[id] = progress.NewRenderer(rOpts...)
	}
	if len(renderers) == 0 {
		return withCode(ExitInvalidArgs, fmt.Errorf("no download could be started"))
	}

	results := follow(events, signalChan, coord, renderers)

	failed, cancelled := 0, 0
	for id, ev := range results {
		job, _ := coord.Status(id)
		switch ev.Status {
		case progress.StatusComplete:
			logger.Info("Download complete", "main", map[string]interface{}{"job_id": id, "url": job.URL})
		case progress.StatusCancelled:
			cancelled++
		default:
			failed++
			logger.Error("Download failed", "main", map[string]interface{}{
				"job_id": id,
				"url":    job.URL,
				"error":  ev.Message,
			})
		}
	}

	switch {
	case failed > 0 || len(renderers) < len(urls):
		return withCode(ExitDownloadFailed, fmt.Errorf("%d of %d downloads failed", failed+len(urls)-len(renderers), len(urls)))
	case cancelled > 0:
		return withCode(ExitCancelled, fmt.Errorf("download cancelled"))
	}
	return nil
}

// follow renders events until every job in renderers is terminal. A signal cancels
// all jobs, which then still report their terminal event.
func follow(events <-chan progress.Event, signals <-chan os.Signal, coord *coordinator.Coordinator, renderers map[string]*progress.BarRenderer) map[string]progress.Event {
	results := make(map[string]progress.Event, len(renderers))
	for len(results) < len(renderers) {
		select {
		case sig := <-signals:
			logger.Info("Received signal, cancelling downloads", "main", map[string]interface{}{
				"signal": sig.String(),
			})
			for id := range renderers {
				coord.Cancel(id)
			}
		case ev, ok := <-events:
			if !ok {
				return results
			}
			r, mine := renderers[ev.ID]
			if !mine {
				continue
			}
			r.Render(ev)
			if len(renderers) > 1 && ev.Status != progress.StatusDownloading {
				logger.Info(ev.Message, "main", map[string]interface{}{
					"job_id":   ev.ID,
					"progress": ev.Progress,
				})
			}
			if ev.Status.Terminal() {
				results[ev.ID] = ev
			}
		}
	}
	return results
}

// bucketURLFor maps a plain directory to a fileblob URL and passes URLs through.
func bucketURLFor(output string) (string, error) {
	if strings.Contains(output, "://") {
		return output, nil
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// headerProvider builds the header source used when no -H flag is given.
func headerProvider(ctx context.Context, opts *downloadOptions) (headers.Provider, func(), error) {
	noop := func() {}
	if opts.redisURL != "" {
		ropts, err := redis.ParseURL(opts.redisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		store := headers.NewRedisStore(client, headers.DefaultTTL)
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connect to redis: %w", err)
		}
		return store, func() { client.Close() }, nil
	}
	if opts.requestsFile != "" {
		store := headers.NewMemoryStore(headers.DefaultTTL, nil)
		if err := loadRequests(ctx, store, opts.requestsFile); err != nil {
			return nil, noop, err
		}
		logger.Debug("Loaded captured requests", "cli", map[string]interface{}{
			"file":    opts.requestsFile,
			"entries": store.Len(),
		})

		pctx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			store.RunPruner(pctx, headers.DefaultPruneInterval)
		}()
		return store, func() {
			stop()
			<-done
		}, nil
	}
	return nil, noop, nil
}

// loadRequests replays a JSON lines capture into store.
func loadRequests(ctx context.Context, store headers.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open requests file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var req headers.Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return fmt.Errorf("requests file line %d: %w", line, err)
		}
		if err := store.Observe(ctx, req); err != nil {
			return err
		}
	}
	return scanner.Err()
}
