package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// Common errors returned by Client. They are wrapped, use errors.Is.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// Options represents configuration options for the Client.
type Options struct {
	// Timeout sets the maximum time allowed for one request, body included.
	// Defaults to 2 minutes if not specified.
	Timeout time.Duration
	// RetryAttempts is how many times transport errors and 5xx responses are retried.
	// Zero disables retries.
	RetryAttempts int
	// RetryBackoff is the initial backoff duration. Defaults to 500ms.
	RetryBackoff time.Duration
	// RetryMaxBackoff caps the backoff. Defaults to 10s.
	RetryMaxBackoff time.Duration
	// MaxIdleConnsPerHost sets the maximum idle connections per host. Defaults to 32.
	MaxIdleConnsPerHost int
	// Jar, when set, attaches and stores cookies the way a browser includes credentials.
	Jar http.CookieJar
	// Transport overrides the base transport. Tracing is layered on top of it.
	Transport http.RoundTripper
	// DisableTracing skips the otelhttp transport wrapper.
	DisableTracing bool
	// UserAgent is sent when the caller did not provide one.
	UserAgent string
	// Logger receives request level events. Defaults to the global logger.
	Logger logger.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:             2 * time.Minute,
		RetryBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:     10 * time.Second,
		MaxIdleConnsPerHost: 32,
		UserAgent:           "hlsgrab/1.0",
	}
}

// Client fetches playlists, segments and direct media over HTTP.
// It forwards caller-provided headers on every request. Create instances using NewClient().
type Client struct {
	client *http.Client
	opts   Options
	log    logger.Logger
}

// NewClient creates a new Client, filling zero option fields with defaults.
func NewClient(options Options) *Client {
	def := DefaultOptions()
	if options.Timeout == 0 {
		options.Timeout = def.Timeout
	}
	if options.RetryBackoff == 0 {
		options.RetryBackoff = def.RetryBackoff
	}
	if options.RetryMaxBackoff == 0 {
		options.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if options.MaxIdleConnsPerHost == 0 {
		options.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if options.UserAgent == "" {
		options.UserAgent = def.UserAgent
	}

	transport := options.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: options.MaxIdleConnsPerHost,
			MaxIdleConns:        options.MaxIdleConnsPerHost * 2,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if !options.DisableTracing {
		transport = otelhttp.NewTransport(transport)
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   options.Timeout,
			Jar:       options.Jar,
		},
		opts: options,
		log:  logger.OrDefault(options.Logger),
	}
}

// Get fetches url and returns the whole body.
// Any non-2xx status yields a *StatusError. When ctx is done the returned error wraps ctx.Err().
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := c.open(ctx, http.MethodGet, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// Download fetches a non-segmented media URL, reporting bytes received through onProgress.
// total is -1 when the server does not announce a Content-Length.
func (c *Client) Download(ctx context.Context, url string, headers map[string]string, onProgress func(received, total int64)) ([]byte, error) {
	resp, err := c.open(ctx, http.MethodGet, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.log.Debug("Direct download response", "downloader", map[string]interface{}{
		"url":            logger.Truncate(url, 100),
		"content_length": resp.ContentLength,
	})

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{
			reader:   resp.Body,
			size:     resp.ContentLength,
			onUpdate: onProgress,
		}
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, reader); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return buf.Bytes(), nil
}

// Info describes a resource without its body.
type Info struct {
	ContentType   string
	ContentLength int64
}

// Head asks for url's metadata. ContentLength is -1 when unknown.
func (c *Client) Head(ctx context.Context, url string, headers map[string]string) (Info, error) {
	resp, err := c.open(ctx, http.MethodHead, url, headers)
	if err != nil {
		return Info{}, err
	}
	resp.Body.Close()
	return Info{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// open performs the request with retries and returns a response with a 2xx status.
func (c *Client) open(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, url, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s %s: %w", method, url, ctx.Err())
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = newStatusError(url, resp)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, newStatusError(url, resp)
		}

		return resp, nil
	}

	if c.opts.RetryAttempts > 0 {
		return nil, fmt.Errorf("%s failed after %d attempts: %w", method, c.opts.RetryAttempts+1, lastErr)
	}
	return nil, lastErr
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newStatusError(url string, resp *http.Response) *StatusError {
	se := &StatusError{URL: url, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		se.kind = ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		se.kind = ErrForbidden
	case resp.StatusCode == http.StatusUnauthorized:
		se.kind = ErrUnauthorized
	case resp.StatusCode >= 500:
		se.kind = ErrServerError
	}
	return se
}

// progressReader is an internal io.Reader wrapper used to track download progress.
type progressReader struct {
	reader   io.Reader
	size     int64
	read     int64
	onUpdate func(received, total int64)
}

// Read implements the io.Reader interface for progressReader.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.onUpdate(pr.read, pr.size)
	}
	return n, err
}
