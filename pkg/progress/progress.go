package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// rendererOptions holds configuration for the BarRenderer.
type rendererOptions struct {
	throttle           time.Duration
	progressFilePath   string
	progressFileFormat string // "text" or "json"
	description        string
	writer             io.Writer
	quiet              bool
}

// RendererOption configures a BarRenderer.
type RendererOption func(*rendererOptions)

// WithThrottle sets the minimum interval between progress file writes.
// Terminal events are always written. Defaults to 0 (no throttling).
func WithThrottle(duration time.Duration) RendererOption {
	return func(opts *rendererOptions) {
		opts.throttle = duration
	}
}

// WithProgressFile sets the file the current progress is written to.
// The format is controlled by WithProgressFileFormat (defaults to "text").
// If the path is empty (default), no file is written.
func WithProgressFile(path string) RendererOption {
	return func(opts *rendererOptions) {
		opts.progressFilePath = path
	}
}

// WithProgressFileFormat sets the format for the progress file ("text" or "json").
// "text" writes the percentage only, "json" the whole Event.
func WithProgressFileFormat(format string) RendererOption {
	return func(opts *rendererOptions) {
		if format == "json" || format == "text" {
			opts.progressFileFormat = format
		} else {
			logger.Warn("Invalid progress file format specified, defaulting to 'text'", "progress", map[string]interface{}{
				"format": format,
			})
			opts.progressFileFormat = "text"
		}
	}
}

// WithDescription sets the initial description of the console bar.
// Event messages replace it as they arrive.
func WithDescription(desc string) RendererOption {
	return func(opts *rendererOptions) {
		opts.description = desc
	}
}

// WithWriter sets where the bar is drawn. Defaults to os.Stderr.
func WithWriter(w io.Writer) RendererOption {
	return func(opts *rendererOptions) {
		opts.writer = w
	}
}

// WithQuiet disables the console bar, the progress file is still written.
func WithQuiet(quiet bool) RendererOption {
	return func(opts *rendererOptions) {
		opts.quiet = quiet
	}
}

// BarRenderer draws the events of one job as a console progress bar using
// github.com/schollz/progressbar/v3 and mirrors them to an optional progress file.
type BarRenderer struct {
	Bar *progressbar.ProgressBar

	opts      rendererOptions
	last      Event
	lastWrite time.Time
	finished  bool
	mu        sync.Mutex
}

// NewRenderer creates a BarRenderer.
func NewRenderer(opts ...RendererOption) *BarRenderer {
	options := rendererOptions{
		description:        "Starting...",
		progressFileFormat: "text",
		writer:             os.Stderr,
	}
	for _, opt := range opts {
		opt(&options)
	}

	r := &BarRenderer{opts: options}
	if !options.quiet {
		r.Bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(options.description),
			progressbar.OptionSetWriter(options.writer),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return r
}

// Render applies ev. Events after a terminal one are ignored.
func (r *BarRenderer) Render(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.last = ev

	if r.Bar != nil {
		r.Bar.Describe(ev.Message)
		_ = r.Bar.Set(clamp(ev.Progress))
	}

	terminal := ev.Status.Terminal()
	if terminal || time.Since(r.lastWrite) >= r.opts.throttle {
		r.lastWrite = time.Now()
		r.writeProgressFileInternal()
	}

	if terminal {
		r.finished = true
		// A failed or cancelled bar stays where it stopped.
		if r.Bar != nil && ev.Status == StatusComplete {
			_ = r.Bar.Finish()
		}
	}
}

// Last returns the most recent event rendered.
func (r *BarRenderer) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// JSON returns the most recent event as a JSON string.
func (r *BarRenderer) JSON() (string, error) {
	return r.Last().JSON()
}

// writeProgressFileInternal writes the current progress to the configured file.
// Requires lock to be held by caller.
func (r *BarRenderer) writeProgressFileInternal() {
	if r.opts.progressFilePath == "" {
		return
	}

	var content []byte
	var err error

	switch r.opts.progressFileFormat {
	case "json":
		content, err = json.MarshalIndent(r.last, "", "  ")
		if err != nil {
			logger.Warn("Failed to marshal progress event to JSON", "progress", map[string]interface{}{
				"path":  r.opts.progressFilePath,
				"error": err.Error(),
			})
			return
		}
	default:
		content = []byte(fmt.Sprintf("%d", r.last.Progress))
	}

	if err := os.WriteFile(r.opts.progressFilePath, content, 0644); err != nil {
		logger.Warn("Failed to write progress file", "progress", map[string]interface{}{
			"path":   r.opts.progressFilePath,
			"format": r.opts.progressFileFormat,
			"error":  err.Error(),
		})
	}
}

// Follow reads events until the terminal event of jobID, calling render for each
// event of that job. ok is false when events closes or ctx ends first.
func Follow(ctx context.Context, events <-chan Event, jobID string, render func(Event)) (last Event, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return last, false
		case ev, open := <-events:
			if !open {
				return last, false
			}
			if ev.ID != jobID {
				continue
			}
			last = ev
			if render != nil {
				render(ev)
			}
			if ev.Status.Terminal() {
				return ev, true
			}
		}
	}
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
