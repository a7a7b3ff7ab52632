package transcoder

import (
	"fmt"
	"os"
	"time"

	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// DefaultLoadTimeout bounds how long the codec engine may take to become ready.
const DefaultLoadTimeout = 30 * time.Second

// Options contains settings for the Finalizer and the FFmpeg engine.
type Options struct {
	// FFmpegBinary is the ffmpeg executable. Defaults to "ffmpeg" from PATH.
	FFmpegBinary string
	// FFmpegExtraParams are appended before the output path.
	FFmpegExtraParams []string
	// TempDir holds the per-job scratch directories. Defaults to os.TempDir().
	TempDir string
	// LoadTimeout bounds engine loading. Defaults to DefaultLoadTimeout.
	LoadTimeout time.Duration
	// Logger defaults to the global logger.
	Logger logger.Logger
}

func (o Options) withDefaults() Options {
	if o.FFmpegBinary == "" {
		o.FFmpegBinary = "ffmpeg"
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = DefaultLoadTimeout
	}
	o.Logger = logger.OrDefault(o.Logger)
	return o
}

// ValidateOptions checks that the options are usable, creating TempDir if needed.
func ValidateOptions(opts Options) error {
	if opts.LoadTimeout < 0 {
		return fmt.Errorf("load timeout must not be negative")
	}
	if opts.TempDir != "" {
		if _, err := os.Stat(opts.TempDir); os.IsNotExist(err) {
			if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
				return fmt.Errorf("could not create temp directory: %w", err)
			}
		}
	}
	return nil
}
