package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/heyjunin/hlsgrab/pkg/errors"
	"github.com/heyjunin/hlsgrab/pkg/logger"
	"github.com/heyjunin/hlsgrab/pkg/metrics"
)

const (
	inputName  = "input.ts"
	outputName = "output.mp4"
)

// FFmpegEngine remuxes MPEG-TS to MP4 by running the ffmpeg binary.
type FFmpegEngine struct {
	options Options
	logger  logger.Logger
}

// NewFFmpegEngine creates an FFmpegEngine.
func NewFFmpegEngine(options Options) *FFmpegEngine {
	options = options.withDefaults()
	return &FFmpegEngine{options: options, logger: options.Logger}
}

// Load checks that ffmpeg can be executed.
func (e *FFmpegEngine) Load(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.options.FFmpegBinary, "-version")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.RemuxError, "FFmpeg is not available", errors.ErrCodeEngineUnavailable)
	}

	version, _, _ := strings.Cut(string(out), "\n")
	e.logger.Info("FFmpeg loaded", "transcoder", map[string]interface{}{
		"binary":  e.options.FFmpegBinary,
		"version": version,
	})
	return nil
}

// Remux stream-copies ts into an MP4 container with faststart.
// Scratch files live in a job-scoped directory that is removed on every path.
func (e *FFmpegEngine) Remux(ctx context.Context, jobID string, ts []byte) ([]byte, error) {
	dir, err := os.MkdirTemp(e.options.TempDir, "hlsgrab-"+sanitizeJobID(jobID)+"-")
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrCodeTempFile), errors.ErrCodeTempFile)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("Failed to remove remux scratch directory", "transcoder", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}()

	inputPath := filepath.Join(dir, inputName)
	outputPath := filepath.Join(dir, outputName)
	if err := os.WriteFile(inputPath, ts, 0600); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrCodeTempFile), errors.ErrCodeTempFile)
	}

	args := []string{
		"-hide_banner",
		"-i", inputPath,
		"-c", "copy",
		"-movflags", "+faststart",
	}
	args = append(args, e.options.FFmpegExtraParams...)
	args = append(args, "-y", outputPath)

	e.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"command": e.options.FFmpegBinary + " " + strings.Join(args, " "),
		"job_id":  jobID,
	})

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.options.FFmpegBinary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.RemuxError, "Failed to create stderr pipe", errors.ErrCodeRemuxFailed)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.RemuxError, "Failed to start FFmpeg", errors.ErrCodeRemuxFailed)
	}

	// Keep the tail of stderr for the error details.
	var tail []string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		e.logger.Debug(line, "ffmpeg", nil)
		tail = append(tail, line)
		if len(tail) > 5 {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		se := errors.Wrap(err, errors.RemuxError, errors.GetErrorMessage(errors.ErrCodeRemuxFailed), errors.ErrCodeRemuxFailed)
		if len(tail) > 0 {
			se.Details = strings.Join(tail, "\n")
		}
		return nil, se
	}
	metrics.RemuxDuration.Observe(time.Since(start).Seconds())

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.RemuxError, errors.GetErrorMessage(errors.ErrCodeRemuxOutput), errors.ErrCodeRemuxOutput)
	}
	if len(data) == 0 {
		return nil, errors.FromCode(errors.RemuxError, errors.ErrCodeRemuxOutput, outputPath)
	}
	return data, nil
}

// sanitizeJobID keeps job IDs safe for use in a directory name.
func sanitizeJobID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
