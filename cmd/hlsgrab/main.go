package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heyjunin/hlsgrab/pkg/logger"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitStorageError   = 3
	ExitDownloadFailed = 4
	ExitCancelled      = 5
)

var logLevel string

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hlsgrab",
		Short: "Download HLS streams and media files",
		Long: `hlsgrab downloads HLS playlists segment by segment, remuxes MPEG-TS streams to MP4
with ffmpeg when it is available, and stores the result in a local directory or a bucket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("HLSGRAB_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newDownloadCmd(), newInspectCmd(), newProbeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(ExitInvalidArgs)
	}
}

// parseHeaders turns repeated "Name: value" flags into a map. It returns nil when
// no header was given so that captured headers can be used instead.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", v)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
