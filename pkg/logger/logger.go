package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel defines the severity level for log events.
type LogLevel string

const (
	// DebugLevel indicates detailed tracing information, such as per-segment fetch results.
	DebugLevel LogLevel = "debug"
	// InfoLevel indicates general operational information, such as job state transitions.
	InfoLevel LogLevel = "info"
	// WarnLevel indicates tolerated failures, such as a failed segment or a remux fallback.
	WarnLevel LogLevel = "warn"
	// ErrorLevel indicates a job that ended in error.
	ErrorLevel LogLevel = "error"
	// FatalLevel indicates severe error events that will lead the application to abort.
	FatalLevel LogLevel = "fatal"
)

// Init initializes the global zerolog logger.
// Logs are JSON formatted on stderr with Unix timestamps. An unknown level falls back to info.
// This should typically be called once at application startup.
func Init(level string) {
	InitWithWriter(level, os.Stderr)
}

// InitWithWriter is Init with a custom destination, mostly useful in tests.
func InitWithWriter(level string, w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Log is the core logging function.
// Use the specific level functions (Debug, Info, Warn, Error, Fatal) instead of calling Log directly.
func Log(level LogLevel, message, component string, data map[string]interface{}) {
	logger := log.With().
		Str("component", component).
		Fields(data).
		Logger()

	switch level {
	case DebugLevel:
		logger.Debug().Msg(message)
	case InfoLevel:
		logger.Info().Msg(message)
	case WarnLevel:
		logger.Warn().Msg(message)
	case ErrorLevel:
		logger.Error().Msg(message)
	case FatalLevel:
		logger.Fatal().Msg(message)
	}
}

// Debug logs a message at the Debug level with the specified component and optional data.
func Debug(message, component string, data map[string]interface{}) {
	Log(DebugLevel, message, component, data)
}

// Info logs a message at the Info level with the specified component and optional data.
func Info(message, component string, data map[string]interface{}) {
	Log(InfoLevel, message, component, data)
}

// Warn logs a message at the Warn level with the specified component and optional data.
func Warn(message, component string, data map[string]interface{}) {
	Log(WarnLevel, message, component, data)
}

// Error logs a message at the Error level with the specified component and optional data.
func Error(message, component string, data map[string]interface{}) {
	Log(ErrorLevel, message, component, data)
}

// Fatal logs a message at the Fatal level and then calls os.Exit(1).
func Fatal(message, component string, data map[string]interface{}) {
	Log(FatalLevel, message, component, data)
}

// Truncate shortens long values such as signed URLs before they are logged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
