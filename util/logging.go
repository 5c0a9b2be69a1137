package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	Logger zerolog.Logger
)

func ParseLevel(inlevel string) zerolog.Level {
	switch strings.ToLower(inlevel) {
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func LogInit(inlevel string) {
	LogInitTo(os.Stderr, inlevel)
}

// LogInitTo is LogInit with an explicit destination. The terminal view owns
// stderr while it runs, so logs go to log_file instead. The level is set
// globally so loggers derived from an earlier Logger follow it too.
func LogInitTo(out io.Writer, inlevel string) {
	level := ParseLevel(inlevel)
	zerolog.SetGlobalLevel(level)
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stderr},
	).With().Timestamp().Caller().Logger()

	Logger.Info().Msgf("logging initialized at level %v", level)
}

// OpenLogFile opens path for appending, falling back to stderr.
func OpenLogFile(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Logger.Warn().Msgf("unable to open log file %v: %v", path, err)
		return os.Stderr
	}
	return f
}
