package util

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"TRACE", zerolog.TraceLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestLogInitTo(t *testing.T) {
	var buf bytes.Buffer
	LogInitTo(&buf, "warn")

	Logger.Info().Msg("hidden")
	Logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be written")
	}
}

func TestLogInitTo_LevelReachesDerivedLoggers(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	LogInitTo(&buf, "info")
	component := Logger.With().Str("component", "push").Logger()

	component.Debug().Msg("before")
	LogInitTo(io.Discard, "debug")
	component.Debug().Msg("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "after") {
		t.Error("derived logger should pick up the new level")
	}
}
