package observability

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLogLevel(tc.in); got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGetLogLevel_FlagBeatsEnv(t *testing.T) {
	t.Setenv("CHURNFLOW_LOG_LEVEL", "error")
	if got := GetLogLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("expected flag to win, got %v", got)
	}
	if got := GetLogLevel(""); got != slog.LevelError {
		t.Fatalf("expected env fallback, got %v", got)
	}
}

func TestNewLogger_NotNil(t *testing.T) {
	if NewLogger("test", slog.LevelInfo) == nil {
		t.Fatal("expected logger")
	}
}
