package obslog

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if err != nil {
				t.Fatalf("ParseLevel(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseLevel_RejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestReplaceLevelNames_RenamesTraceOnly(t *testing.T) {
	got := ReplaceLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)})
	if got.Value.String() != "TRACE" {
		t.Fatalf("trace level not renamed: %v", got)
	}

	got = ReplaceLevelNames(nil, slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)})
	if got.Value.String() == "TRACE" {
		t.Fatal("info level should not be renamed to TRACE")
	}
}
