package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"", LevelInfo, false},
		{"info", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Level: "warn", Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() { _ = Setup(context.Background(), Options{}) })

	Info("hidden")
	Warn("shown", "rule", "discount")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if record["msg"] != "shown" || record["rule"] != "discount" {
		t.Errorf("unexpected record: %v", record)
	}
	if GetLevel() != LevelWarning {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelWarning)
	}
}

func TestSampledCountersAlwaysIncrement(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{SampleRate: 1000000, Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() { _ = Setup(context.Background(), Options{}) })

	warnings, errs := TotalWarnings.Load(), TotalErrors.Load()
	for range 10 {
		Warn("w")
		Error("e")
	}
	if got := TotalWarnings.Load() - warnings; got != 10 {
		t.Errorf("TotalWarnings grew by %d, want 10", got)
	}
	if got := TotalErrors.Load() - errs; got != 10 {
		t.Errorf("TotalErrors grew by %d, want 10", got)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() { _ = Setup(context.Background(), Options{}) })

	Debug("before")
	SetLevel(LevelDebug)
	Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Errorf("unexpected output: %q", out)
	}
}
