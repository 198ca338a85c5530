package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"fatal", LevelFatal},
		{"garbage", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Service: "test"})

	l.WithRunID("run-1").WithStage("collect").WithSource("arxiv").Info("fetched %d items", 7)

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("expected newline-terminated entry, got %q", line)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
	if entry.Message != "fetched 7 items" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.RunID != "run-1" || entry.Stage != "collect" || entry.Source != "arxiv" {
		t.Errorf("run/stage/source = %q/%q/%q", entry.RunID, entry.Stage, entry.Source)
	}
	if entry.Service != "test" {
		t.Errorf("service = %q, want test", entry.Service)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf, Service: "test"})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("visible")

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("expected 1 entry, got %d: %s", got, buf.String())
	}
}

func TestLoggerWithErrorField(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Service: "test"})

	l.WithError(errors.New("boom")).Error("save failed")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Error != "boom" {
		t.Errorf("error field = %q, want boom", entry.Error)
	}
	if entry.File == "" || entry.Line == 0 {
		t.Error("expected caller info on error level")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelDebug, Output: &buf, Service: "test"})

	child := base.WithField("k", "v")
	if _, ok := base.fields["k"]; ok {
		t.Error("parent logger mutated by WithField")
	}
	if child.fields["k"] != "v" {
		t.Error("child missing field")
	}
}
