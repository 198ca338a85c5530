package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogOutputDatedFile(t *testing.T) {
	dir := t.TempDir()
	zlog := zerolog.New(io.Discard)

	w := logOutput(zlog, dir)
	if _, err := w.Write([]byte(`{"level":"info"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := filepath.Join(dir, time.Now().Format("20060102")+".log")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected dated log file %s: %v", want, err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestLogOutputStdoutWithoutDir(t *testing.T) {
	w := logOutput(zerolog.New(io.Discard), "")
	if w != os.Stdout {
		t.Error("empty log dir should log to stdout only")
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	before := nextRun(now, 10, 0)
	if before.Day() != 10 || before.Hour() != 10 {
		t.Errorf("nextRun before schedule = %v", before)
	}

	after := nextRun(now, 8, 0)
	if after.Day() != 11 || after.Hour() != 8 {
		t.Errorf("nextRun after schedule = %v", after)
	}
}
