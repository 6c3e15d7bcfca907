package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		name string
		want log.Level
	}{
		{"DEBUG", log.DebugLevel},
		{"debug", log.DebugLevel},
		{"Info", log.InfoLevel},
		{"warning", log.WarnLevel},
		{"ERROR", log.ErrorLevel},
		{"critical", LevelCritical},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
		{"warn", log.InfoLevel},
	}
	for _, c := range cases {
		if got := ParseLogLevel(c.name); got != c.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("DEBUG", &buf)
	logger.WithField(SourceField, "Driveway").Info("Movement detected")
	logger.Warn("no label")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3} - \[I\] - \[Driveway\] - Movement detected$`)
	if !pattern.MatchString(lines[0]) {
		t.Errorf("unexpected line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], " - [W] - [SYSTEM] - no label") {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestThresholdSuppression(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("error", &buf)
	entry := logger.WithField(SourceField, "cam")
	entry.Debug("debug")
	entry.Info("info")
	entry.Warn("warning")
	entry.Error("error")
	Critical(entry, "critical")

	out := buf.String()
	for _, suppressed := range []string{"- debug", "- info", "- warning"} {
		if strings.Contains(out, suppressed) {
			t.Errorf("%q should be suppressed, output: %q", suppressed, out)
		}
	}
	if !strings.Contains(out, "[E] - [cam] - error") {
		t.Errorf("error line missing: %q", out)
	}
	if !strings.Contains(out, "[C] - [cam] - critical") {
		t.Errorf("critical line missing: %q", out)
	}
}

func TestCriticalOnlyThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("CRITICAL", &buf)
	logger.Error("error")
	Criticalf(logger.WithField(SourceField, "cam"), "connection failed: %s", "timeout")
	if strings.Contains(buf.String(), "- error") {
		t.Errorf("error should be suppressed: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[C] - [cam] - connection failed: timeout") {
		t.Errorf("critical line missing: %q", buf.String())
	}
}

func TestConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("INFO", &buf)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			entry := logger.WithField(SourceField, "cam")
			for j := 0; j < 50; j++ {
				entry.Info("polling")
			}
		}(i)
	}
	wg.Wait()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, " - [I] - [cam] - polling") {
			t.Fatalf("corrupted line %q", line)
		}
	}
}

func TestConfigureLoggerFile(t *testing.T) {
	dir := t.TempDir()
	logger := log.New()
	if err := ConfigureLogger(logger, dir, "info"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("written to file")
	body, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("can't read log file: %v", err)
	}
	if !strings.Contains(string(body), "[I] - [SYSTEM] - written to file") {
		t.Errorf("unexpected log file content %q", string(body))
	}
}
