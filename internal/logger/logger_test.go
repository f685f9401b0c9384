package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogRotation(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	// 1MB is the smallest size lumberjack allows.
	log, err := New(Options{
		Level:    "debug",
		File:     logFile,
		Rotation: Rotation{MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 1},
	})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	longMessage := strings.Repeat("x", 200)
	for i := 0; i < 15000; i++ {
		log.Info(fmt.Sprintf("Log entry %d: %s", i, longMessage))
	}
	_ = log.Sync()

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("main log file does not exist")
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	rotated := 0
	for _, f := range files {
		name := f.Name()
		if name == "test.log" || !strings.HasPrefix(name, "test") {
			continue
		}
		rotated++
		// test-YYYY-MM-DDTHH-MM-SS.SSS.log
		if !strings.Contains(name, "-20") {
			t.Errorf("rotated file %s doesn't have expected timestamp format", name)
		}
	}
	if rotated == 0 {
		t.Error("no rotated files found")
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected []string
		excluded []string
	}{
		{level: "error", expected: []string{"ERROR"}, excluded: []string{"WARN", "INFO", "DEBUG"}},
		{level: "warn", expected: []string{"ERROR", "WARN"}, excluded: []string{"INFO", "DEBUG"}},
		{level: "info", expected: []string{"ERROR", "WARN", "INFO"}, excluded: []string{"DEBUG"}},
		{level: "", expected: []string{"ERROR", "WARN", "INFO"}, excluded: []string{"DEBUG"}},
		{level: "debug", expected: []string{"ERROR", "WARN", "INFO", "DEBUG"}},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := New(Options{Level: tt.level, Console: &buf})
			if err != nil {
				t.Fatalf("failed to build logger: %v", err)
			}

			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")
			log.Error("error message")

			out := buf.String()
			for _, exp := range tt.expected {
				if !strings.Contains(out, exp) {
					t.Errorf("expected %s in log output", exp)
				}
			}
			for _, exc := range tt.excluded {
				if strings.Contains(out, exc) {
					t.Errorf("unexpected %s in log output for level %q", exc, tt.level)
				}
			}
		})
	}
}

func TestUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDefaultRotation(t *testing.T) {
	r := DefaultRotation()
	if r.MaxSizeMB != 50 || r.MaxBackups != 3 || r.MaxAgeDays != 7 || !r.Compress {
		t.Errorf("unexpected rotation %+v", r)
	}
}

func TestFilterRules(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "filter.log")
	log, err := New(Options{
		Level:    "debug",
		File:     logFile,
		Rotation: Rotation{MaxSizeMB: 10, MaxBackups: 1, MaxAgeDays: 1},
		Filter:   "warn+:* debug+:centerline",
	})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	log.Named("export").Info("export info")
	log.Named("export").Warn("export warn")
	log.Named("centerline").Debug("centerline debug")
	_ = log.Sync()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	logContent := string(content)

	if strings.Contains(logContent, "export info") {
		t.Error("info from export should be filtered out")
	}
	for _, want := range []string{"export warn", "centerline debug"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("expected %q in log output", want)
		}
	}
}

func TestInvalidFilter(t *testing.T) {
	if _, err := New(Options{Filter: "bogus:*"}); err == nil {
		t.Error("expected error for invalid filter rules")
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	old := Log
	defer func() { Log = old }()

	if err := Init("warn", "", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Log == old {
		t.Error("Init should replace Log")
	}
	if Named("build").Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
	if err := Init("loud", "", ""); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) should return a logger")
	}
}
