package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:  LevelDebug,
		Output: &buf,
		JSON:   true,
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, lvl := range []string{"debug", "info", "warn", "error"} {
			buf.Reset()
			msg := lvl + " msg"
			switch lvl {
			case "debug":
				logger.Debug(msg)
			case "info":
				logger.Info(msg)
			case "warn":
				logger.Warn(msg)
			case "error":
				logger.Error(msg)
			}
			if !strings.Contains(buf.String(), msg) {
				t.Errorf("%s logging failed", lvl)
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("reconcile").Info("msg")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		if rec["component"] != "reconcile" {
			t.Errorf("component = %v", rec["component"])
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		l := logger.WithFields(map[string]any{"object": "bridge:/br0"})
		l.Info("msg")
		if !strings.Contains(buf.String(), "bridge:/br0") {
			t.Error("WithFields missing fields")
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("create", "veth:/veth0", map[string]any{"attempt": 1})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") {
			t.Error("Audit log missing AUDIT message")
		}
		if !strings.Contains(logStr, "veth:/veth0") {
			t.Error("Audit log missing object")
		}
	})
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithComponent("Kernel").Info("link added", "name", "br0", "detail", "two words")

	line := buf.String()
	re := regexp.MustCompile(`^\S+ topoctl\[\d+\]: \[info\] kernel: link added name=br0 detail="two words"\n$`)
	if !re.MatchString(line) {
		t.Errorf("unexpected console line %q", line)
	}

	buf.Reset()
	logger.WithComponent("reconcile").Info("object reconciled", "object", "veth:/veth0", "outcome", "Created")
	re = regexp.MustCompile(`\[info\] reconcile: veth:/veth0: object reconciled outcome=Created\n$`)
	if !re.MatchString(buf.String()) {
		t.Errorf("object not promoted into header: %q", buf.String())
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
}

func TestConsoleHandlerWithAttrsDoesNotAlias(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: LevelInfo})
	base := h.WithAttrs([]slog.Attr{slog.String("a", "1")})
	_ = base.WithAttrs([]slog.Attr{slog.String("b", "2")})
	c := base.WithAttrs([]slog.Attr{slog.String("c", "3")})

	slog.New(c).Info("m")
	if strings.Contains(buf.String(), "b=2") {
		t.Errorf("attributes leaked between handlers: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	prev := Default()
	SetDefault(New(cfg))
	defer SetDefault(prev)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	WithComponent("comp").Info("comp msg")

	if !strings.Contains(buf.String(), "comp: comp msg") {
		t.Errorf("default logger output = %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if l.GetLevel() <= LevelError {
		t.Error("Discard logger should filter every level")
	}
}
