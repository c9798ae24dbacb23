package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oggyb/campus-connect/internal/config"
)

// captureOutput points the global logger at a buffer during f()
func captureOutput(t *testing.T, f func()) string {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		Init(&Config{Level: "info", Format: FormatText})
	})

	f()
	return buf.String()
}

func logConfig(level, format, component string, source bool) *config.Config {
	c := &config.Config{}
	c.Log.Level = level
	c.Log.Format = format
	c.Log.Component = component
	c.Log.Source = source
	return c
}

func TestLogger_TextFormat(t *testing.T) {
	out := captureOutput(t, func() {
		InitFromConfig(logConfig("debug", "text", "test", false))
		Info("hello campus", "key", "value")
	})

	if !strings.Contains(out, "hello campus") {
		t.Errorf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected structured field, got: %s", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	out := captureOutput(t, func() {
		InitFromConfig(logConfig("info", "json", "json_test", false))
		Info("json log", "foo", "bar")
	})

	if !strings.Contains(out, `"msg":"json log"`) {
		t.Errorf("expected JSON message, got: %s", out)
	}
	if !strings.Contains(out, `"component":"json_test"`) {
		t.Errorf("expected component in JSON, got: %s", out)
	}
	if !strings.Contains(out, `"foo":"bar"`) {
		t.Errorf("expected structured field in JSON, got: %s", out)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	out := captureOutput(t, func() {
		InitFromConfig(logConfig("error", "text", "", false))
		Info("should not appear")
		Error("should appear")
	})

	if strings.Contains(out, "should not appear") {
		t.Errorf("info log should not appear, got: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("error log should appear, got: %s", out)
	}
}

func TestLogger_ForUserAddsField(t *testing.T) {
	out := captureOutput(t, func() {
		InitFromConfig(logConfig("debug", "text", "", false))
		ForUser(With("req_id", "123"), 42).Info("processing request")
	})

	if !strings.Contains(out, "req_id=123") {
		t.Errorf("expected req_id field, got: %s", out)
	}
	if !strings.Contains(out, "user_id=42") {
		t.Errorf("expected user_id field, got: %s", out)
	}
}

func TestLogger_NewIsIndependent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: FormatJSON, Component: "standalone"}, &buf)
	l.Debug("standalone log")

	if !strings.Contains(buf.String(), `"component":"standalone"`) {
		t.Errorf("expected standalone component, got: %s", buf.String())
	}
}
