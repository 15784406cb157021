package goSession

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn")
	}
	log.Warn("gosession.test", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"gosession.test"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "bogus", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output at info, got %q", buf.String())
	}
}
