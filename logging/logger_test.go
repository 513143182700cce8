package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"WARN":  LevelWarn,
		"error": LevelError,
		"info":  LevelInfo,
		"bogus": LevelInfo,
		"":      LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: LevelWarn, Format: "text", Output: &buf})

	log.Info("should be filtered")
	log.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatalf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithTurnStampsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	log := WithTurn(New(&Config{Output: &buf}), "t-1", "c-1")

	log.Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON entry: %v", err)
	}
	if entry["turn_id"] != "t-1" || entry["client_id"] != "c-1" {
		t.Fatalf("missing turn attributes: %v", entry)
	}
}

func TestWithTurnLeavesForeignLoggersAlone(t *testing.T) {
	l := NoOpLogger{}
	if got := WithTurn(l, "t", "c"); got != l {
		t.Fatalf("expected the original logger back, got %T", got)
	}
}
