package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"WARN":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelGating(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(WithLevel(WarnLevel), WithOutput(buf))
	l.Info("hidden")
	l.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info leaked past warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn entry missing: %s", out)
	}
}

func TestJSONFormatAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(WithFormat("json"), WithOutput(buf)).With(Component("relay"))
	l.Info("session closed", Str("state", "completed"), Int("frames", 6))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "session closed" {
		t.Fatalf("msg: %v", entry["msg"])
	}
	if entry["component"] != "relay" || entry["state"] != "completed" {
		t.Fatalf("fields: %v", entry)
	}
}

func TestApplyConfig(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := ApplyConfig(&Config{Level: "bogus"}); err == nil {
		t.Fatalf("expected error for bad level")
	}
}
