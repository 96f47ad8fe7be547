package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNew_JSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json", "server")
	l.Info().Msg("hidden")
	l.Warn().Str("component", "match").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines: %q", buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["message"] != "shown" || m["service"] != "server" || m["component"] != "match" {
		t.Fatalf("entry: %v", m)
	}
}

func TestSampled_LimitsBurst(t *testing.T) {
	var buf bytes.Buffer
	l := Sampled(New(&buf, "info", "json", "x"), 2, time.Hour, 1000)
	for i := 0; i < 10; i++ {
		l.Info().Msg("tick")
	}
	if n := strings.Count(buf.String(), "\n"); n > 3 {
		t.Fatalf("sampled logger wrote %d lines", n)
	}
}
