package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewWithWriter(tt.level, &bytes.Buffer{})
			if l.GetLevel() != tt.want {
				t.Errorf("Expected level %s, got %s", tt.want, l.GetLevel())
			}
		})
	}
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", &buf)
	l.Info().Str("draft_key", "new:1").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	for _, field := range []string{"time", "caller", "pid", "go_version", "git_revision", "draft_key"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("Expected field %s in %v", field, entry)
		}
	}
	if entry["message"] != "hello" {
		t.Errorf("Expected message hello, got %v", entry["message"])
	}
}
