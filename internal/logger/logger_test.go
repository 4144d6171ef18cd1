package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		level   zerolog.Level
		wantErr bool
	}{
		{"defaults", Options{}, zerolog.InfoLevel, false},
		{"debug json", Options{Level: "DEBUG", Format: "json"}, zerolog.DebugLevel, false},
		{"warn console", Options{Level: "warn", Format: "console"}, zerolog.WarnLevel, false},
		{"bad level", Options{Level: "loud"}, zerolog.NoLevel, true},
		{"bad format", Options{Format: "xml"}, zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Out = &bytes.Buffer{}
			log, err := Configure(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if log.GetLevel() != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, log.GetLevel())
			}
		})
	}
}

func TestConfigure_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := Configure(Options{Level: "info", Format: FormatJSON, Service: "insights-api", Out: buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Msg("hidden")
	log.Info().Str("upload_id", "u1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one event, got %d: %s", len(lines), buf.String())
	}
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatal(err)
	}
	if event["service"] != "insights-api" || event["upload_id"] != "u1" || event["message"] != "visible" {
		t.Errorf("Unexpected event: %v", event)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_Default(t *testing.T) {
	buf := &bytes.Buffer{}
	SetDefault(NewWithWriter(buf))
	defer fallback.Store(nil)

	log := FromContext(context.Background())
	log.Info().Msg("fallback")

	if !strings.Contains(buf.String(), "fallback") {
		t.Errorf("Expected default logger output, got: %s", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"rule_id": 7,
		"action":  "test",
	})
	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"rule_id":7`) {
		t.Errorf("Expected output to contain rule_id field, got: %s", output)
	}
	if !strings.Contains(output, `"action":"test"`) {
		t.Errorf("Expected output to contain action field, got: %s", output)
	}
}
