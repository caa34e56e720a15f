package logger

import (
	"log/slog"
	"reflect"
	"testing"

	coreconfig "github.com/m3rciful/menubot/core/config"
)

func TestSettingsDefaults(t *testing.T) {
	s := settingsFrom(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.profile != "prod" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.sampleNum != 1 || s.sampleDen != 50 {
		t.Fatalf("unexpected sample ratio %d/%d", s.sampleNum, s.sampleDen)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "WARNING",
		Profile:     "Dev",
		KeysOrder:   "event, sender,,level",
		DebugSample: "off",
		Dir:         "logs",
		BotFile:     "bot.log",
	}}
	s := settingsFrom(cfg)

	if s.format != formatKV {
		t.Errorf("dev profile should default to kv, got %s", s.format)
	}
	if s.level != slog.LevelWarn {
		t.Errorf("level = %v, want WARN", s.level)
	}
	if want := []string{"event", "sender", "level"}; !reflect.DeepEqual(s.keyOrder, want) {
		t.Errorf("keyOrder = %v, want %v", s.keyOrder, want)
	}
	if s.sampleNum != 0 || s.sampleDen != 0 {
		t.Errorf("sampling should be off, got %d/%d", s.sampleNum, s.sampleDen)
	}
	if s.filePath != "logs/bot.log" {
		t.Errorf("filePath = %q", s.filePath)
	}

	cfg.Logging.Format = "json"
	if got := settingsFrom(cfg).format; got != formatJSON {
		t.Errorf("explicit json format ignored, got %s", got)
	}
}

func TestListAttrs(t *testing.T) {
	attrs := ListAttrs("files", []string{"a", "b", "c"}, 2)
	got := map[string]string{}
	for _, a := range attrs {
		got[a.Key] = a.Value.String()
	}
	want := map[string]string{"files_total": "3", "files_truncated": "true", "files_preview": "a, b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListAttrs = %v, want %v", got, want)
	}

	if empty := ListAttrs("applied", nil, 6); len(empty) != 1 || empty[0].Value.Int64() != 0 {
		t.Fatalf("empty list should only report the total, got %v", empty)
	}
}
