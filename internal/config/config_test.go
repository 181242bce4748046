package config

import (
	"testing"
	"time"

	"shotcounter/server/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StoreDriver != "memory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JournalMaxAge != 10*time.Minute || cfg.BroadcastBuffer != 16 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.SeedRoster {
		t.Fatalf("roster seeding should default on")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("LOG_SINKS", "console,json")
	t.Setenv("LOG_SEVERITY", "debug")
	t.Setenv("JOURNAL_MAX_AGE", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTP_ADDR ignored: %+v", cfg)
	}
	if cfg.StoreDSN != ":memory:" {
		t.Fatalf("sqlite driver should default its DSN, got %q", cfg.StoreDSN)
	}
	if len(cfg.LogSinks) != 2 || cfg.LogSinks[1] != "json" {
		t.Fatalf("sinks not split: %+v", cfg.LogSinks)
	}
	if cfg.JournalMaxAge != 30*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.JournalMaxAge)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"unknown driver", Config{StoreDriver: "oracle", LogSeverity: "info", BroadcastBuffer: 16}},
		{"postgres without dsn", Config{StoreDriver: "postgres", LogSeverity: "info", BroadcastBuffer: 16}},
		{"unknown severity", Config{StoreDriver: "memory", LogSeverity: "loud", BroadcastBuffer: 16}},
		{"zero buffer", Config{StoreDriver: "memory", LogSeverity: "info"}},
	}
	for _, tc := range cases {
		cfg := tc.cfg
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoggingConfigReflectsSettings(t *testing.T) {
	cfg := Config{
		LogSinks:    []string{"json"},
		LogSeverity: "warn",
		LogBuffer:   64,
		LogFilePath: "/tmp/events.jsonl",
	}
	logCfg := cfg.LoggingConfig()
	if !logCfg.HasSink("json") || logCfg.HasSink("console") {
		t.Fatalf("sinks not applied: %+v", logCfg.EnabledSinks)
	}
	if logCfg.MinimumSeverity != logging.SeverityWarn || logCfg.BufferSize != 64 {
		t.Fatalf("unexpected logging config: %+v", logCfg)
	}
	if logCfg.JSON.FilePath != "/tmp/events.jsonl" {
		t.Fatalf("file path not applied: %+v", logCfg.JSON)
	}
}
