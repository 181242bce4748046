package app

import (
	"context"
	"path/filepath"
	"testing"

	"shotcounter/server/internal/config"
	"shotcounter/server/logging"
)

func TestBuildSinksKnownNames(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"console", "json"}
	cfg.JSON.FilePath = filepath.Join(t.TempDir(), "events.jsonl")

	named, closeSinks, err := buildSinks(cfg)
	if err != nil {
		t.Fatalf("build sinks: %v", err)
	}
	defer closeSinks()
	if len(named) != 2 || named[0].Name != "console" || named[1].Name != "json" {
		t.Fatalf("unexpected sinks: %+v", named)
	}
}

func TestBuildSinksRejectsUnknownName(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"syslog"}
	if _, _, err := buildSinks(cfg); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}

func TestOpenStoreByDriver(t *testing.T) {
	memory, err := openStore(context.Background(), &config.Config{StoreDriver: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	defer memory.Close()

	sqlite, err := openStore(context.Background(), &config.Config{StoreDriver: "sqlite3", StoreDSN: ":memory:"})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer sqlite.Close()
}
