package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"telegram": {"token": "123:abc", "owner_user_ids": [42]},
		"logging": {"level": "debug", "console": true},
		"scheduler": {"enabled": true, "tick_interval": "30s", "timezone": "Asia/Taipei"},
		"hoyolab": {"rate_per_sec": 3},
		"storage": {"driver": "sqlite", "path": "./claimbot.db"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.TickInterval != "30s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x", "webhook": true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestParseYAMLCoercion(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
scheduler:
  enabled: true
  workers: 2
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Scheduler.Workers != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadCommitGet(t *testing.T) {
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x"}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}
}
