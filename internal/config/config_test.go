package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("server:\n  postgresDsn: host=db\n  redisAddr: redis:6379\n  enableTrace: true\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.Server.PostgresDsn != "host=db" || config.Server.RedisAddr != "redis:6379" || !config.Server.EnableTrace {
		t.Fatalf("unexpected server config %+v", config.Server)
	}
	if config.Server.Listen != ":8000" || config.Server.Concurrency != 4 || config.Server.AnswerCacheTTL != 300 {
		t.Fatalf("expected defaults to survive, got %+v", config.Server)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
