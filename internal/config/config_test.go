package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9000
storage:
  database_path: ./data/vectors.db
embedding:
  enabled: true
  endpoint: http://localhost:11434
  dimensions: 768
library:
  root: ./library
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug not parsed")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Embedding.Endpoint != "http://localhost:11434" {
		t.Errorf("endpoint = %s", cfg.Embedding.Endpoint)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/vectors.db") {
		t.Errorf("database path = %s", cfg.Storage.DatabasePath)
	}
	if cfg.Library.Root != filepath.Join(dir, "library") {
		t.Errorf("library root = %s", cfg.Library.Root)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8765 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions default = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Model != "all-MiniLM-L6-v2" {
		t.Errorf("model default = %s", cfg.Embedding.Model)
	}
	if cfg.Index.ChunkSize != 1000 || cfg.Index.ChunkOverlap != 200 {
		t.Errorf("chunk defaults = %d/%d", cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	}
	if cfg.Embedding.Enabled {
		t.Error("embedding should default to disabled")
	}
	if len(cfg.Library.Extensions) == 0 {
		t.Error("extensions default missing")
	}
}
