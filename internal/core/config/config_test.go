package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if cfg.ErrorFormat != "text" {
		t.Errorf("ErrorFormat = %q, want text", cfg.ErrorFormat)
	}
	if cfg.NDJSON {
		t.Errorf("NDJSON = true, want false")
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Errorf("QueryTimeout = %v, want 5s", cfg.QueryTimeout)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reshape.yaml")
	content := "cli:\n  error_format: json\n  ndjson: true\n  query_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if cfg.ErrorFormat != "json" {
		t.Errorf("ErrorFormat = %q, want json", cfg.ErrorFormat)
	}
	if !cfg.NDJSON {
		t.Errorf("NDJSON = false, want true")
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Errorf("QueryTimeout = %v, want 30s", cfg.QueryTimeout)
	}
}

func TestLoadConfig_InvalidErrorFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reshape.yaml")
	if err := os.WriteFile(path, []byte("cli:\n  error_format: xml\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("LoadConfig() error = nil, want validation error")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/reshape.yaml"); err == nil {
		t.Fatalf("LoadConfig() error = nil, want read error")
	}
}
