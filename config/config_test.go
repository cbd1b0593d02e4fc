package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("API_KEY", "test-key")
	t.Setenv("STORE", "memory")
	t.Setenv("CHAT_MODEL", "gpt-4o-mini")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("env override not applied, APIKey = %q", cfg.APIKey)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("STORE override not applied, got %q", cfg.StoreBackend)
	}
	if cfg.EmbeddingModel == "" {
		t.Error("defaults should fill the embedding model")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory-backend config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"api_key":"file-key","store_backend":"pgvector","postgres_url":"postgres://u:p@db:5432/qa"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("file value not loaded, APIKey = %q", cfg.APIKey)
	}
	if cfg.PostgresURL != "postgres://u:p@db:5432/qa" {
		t.Errorf("file value not loaded, PostgresURL = %q", cfg.PostgresURL)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := defaults()
	cfg.APIKey = "k"
	cfg.StoreBackend = "cassandra"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should fail validation")
	}
}

func TestValidateRequiresAPIKeyForRemoteBackends(t *testing.T) {
	cfg := defaults()
	cfg.StoreBackend = "pgvector"
	if err := cfg.Validate(); err == nil {
		t.Error("pgvector backend without API key should fail validation")
	}
}

func TestHasValidAPI(t *testing.T) {
	cfg := defaults()
	if cfg.HasValidAPI() {
		t.Error("empty key should not count as a usable API")
	}
	cfg.APIKey = "   "
	if cfg.HasValidAPI() {
		t.Error("whitespace key should not count as a usable API")
	}
	cfg.APIKey = "sk-test"
	if !cfg.HasValidAPI() {
		t.Error("non-empty key should count as a usable API")
	}
}
