package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Storage.IndexBackend != "sqlite" {
		t.Errorf("IndexBackend = %q, want sqlite", cfg.Storage.IndexBackend)
	}
	if cfg.Session.MaxTokens != 2000 || cfg.Session.IdleTTL != time.Hour {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Ingest.ChunkChars != 1000 || cfg.Ingest.OverlapChars != 200 {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEMORA_PORT", "9000")
	t.Setenv("MEMORA_CHAT_MODEL", "mistral")
	t.Setenv("MEMORA_MCP_ENABLED", "true")
	t.Setenv("MEMORA_SESSION_IDLE_TTL", "30m")
	t.Setenv("MEMORA_INDEX_BACKEND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ollama.ChatModel != "mistral" {
		t.Errorf("ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("MCPEnabled not applied")
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("IdleTTL = %v", cfg.Session.IdleTTL)
	}
	if cfg.Storage.IndexBackend != "memory" {
		t.Errorf("IndexBackend = %q", cfg.Storage.IndexBackend)
	}
}

func TestLoad_MalformedEnvKeepsDefault(t *testing.T) {
	t.Setenv("MEMORA_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("MEMORA_INDEX_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_OverlapMustBeSmallerThanChunk(t *testing.T) {
	t.Setenv("MEMORA_CHUNK_SIZE", "100")
	t.Setenv("MEMORA_CHUNK_OVERLAP", "100")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}
}
