// Package config loads runtime configuration from defaults, an optional
// .env file, and MEMORA_* environment variables, in that order of
// precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Session   SessionConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir      string
	IndexBackend string // "sqlite" or "memory"
}

type SessionConfig struct {
	MaxTokens   int
	MaxMessages int
	IdleTTL     time.Duration
	Greeting    string
}

type IngestConfig struct {
	ChunkChars     int
	OverlapChars   int
	MaxUploadBytes int
}

type RetrievalConfig struct {
	TopK            int
	ContextBudget   int
	PromptMaxTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       8000,
			MCPEnabled: false,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir:      defaultDataDir(),
			IndexBackend: "sqlite",
		},
		Session: SessionConfig{
			MaxTokens:   2000,
			MaxMessages: 20,
			IdleTTL:     time.Hour,
		},
		Ingest: IngestConfig{
			ChunkChars:     1000,
			OverlapChars:   200,
			MaxUploadBytes: 10 << 20,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			ContextBudget:   1500,
			PromptMaxTokens: 4000,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memora"
	}
	return filepath.Join(home, ".memora")
}

// Load reads configuration. A .env file in the working directory is applied
// first when present; MEMORA_* environment variables override everything.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	envStr("MEMORA_OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	envStr("MEMORA_CHAT_MODEL", &cfg.Ollama.ChatModel)
	envStr("MEMORA_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	envStr("MEMORA_DATA_DIR", &cfg.Storage.DataDir)
	envStr("MEMORA_INDEX_BACKEND", &cfg.Storage.IndexBackend)
	envStr("MEMORA_GREETING", &cfg.Session.Greeting)
	envStr("MEMORA_LOG_LEVEL", &cfg.Log.Level)

	envInt("MEMORA_PORT", &cfg.Server.Port)
	envInt("MEMORA_SESSION_MAX_TOKENS", &cfg.Session.MaxTokens)
	envInt("MEMORA_SESSION_MAX_MESSAGES", &cfg.Session.MaxMessages)
	envInt("MEMORA_CHUNK_SIZE", &cfg.Ingest.ChunkChars)
	envInt("MEMORA_CHUNK_OVERLAP", &cfg.Ingest.OverlapChars)
	envInt("MEMORA_UPLOAD_MAX_BYTES", &cfg.Ingest.MaxUploadBytes)
	envInt("MEMORA_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	envInt("MEMORA_CONTEXT_BUDGET", &cfg.Retrieval.ContextBudget)
	envInt("MEMORA_PROMPT_MAX_TOKENS", &cfg.Retrieval.PromptMaxTokens)

	envBool("MEMORA_MCP_ENABLED", &cfg.Server.MCPEnabled)

	envDuration("MEMORA_SESSION_IDLE_TTL", &cfg.Session.IdleTTL)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	switch cfg.Storage.IndexBackend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown index backend %q (want sqlite or memory)", cfg.Storage.IndexBackend)
	}
	if cfg.Ingest.OverlapChars >= cfg.Ingest.ChunkChars {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Ingest.OverlapChars, cfg.Ingest.ChunkChars)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = i
}

func envBool(key string, dst *bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = b
}

func envDuration(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", key, raw, err)
		return
	}
	*dst = d
}
