// Package config provides configuration management for the AI Buddy backend.
// It loads settings from environment variables with the AIBUDDY_ prefix and
// provides sensible defaults for all configuration options. An optional YAML
// file (AIBUDDY_CONFIG_FILE) is applied on top of the environment, so
// deployments can keep tuning in one place while secrets stay in the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the AI Buddy backend.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Registry RegistryConfig `yaml:"registry"`
	LLM      LLMConfig      `yaml:"llm"`
	Chat     ChatConfig     `yaml:"chat"`
}

// StorageConfig selects and tunes the vector store backend.
type StorageConfig struct {
	Backend          string `yaml:"backend"`            // vector backend: chromem, qdrant, postgres (default: chromem)
	MemoryCollection string `yaml:"memory_collection"`  // collection for conversational memories (default: ai_buddy_memory)
	DocCollection    string `yaml:"doc_collection"`     // collection for document chunks (default: ai_buddy_docs)
	Dimension        int    `yaml:"dimension"`          // embedding dimension (default: 768)
	QdrantURL        string `yaml:"qdrant_url"`         // Qdrant REST endpoint (default: http://localhost:6333)
	QdrantAPIKey     string `yaml:"qdrant_api_key"`     // Qdrant API key
	PostgresDSN      string `yaml:"postgres_dsn"`       // pgvector connection string
	MaxChunkChars    int    `yaml:"max_chunk_chars"`    // document chunk budget (default: 1200)
	EmbedRatePerSec  int    `yaml:"embed_rate_per_sec"` // embedding calls per second, 0 disables limiting (default: 0)
	WatchDir         string `yaml:"watch_dir"`          // drop folder for document auto-ingest, empty disables
}

// RegistryConfig selects the relational store for transcripts and summaries.
type RegistryConfig struct {
	Engine     string `yaml:"engine"`      // registry engine: sqlite, mongo (default: sqlite)
	SQLitePath string `yaml:"sqlite_path"` // SQLite database path (default: ./data/aibuddy.db)
	MongoURI   string `yaml:"mongo_uri"`   // MongoDB connection URI (default: mongodb://localhost:27017)
	MongoDB    string `yaml:"mongo_db"`    // MongoDB database name (default: ai_buddy)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string `yaml:"provider"`               // text provider: ollama, openai, anthropic (default: ollama)
	EmbeddingProvider    string `yaml:"embedding_provider"`     // embedding provider, defaults to Provider
	OllamaURL            string `yaml:"ollama_url"`             // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string `yaml:"ollama_model"`           // Ollama chat model (default: qwen2.5:7b)
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"` // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIModel          string `yaml:"openai_model"` // default: gpt-4
	AnthropicAPIKey      string `yaml:"anthropic_api_key"`
	AnthropicModel       string `yaml:"anthropic_model"` // default: claude-3-5-sonnet-20241022
}

// ChatConfig tunes the turn pipeline.
type ChatConfig struct {
	AgentID               string `yaml:"agent_id"`                // memory agent scope (default: general)
	MaxHistoryTurns       int    `yaml:"max_history_turns"`       // transcript turns rendered into the prompt (default: 4)
	MemoryLimit           int    `yaml:"memory_limit"`            // memory snippets per prompt (default: 5)
	DocumentLimit         int    `yaml:"document_limit"`          // document chunks per prompt (default: 5)
	SummaryLimit          int    `yaml:"summary_limit"`           // recent session summaries per prompt (default: 2)
	ChatSearchLimit       int    `yaml:"chat_search_limit"`       // memory hits fetched per search tier (default: 5)
	HistoryFetchLimit     int    `yaml:"history_fetch_limit"`     // transcript rows loaded per turn (default: 50)
	SummaryInterval       int    `yaml:"summary_interval"`        // summarize every n-th turn (default: 6)
	SummaryTokenThreshold int    `yaml:"summary_token_threshold"` // summarize once the context passes this size (default: 2000)
}

// LoadConfig loads configuration from environment variables, then applies the
// YAML file named by AIBUDDY_CONFIG_FILE (or configPath when non-empty) on
// top. A missing file is only an error when it was requested explicitly.
func LoadConfig(configPath string) (*Config, error) {
	cfg := buildBaseConfig()

	path := configPath
	if path == "" {
		path = os.Getenv("AIBUDDY_CONFIG_FILE")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:          getEnv("AIBUDDY_STORAGE_BACKEND", "chromem"),
			MemoryCollection: getEnv("AIBUDDY_MEMORY_COLLECTION", "ai_buddy_memory"),
			DocCollection:    getEnv("AIBUDDY_DOC_COLLECTION", "ai_buddy_docs"),
			Dimension:        getEnvInt("AIBUDDY_EMBEDDING_DIMENSION", 768),
			QdrantURL:        getEnv("AIBUDDY_QDRANT_URL", "http://localhost:6333"),
			QdrantAPIKey:     getEnv("AIBUDDY_QDRANT_API_KEY", ""),
			PostgresDSN:      getEnv("AIBUDDY_POSTGRES_DSN", ""),
			MaxChunkChars:    getEnvInt("AIBUDDY_MAX_CHUNK_CHARS", 1200),
			EmbedRatePerSec:  getEnvInt("AIBUDDY_EMBED_RATE_PER_SEC", 0),
			WatchDir:         getEnv("AIBUDDY_WATCH_DIR", ""),
		},
		Registry: RegistryConfig{
			Engine:     getEnv("AIBUDDY_REGISTRY_ENGINE", "sqlite"),
			SQLitePath: getEnv("AIBUDDY_SQLITE_PATH", "./data/aibuddy.db"),
			MongoURI:   getEnv("AIBUDDY_MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:    getEnv("AIBUDDY_MONGO_DB", "ai_buddy"),
		},
		LLM: LLMConfig{
			Provider:             getEnv("AIBUDDY_LLM_PROVIDER", "ollama"),
			EmbeddingProvider:    getEnv("AIBUDDY_EMBEDDING_PROVIDER", ""),
			OllamaURL:            getEnv("AIBUDDY_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("AIBUDDY_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("AIBUDDY_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("AIBUDDY_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("AIBUDDY_OPENAI_MODEL", "gpt-4"),
			AnthropicAPIKey:      getEnv("AIBUDDY_ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnv("AIBUDDY_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		},
		Chat: ChatConfig{
			AgentID:               getEnv("AIBUDDY_AGENT_ID", "general"),
			MaxHistoryTurns:       getEnvInt("AIBUDDY_MAX_HISTORY_TURNS", 4),
			MemoryLimit:           getEnvInt("AIBUDDY_MEMORY_LIMIT", 5),
			DocumentLimit:         getEnvInt("AIBUDDY_DOCUMENT_LIMIT", 5),
			SummaryLimit:          getEnvInt("AIBUDDY_SUMMARY_LIMIT", 2),
			ChatSearchLimit:       getEnvInt("AIBUDDY_CHAT_SEARCH_LIMIT", 5),
			HistoryFetchLimit:     getEnvInt("AIBUDDY_HISTORY_FETCH_LIMIT", 50),
			SummaryInterval:       getEnvInt("AIBUDDY_SUMMARY_INTERVAL", 6),
			SummaryTokenThreshold: getEnvInt("AIBUDDY_SUMMARY_TOKEN_THRESHOLD", 2000),
		},
	}
}

// EmbeddingProviderName returns the embedding provider, falling back to the
// text provider when unset.
func (c *Config) EmbeddingProviderName() string {
	if c.LLM.EmbeddingProvider != "" {
		return c.LLM.EmbeddingProvider
	}
	return c.LLM.Provider
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
