// Package config provides configuration for the chat orchestration service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int
	LogLevel string

	// Usage ledger
	DatabaseURL string

	// Attachment handling
	AllowedStorageHosts []string
	MaxFileBytes        int64
	SyncTranscribeBytes int64
	RawHeadBytes        int

	// Collaborators
	BlobBaseURL       string
	BlobToken         string
	TranscribeBaseURL string
	TranscribeKey     string
	DocQABaseURL      string
	DocQAKey          string
	AgentAPIBaseURL   string
	AgentAPIKey       string
	FFmpegPath        string

	// Web search tool
	SearchBaseURL     string
	SearchKey         string
	SearchResultCount int

	// Knowledge-base retrieval (applied at model-call time)
	RetrievalEndpoint string
	RetrievalTopN     int
	SemanticConfig    string

	// Upstream model providers
	ResponsesEndpoint  string
	ResponsesKey       string
	ChatEndpoint       string
	ChatKey            string
	AnthropicEndpoint  string
	AnthropicKey       string
	AnthropicVersion   string
	RouterModel        string
	ProviderTimeout    time.Duration
	MaxCompletionSize  int

	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int
	RateLimitSweep     time.Duration

	// Model catalog
	ModelCatalogPath string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", "file:chatd.db?cache=shared&mode=rwc"),

		AllowedStorageHosts: splitEnv("ALLOWED_STORAGE_HOSTS", "storage.internal"),
		MaxFileBytes:        getEnvInt64("MAX_FILE_BYTES", 512<<20),
		SyncTranscribeBytes: getEnvInt64("SYNC_TRANSCRIBE_BYTES", 25<<20),
		RawHeadBytes:        getEnvInt("RAW_HEAD_BYTES", 4096),

		BlobBaseURL:       getEnv("BLOB_BASE_URL", "http://localhost:9000"),
		BlobToken:         getEnv("BLOB_TOKEN", ""),
		TranscribeBaseURL: getEnv("TRANSCRIBE_BASE_URL", "http://localhost:9100"),
		TranscribeKey:     getEnv("TRANSCRIBE_KEY", ""),
		DocQABaseURL:      getEnv("DOCQA_BASE_URL", "http://localhost:9200"),
		DocQAKey:          getEnv("DOCQA_KEY", ""),
		AgentAPIBaseURL:   getEnv("AGENT_API_BASE_URL", "http://localhost:9300"),
		AgentAPIKey:       getEnv("AGENT_API_KEY", ""),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),

		SearchBaseURL:     getEnv("SEARCH_BASE_URL", "http://localhost:9400"),
		SearchKey:         getEnv("SEARCH_KEY", ""),
		SearchResultCount: getEnvInt("SEARCH_RESULT_COUNT", 5),

		RetrievalEndpoint: getEnv("RETRIEVAL_ENDPOINT", ""),
		RetrievalTopN:     getEnvInt("RETRIEVAL_TOP_N", 5),
		SemanticConfig:    getEnv("RETRIEVAL_SEMANTIC_CONFIG", "default"),

		ResponsesEndpoint: getEnv("RESPONSES_ENDPOINT", ""),
		ResponsesKey:      getEnv("RESPONSES_KEY", ""),
		ChatEndpoint:      getEnv("CHAT_ENDPOINT", ""),
		ChatKey:           getEnv("CHAT_KEY", ""),
		AnthropicEndpoint: getEnv("ANTHROPIC_ENDPOINT", "https://api.anthropic.com"),
		AnthropicKey:      getEnv("ANTHROPIC_KEY", ""),
		AnthropicVersion:  getEnv("ANTHROPIC_VERSION", "2023-06-01"),
		RouterModel:       getEnv("ROUTER_MODEL", "gpt-4o-mini"),
		ProviderTimeout:   time.Duration(getEnvInt("PROVIDER_TIMEOUT_MS", 300000)) * time.Millisecond,
		MaxCompletionSize: getEnvInt("MAX_COMPLETION_TOKENS", 4096),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		RateLimitSweep:     time.Duration(getEnvInt("RATE_LIMIT_SWEEP_MS", 600000)) * time.Millisecond,

		ModelCatalogPath: getEnv("MODEL_CATALOG_PATH", ""),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func splitEnv(key, defaultVal string) []string {
	raw := getEnv(key, defaultVal)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
