package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment   string
	HTTPAddr      string
	DataDir       string
	DBPath        string
	LogLevel      string
	TranscriptDir string

	LLMProvider   string // ollama | openai | anthropic
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	EmbeddingProvider   string // ollama | genai
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingTimeoutSec int

	PolicyDir              string
	PolicyIndexPath        string
	PolicyMetaPath         string
	PolicySidecarURL       string
	PolicySidecarAddr      string
	PolicySearchTopK       int
	PolicySearchTimeoutSec int
	PolicyMaxChunkChars    int
	PolicyReindexCron      string

	MutationsRequireApproval bool

	QueryRateLimit            int
	QueryRateWindowSec        int
	QueryRateExemptRequesters []string

	APIURL        string
	APITimeoutSec int
}

func FromEnv() Config {
	dataDir := stringOrDefault("ROSTER_ASSIST_DATA_DIR", "/data")
	dbPath := stringOrDefault("ROSTER_ASSIST_DB_PATH", filepath.Join(dataDir, "roster-assist", "roster.sqlite"))
	indexDir := filepath.Join(dataDir, "roster-assist", "policy-index")
	llmProvider := strings.ToLower(stringOrDefault("ROSTER_ASSIST_LLM_PROVIDER", "ollama"))
	embeddingProvider := strings.ToLower(stringOrDefault("ROSTER_ASSIST_EMBEDDING_PROVIDER", "ollama"))

	return Config{
		Environment:   stringOrDefault("ROSTER_ASSIST_ENV", "development"),
		HTTPAddr:      stringOrDefault("ROSTER_ASSIST_HTTP_ADDR", ":8080"),
		DataDir:       dataDir,
		DBPath:        dbPath,
		LogLevel:      strings.ToLower(stringOrDefault("ROSTER_ASSIST_LOG_LEVEL", "info")),
		TranscriptDir: strings.TrimSpace(os.Getenv("ROSTER_ASSIST_TRANSCRIPT_DIR")),

		LLMProvider:   llmProvider,
		LLMBaseURL:    stringOrDefault("ROSTER_ASSIST_LLM_BASE_URL", defaultLLMBaseURL(llmProvider)),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("ROSTER_ASSIST_LLM_API_KEY")),
		LLMModel:      stringOrDefault("ROSTER_ASSIST_LLM_MODEL", defaultLLMModel(llmProvider)),
		LLMTimeoutSec: intOrDefault("ROSTER_ASSIST_LLM_TIMEOUT_SECONDS", 90),

		EmbeddingProvider:   embeddingProvider,
		EmbeddingBaseURL:    stringOrDefault("ROSTER_ASSIST_EMBEDDING_BASE_URL", defaultEmbeddingBaseURL(embeddingProvider)),
		EmbeddingAPIKey:     strings.TrimSpace(os.Getenv("ROSTER_ASSIST_EMBEDDING_API_KEY")),
		EmbeddingModel:      stringOrDefault("ROSTER_ASSIST_EMBEDDING_MODEL", defaultEmbeddingModel(embeddingProvider)),
		EmbeddingTimeoutSec: intOrDefault("ROSTER_ASSIST_EMBEDDING_TIMEOUT_SECONDS", 30),

		PolicyDir:              stringOrDefault("ROSTER_ASSIST_POLICY_DIR", filepath.Join(dataDir, "policies")),
		PolicyIndexPath:        stringOrDefault("ROSTER_ASSIST_POLICY_INDEX_PATH", filepath.Join(indexDir, "policy_index.bin")),
		PolicyMetaPath:         stringOrDefault("ROSTER_ASSIST_POLICY_META_PATH", filepath.Join(indexDir, "policy_index.json")),
		PolicySidecarURL:       strings.TrimSpace(os.Getenv("ROSTER_ASSIST_POLICY_SIDECAR_URL")),
		PolicySidecarAddr:      stringOrDefault("ROSTER_ASSIST_POLICY_SIDECAR_ADDR", ":8091"),
		PolicySearchTopK:       intOrDefault("ROSTER_ASSIST_POLICY_SEARCH_TOP_K", 5),
		PolicySearchTimeoutSec: intOrDefault("ROSTER_ASSIST_POLICY_SEARCH_TIMEOUT_SECONDS", 10),
		PolicyMaxChunkChars:    intOrDefault("ROSTER_ASSIST_POLICY_MAX_CHUNK_CHARS", 1200),
		PolicyReindexCron:      strings.TrimSpace(os.Getenv("ROSTER_ASSIST_POLICY_REINDEX_CRON")),

		MutationsRequireApproval: boolOrDefault("ROSTER_ASSIST_MUTATIONS_REQUIRE_APPROVAL", false),

		QueryRateLimit:            intOrDefault("ROSTER_ASSIST_QUERY_RATE_LIMIT", 0),
		QueryRateWindowSec:        intOrDefault("ROSTER_ASSIST_QUERY_RATE_WINDOW_SECONDS", 60),
		QueryRateExemptRequesters: listFromEnv("ROSTER_ASSIST_QUERY_RATE_EXEMPT"),

		APIURL:        stringOrDefault("ROSTER_ASSIST_API_URL", "http://localhost:8080"),
		APITimeoutSec: intOrDefault("ROSTER_ASSIST_API_TIMEOUT_SECONDS", 120),
	}
}

func defaultLLMBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic":
		return "https://api.anthropic.com/v1"
	default:
		return "http://localhost:11434"
	}
}

func defaultLLMModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "llama3:8b"
	}
}

// defaultEmbeddingBaseURL is empty for genai, which then uses the SDK's
// own endpoint.
func defaultEmbeddingBaseURL(provider string) string {
	if provider == "genai" {
		return ""
	}
	return "http://localhost:11434"
}

func defaultEmbeddingModel(provider string) string {
	if provider == "genai" {
		return "gemini-embedding-001"
	}
	return "nomic-embed-text"
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func listFromEnv(name string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
