package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	MaxTextLength      int    // Longest accepted input text in characters (0 = unlimited)

	// Text model
	LLMProvider   string // gemini, openai, anthropic or ollama
	GeminiKey     string
	GeminiModel   string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string // Optional OpenAI-compatible endpoint
	OllamaModel   string // Host comes from OLLAMA_HOST

	AnthropicKey     string
	AnthropicModel   string
	AnthropicBaseURL string

	// ElevenLabs
	ElevenLabsKey            string
	ElevenLabsBaseURL        string
	ElevenLabsModel          string
	ElevenLabsDefaultVoiceID string // Used when the catalog is empty
	VoiceStability           float64
	VoiceSimilarityBoost     float64
	VoiceStyle               float64

	// Pipeline
	MaxConcurrentSegments int
	ModelTimeout          time.Duration
	SynthesisTimeout      time.Duration
	CatalogTimeout        time.Duration
	CatalogRefresh        time.Duration // 0 = load once at startup
	TempDir               string

	// Async renders (optional)
	AsyncRendersEnabled   bool
	DatabaseURL           string
	RedisURL              string
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	MaxConcurrentJobs     int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                  getEnv("API_PORT", "8080"),
		CorsAllowedOrigins:       getEnv("CORS_ALLOWED_ORIGINS", ""),
		MaxTextLength:            getEnvInt("MAX_TEXT_LENGTH", 20000),
		LLMProvider:              strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiKey:                getEnv("GEMINI_API_KEY", ""),
		GeminiModel:              getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIKey:                getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:              getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:            getEnv("OPENAI_BASE_URL", ""),
		OllamaModel:              getEnv("OLLAMA_MODEL", "llama3.2"),
		AnthropicKey:             getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:           getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		AnthropicBaseURL:         getEnv("ANTHROPIC_BASE_URL", ""),
		ElevenLabsKey:            getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL:        getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsModel:          getEnv("ELEVENLABS_MODEL", "eleven_monolingual_v1"),
		ElevenLabsDefaultVoiceID: getEnv("ELEVENLABS_DEFAULT_VOICE_ID", ""),
		VoiceStability:           getEnvFloat("VOICE_STABILITY", 0.5),
		VoiceSimilarityBoost:     getEnvFloat("VOICE_SIMILARITY_BOOST", 0.5),
		VoiceStyle:               getEnvFloat("VOICE_STYLE", 0),
		MaxConcurrentSegments:    getEnvInt("MAX_CONCURRENT_SEGMENTS", 4),
		ModelTimeout:             getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		SynthesisTimeout:         getEnvDuration("SYNTHESIS_TIMEOUT", 90*time.Second),
		CatalogTimeout:           getEnvDuration("CATALOG_TIMEOUT", 15*time.Second),
		CatalogRefresh:           getEnvDuration("VOICE_CATALOG_REFRESH_INTERVAL", 0),
		TempDir:                  getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "storyvoice")),
		AsyncRendersEnabled:      getEnvBool("ASYNC_RENDERS_ENABLED", false),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:              getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:       getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:    getEnv("SUPABASE_STORAGE_BUCKET", "storyvoice-audio"),
		MaxConcurrentJobs:        getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ElevenLabsKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}

	switch c.LLMProvider {
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "ollama":
		// no key; OLLAMA_HOST defaults to localhost
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (want gemini, openai, anthropic or ollama)", c.LLMProvider)
	}

	if c.MaxConcurrentSegments < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SEGMENTS must be at least 1")
	}

	if c.AsyncRendersEnabled {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ASYNC_RENDERS_ENABLED=true")
		}
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when ASYNC_RENDERS_ENABLED=true")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
