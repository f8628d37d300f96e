package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers understood by NewFromEnv.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Engine holds the tunables of the plan engine. They can be set in the
// YAML file named by PLAN_ENGINE_CONFIG and overridden by environment variables.
type Engine struct {
	ProposalTimeout     time.Duration `yaml:"proposal_timeout"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
	DailyCalorieCeiling float64       `yaml:"daily_calorie_ceiling"`
	LockTimeout         time.Duration `yaml:"lock_timeout"`
	CommitTimeout       time.Duration `yaml:"commit_timeout"`
	PublishWorkers      int           `yaml:"publish_workers"`
	PublishMaxTries     int           `yaml:"publish_max_tries"`
}

// DefaultEngine returns the engine tunables used when nothing is configured.
func DefaultEngine() Engine {
	return Engine{
		ProposalTimeout:     60 * time.Second,
		RetryBaseDelay:      500 * time.Millisecond,
		DailyCalorieCeiling: 3500,
		LockTimeout:         5 * time.Second,
		CommitTimeout:       5 * time.Second,
		PublishWorkers:      2,
		PublishMaxTries:     5,
	}
}

// Config holds the configuration for the application.
type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	// LLM Config
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	VertexProject  string
	VertexLocation string
	VertexModel    string
	GroqAPIKey     string
	GroqModel      string
	OpenAIAPIKey   string
	OpenAIModel    string
	OllamaBaseURL  string
	OllamaModel    string
	LLMCachePath   string

	// Sync and auth (optional)
	FirebaseProjectID string
	AuthJWTSecret     string
	AuthFirebase      bool

	Engine Engine
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "data/plan-engine.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		VertexProject:  os.Getenv("VERTEX_PROJECT"),
		VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
		VertexModel:    getEnv("VERTEX_MODEL", "gemini-2.5-flash"),
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqModel:      getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1/"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3.1"),
		LLMCachePath:   os.Getenv("LLM_CACHE_PATH"),

		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		AuthJWTSecret:     os.Getenv("AUTH_JWT_SECRET"),

		Engine: DefaultEngine(),
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderVertex:
		if cfg.VertexProject == "" {
			return nil, fmt.Errorf("VERTEX_PROJECT environment variable not set")
		}
	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case ProviderOllama, ProviderNone:
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	if v := os.Getenv("AUTH_FIREBASE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("AUTH_FIREBASE must be a boolean: %w", err)
		}
		cfg.AuthFirebase = b
	}
	if cfg.AuthFirebase && cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID environment variable not set")
	}

	if path := os.Getenv("PLAN_ENGINE_CONFIG"); path != "" {
		if err := cfg.Engine.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Engine.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (e *Engine) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, e); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (e *Engine) loadEnv() error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PROPOSAL_TIMEOUT", &e.ProposalTimeout},
		{"PROPOSAL_RETRY_BASE_DELAY", &e.RetryBaseDelay},
		{"LOCK_TIMEOUT", &e.LockTimeout},
		{"COMMIT_TIMEOUT", &e.CommitTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("DAILY_CALORIE_CEILING"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DAILY_CALORIE_CEILING must be a number: %w", err)
		}
		e.DailyCalorieCeiling = f
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PUBLISH_WORKERS", &e.PublishWorkers},
		{"PUBLISH_MAX_TRIES", &e.PublishMaxTries},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", i.key, err)
		}
		*i.dst = n
	}
	return nil
}

func (e *Engine) validate() error {
	if e.ProposalTimeout <= 0 || e.LockTimeout <= 0 || e.CommitTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive")
	}
	if e.RetryBaseDelay < 0 {
		return fmt.Errorf("retry base delay must not be negative")
	}
	if e.PublishWorkers < 1 || e.PublishMaxTries < 1 {
		return fmt.Errorf("publish workers and tries must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
