package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/priority"
	"sponsor_worker/pkg/apperr"
)

const dateLayout = "2006-01-02"

// Mode selects which settings Validate requires.
type Mode string

const (
	ModeRun     Mode = "run"
	ModeCollect Mode = "collect"
	ModeProcess Mode = "process"
	ModeServe   Mode = "serve"
	ModeStore   Mode = "store" // setup, stats, task
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// Gmail
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRefreshToken  string
	GmailAccountIndex   int
	GmailMaxConcurrency int

	// OpenAI
	OpenAIAPIKey   string
	LLMBaseURL     string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Mailbox owner, excluded from participants
	OwnerEmail string
	OwnerName  string

	// Pipeline
	CollectionStartDate time.Time
	MaxResults          int
	ProcessLimit        int
	ProcessWorkers      int
	RunLockTTL          time.Duration
	ScheduleInterval    time.Duration

	// Vocabularies, optionally overridden from VocabularyFile
	VocabularyFile string
	Vocabulary     keyword.Vocabulary
	Priority       priority.Config

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	startDate, err := getEnvDate("COLLECTION_START_DATE", time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "sponsor_crm"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Gmail
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken:  getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GmailAccountIndex:   getEnvInt("GMAIL_ACCOUNT_INDEX", 0),
		GmailMaxConcurrency: getEnvInt("GMAIL_MAX_CONCURRENCY", 10),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		OwnerEmail: strings.ToLower(getEnv("OWNER_EMAIL", "")),
		OwnerName:  getEnv("OWNER_NAME", ""),

		// Pipeline
		CollectionStartDate: startDate,
		MaxResults:          getEnvInt("MAX_RESULTS", 500),
		ProcessLimit:        getEnvInt("PROCESS_LIMIT", 100),
		ProcessWorkers:      getEnvInt("PROCESS_WORKERS", 4),
		RunLockTTL:          time.Duration(getEnvInt("RUN_LOCK_TTL_SEC", 900)) * time.Second,
		ScheduleInterval:    time.Duration(getEnvInt("SCHEDULE_INTERVAL_MIN", 0)) * time.Minute,

		VocabularyFile: getEnv("VOCABULARY_FILE", ""),
		Vocabulary:     keyword.DefaultVocabulary(),
		Priority:       priority.DefaultConfig(),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.VocabularyFile != "" {
		if err := cfg.applyVocabularyFile(cfg.VocabularyFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate reports every setting the mode needs but lacks. Dry runs do not
// need a database.
func (c *Config) Validate(mode Mode, dryRun bool) error {
	required := map[string]string{}
	// serve with a schedule runs the full pipeline
	scheduled := mode == ModeServe && c.ScheduleInterval > 0
	needGmail := mode == ModeRun || mode == ModeCollect || scheduled
	needLLM := mode == ModeRun || mode == ModeProcess || scheduled

	if needGmail {
		required["GOOGLE_CLIENT_ID"] = c.GoogleClientID
		required["GOOGLE_CLIENT_SECRET"] = c.GoogleClientSecret
		required["GOOGLE_REFRESH_TOKEN"] = c.GoogleRefreshToken
		required["OWNER_EMAIL"] = c.OwnerEmail
	}
	if needLLM {
		required["OPENAI_API_KEY"] = c.OpenAIAPIKey
	}
	if !dryRun || mode == ModeServe || mode == ModeStore {
		required["DATABASE_URL"] = c.DatabaseURL
	}
	if mode == ModeServe {
		required["JWT_SECRET"] = c.JWTSecret
	}

	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperr.ConfigError("missing required configuration: "+strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}

	var invalid []string
	if c.ProcessWorkers < 1 {
		invalid = append(invalid, "PROCESS_WORKERS must be at least 1")
	}
	if c.MaxResults < 1 {
		invalid = append(invalid, "MAX_RESULTS must be at least 1")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		invalid = append(invalid, "LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.GmailAccountIndex < 0 {
		invalid = append(invalid, "GMAIL_ACCOUNT_INDEX must not be negative")
	}
	if len(invalid) > 0 {
		return apperr.ConfigError(strings.Join(invalid, "; ")).WithDetail("invalid", invalid)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvDate(key string, defaultValue time.Time) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.ConfigError(fmt.Sprintf("%s must be YYYY-MM-DD", key)).WithError(err)
	}
	return t, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
