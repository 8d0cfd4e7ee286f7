package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs at startup. Values come from the
// environment (optionally pre-populated from a .env file by godotenv).
type Config struct {
	Env        string
	Port       string
	GinMode    string
	CORSOrigin string

	DBDriver   string // postgres | sqlite
	DSN        string
	SQLitePath string

	RecordStore   string // mongo | memory
	MongoURI      string
	MongoDatabase string

	OpenAIBaseURL      string
	OpenAIAPIKey       string
	OpenAIModel        string
	LLMCostPer1KTokens float64

	MLServiceURL string
	MLTimeout    time.Duration

	StorageMode   string // local | gcs
	UploadDir     string
	GCSBucket     string
	PublicBaseURL string

	SampleSize        int
	IngestConcurrency int

	RedisAddr    string
	RedisChannel string

	SessionSecret string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Env:                getEnv("ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		CORSOrigin:         getEnv("CORS_ORIGIN", "http://localhost:3000"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		SQLitePath:         getEnv("SQLITE_PATH", "wada.db"),
		RecordStore:        strings.ToLower(getEnv("RECORD_STORE", "mongo")),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DATABASE", "wada"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
		LLMCostPer1KTokens: getFloat("LLM_COST_PER_1K_TOKENS", 0.005),
		MLServiceURL:       strings.TrimRight(getEnv("ML_SERVICE_URL", "http://localhost:8000"), "/"),
		MLTimeout:          time.Duration(getInt("ML_TIMEOUT_SECONDS", 300)) * time.Second,
		StorageMode:        strings.ToLower(getEnv("STORAGE_MODE", "local")),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads/datasets"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		PublicBaseURL:      strings.TrimRight(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL"), "/"),
		SampleSize:         getInt("SAMPLE_SIZE", 20),
		IngestConcurrency:  getInt("INGEST_CONCURRENCY", 4),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannel:       getEnv("REDIS_CHANNEL", "analysis-events"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
	}
	cfg.DSN = databaseDSN()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("DATABASE_URL or DB_HOST is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.RecordStore {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown RECORD_STORE %q", c.RecordStore)
	}
	switch c.StorageMode {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_MODE=gcs")
		}
	default:
		return fmt.Errorf("unknown STORAGE_MODE %q", c.StorageMode)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("SAMPLE_SIZE must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in a local/dev environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}

func databaseDSN() string {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn
	}
	if os.Getenv("DB_HOST") == "" {
		return ""
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
