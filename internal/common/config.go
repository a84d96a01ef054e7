package common

import (
	"os"
	"strconv"
	"time"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Extractor  ExtractorConfig
	Correction CorrectionConfig
	Pipeline   PipelineConfig
}

// DatabaseConfig holds record-store configuration.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ExtractorConfig holds the OCR collaborator client configuration.
type ExtractorConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ServerConfig holds the review HTTP boundary configuration.
type ServerConfig struct {
	HTTPAddr string
}

// CorrectionConfig holds the correction-service client configuration.
type CorrectionConfig struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	Timeout     time.Duration

	CacheTTL     time.Duration
	CacheMaxSize int

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// PipelineConfig holds orchestration behavior flags and thresholds. It is
// passed into the orchestrator at construction; components never read ambient
// process state.
type PipelineConfig struct {
	ConfidenceThreshold float64
	EnableText          bool
	EnableVision        bool
	// MinTextLength is the scanned-document heuristic: a first page with less
	// extractable text than this routes the record vision-first.
	MinTextLength int
	// MaxPages bounds rendered page images per vision call.
	MaxPages int
	// PageStrategy is "first-n" or "first-last".
	PageStrategy string
	// MaxConcurrentBatches bounds in-flight correction calls per record.
	MaxConcurrentBatches int
	Workers              int
	QueueSize            int
	ProcessTimeout       time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:extractor.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		Extractor: ExtractorConfig{
			BaseURL:      getEnv("OCR_BASE_URL", "http://localhost:9090"),
			Timeout:      getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
			MaxAttempts:  getEnvAsInt("OCR_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvAsDuration("OCR_INITIAL_DELAY", time.Second),
			MaxDelay:     getEnvAsDuration("OCR_MAX_DELAY", 15*time.Second),
		},
		Correction: CorrectionConfig{
			BaseURL:      getEnv("CORRECTION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:       getEnv("CORRECTION_API_KEY", ""),
			TextModel:    getEnv("CORRECTION_TEXT_MODEL", "gpt-4o-mini"),
			VisionModel:  getEnv("CORRECTION_VISION_MODEL", "gpt-4o"),
			Timeout:      getEnvAsDuration("CORRECTION_TIMEOUT", 45*time.Second),
			CacheTTL:     getEnvAsDuration("CORRECTION_CACHE_TTL", 15*time.Minute),
			CacheMaxSize: getEnvAsInt("CORRECTION_CACHE_MAX_SIZE", 512),
			MaxAttempts:  getEnvAsInt("CORRECTION_MAX_ATTEMPTS", 4),
			InitialDelay: getEnvAsDuration("CORRECTION_INITIAL_DELAY", 500*time.Millisecond),
			MaxDelay:     getEnvAsDuration("CORRECTION_MAX_DELAY", 20*time.Second),
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold:  getEnvAsFloat64("CONFIDENCE_THRESHOLD", constants.DefaultConfidenceThreshold),
			EnableText:           getEnvAsBool("ENABLE_TEXT_CORRECTION", true),
			EnableVision:         getEnvAsBool("ENABLE_VISION_CORRECTION", true),
			MinTextLength:        getEnvAsInt("SCANNED_MIN_TEXT_LENGTH", 64),
			MaxPages:             getEnvAsInt("VISION_MAX_PAGES", 4),
			PageStrategy:         getEnv("VISION_PAGE_STRATEGY", "first-n"),
			MaxConcurrentBatches: getEnvAsInt("MAX_CONCURRENT_BATCHES", 4),
			Workers:              getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:            getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			ProcessTimeout:       getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 3*time.Minute),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return WrapError(ErrAuthOrRequest, "DB_URL is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return WrapError(ErrAuthOrRequest, "DB_DRIVER must be postgres or sqlite")
	}
	if c.Extractor.BaseURL == "" {
		return WrapError(ErrAuthOrRequest, "OCR_BASE_URL is required")
	}
	if c.Pipeline.ConfidenceThreshold <= 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return WrapError(ErrAuthOrRequest, "CONFIDENCE_THRESHOLD must be in (0,1]")
	}
	if (c.Pipeline.EnableText || c.Pipeline.EnableVision) && c.Correction.APIKey == "" {
		return WrapError(ErrAuthOrRequest, "CORRECTION_API_KEY is required when correction is enabled")
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
