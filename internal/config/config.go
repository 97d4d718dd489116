// Package config loads runtime configuration for clipvault.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSurrealDB = "surrealdb"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// Vision model providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort string
	UploadDir  string
	WorkDir    string

	// Store selection
	Store string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// PostgreSQL connection (Store == "postgres")
	PostgresDSN string

	// Frame sampling
	FFmpegPath      string
	FFprobePath     string
	MinSourceBytes  int64
	FrameCount      int
	FrameMaxDimSize int

	// Vision model
	VisionProvider   string
	VisionModel      string
	OllamaHost       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	AWSRegion        string
	ClassifyInterval time.Duration
	ClassifyTimeout  time.Duration

	// Moderation policy
	Policy          string
	PolicyThreshold float64
	PolicyFile      string
	Prompt          string

	// Jobs
	JobConcurrency int
	JobTimeout     time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServerPort: getEnv("CLIPVAULT_SERVER_PORT", "8484"),
		UploadDir:  getEnv("CLIPVAULT_UPLOAD_DIR", "uploads"),
		WorkDir:    getEnv("CLIPVAULT_WORK_DIR", os.TempDir()),

		Store: strings.ToLower(getEnv("CLIPVAULT_STORE", StoreSurrealDB)),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "clipvault"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "library"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=clipvault port=5432 sslmode=disable"),

		FFmpegPath:      getEnv("CLIPVAULT_FFMPEG", "ffmpeg"),
		FFprobePath:     getEnv("CLIPVAULT_FFPROBE", "ffprobe"),
		MinSourceBytes:  getEnvInt64("CLIPVAULT_MIN_SOURCE_BYTES", 1024),
		FrameCount:      getEnvInt("CLIPVAULT_FRAME_COUNT", 5),
		FrameMaxDimSize: getEnvInt("CLIPVAULT_FRAME_MAX_DIMENSION", 768),

		VisionProvider:   strings.ToLower(getEnv("CLIPVAULT_VISION_PROVIDER", ProviderOllama)),
		VisionModel:      getEnv("CLIPVAULT_VISION_MODEL", "llava:7b"),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		ClassifyInterval: getEnvDuration("CLIPVAULT_CLASSIFY_INTERVAL", 500*time.Millisecond),
		ClassifyTimeout:  getEnvDuration("CLIPVAULT_CLASSIFY_TIMEOUT", 60*time.Second),

		Policy:          strings.ToLower(getEnv("CLIPVAULT_POLICY", "zero_tolerance")),
		PolicyThreshold: getEnvFloat("CLIPVAULT_POLICY_THRESHOLD", 0.5),
		PolicyFile:      getEnv("CLIPVAULT_POLICY_FILE", ""),

		JobConcurrency: getEnvInt("CLIPVAULT_JOB_CONCURRENCY", 4),
		JobTimeout:     getEnvDuration("CLIPVAULT_JOB_TIMEOUT", 10*time.Minute),

		LogFile:  getEnv("CLIPVAULT_LOG_FILE", "/tmp/clipvault.log"),
		LogLevel: parseLogLevel(getEnv("CLIPVAULT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
