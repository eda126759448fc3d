package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the spam detection service
type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Throttle ThrottleConfig
	LogLevel string
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	CORSAllowedOrigin string
}

// ModelConfig controls training and persistence of the classifier
type ModelConfig struct {
	DatasetPath  string
	ModelPath    string
	TrainOnStart bool
	StripHTML    bool
	AdminToken   string
}

// StorageConfig selects the user and history backend
type StorageConfig struct {
	Backend      string
	Dir          string
	HistoryLimit int
}

// AuthConfig covers token signing and the Argon2id cost of password hashes
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	Issuer         string
	HashMemoryKB   int
	HashIterations int
	HashThreads    int
}

// ThrottleConfig bounds how often a single user can hit the classifier
type ThrottleConfig struct {
	Enabled         bool
	MinDelay        time.Duration
	MaxConcurrent   int
	StateExpiry     time.Duration
	CleanupInterval time.Duration
}

const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:              GetStringEnv("SERVER_ADDR", ":5000"),
			ReadTimeout:       GetDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:      GetDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout:   GetDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			CORSAllowedOrigin: GetStringEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		Model: ModelConfig{
			DatasetPath:  GetStringEnv("DATASET_PATH", "dataset.csv"),
			ModelPath:    GetStringEnv("MODEL_PATH", "spam_model.json"),
			TrainOnStart: GetBoolEnv("TRAIN_ON_START", true),
			StripHTML:    GetBoolEnv("STRIP_HTML", true),
			AdminToken:   GetStringEnv("ADMIN_TOKEN", ""),
		},
		Storage: StorageConfig{
			Backend:      GetStringEnv("STORAGE_BACKEND", BackendFile),
			Dir:          GetStringEnv("STORAGE_DIR", "./data"),
			HistoryLimit: GetIntEnv("HISTORY_LIMIT", 50),
		},
		Auth: AuthConfig{
			JWTSecret: GetStringEnv("JWT_SECRET", "super-secret-key-change-in-production"),
			TokenTTL:  GetDurationEnv("JWT_TTL", 24*time.Hour),
			Issuer:    GetStringEnv("JWT_ISSUER", "spam-api"),

			HashMemoryKB:   GetIntEnv("PASSWORD_HASH_MEMORY_KB", 64*1024),
			HashIterations: GetIntEnv("PASSWORD_HASH_ITERATIONS", 3),
			HashThreads:    GetIntEnv("PASSWORD_HASH_THREADS", 2),
		},
		Throttle: ThrottleConfig{
			Enabled:         GetBoolEnv("THROTTLE_ENABLED", true),
			MinDelay:        GetDurationEnv("THROTTLE_MIN_DELAY", 200*time.Millisecond),
			MaxConcurrent:   GetIntEnv("THROTTLE_MAX_CONCURRENT", 2),
			StateExpiry:     GetDurationEnv("THROTTLE_STATE_EXPIRY", 10*time.Minute),
			CleanupInterval: GetDurationEnv("THROTTLE_CLEANUP_INTERVAL", time.Minute),
		},
		LogLevel: GetStringEnv("LOG_LEVEL", "info"),
	}
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
