// Package config loads the dev server settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AuthAddr  string
	MediaAddr string
	// PublicURL is the origin share link URLs are built on.
	PublicURL   string
	Version     string
	CORSOrigins string
	BodyLimit   int

	DefaultStorageLimit int64
	// OAuthDevProvider enables the built-in "dev" OAuth provider, which
	// approves every consent request.
	OAuthDevProvider bool

	DB      DBConfig
	JWT     JWTConfig
	Storage StorageConfig
	Mail    MailConfig
}

type DBConfig struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file, ":memory:" for tests

	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	GrantTTL   time.Duration
}

type StorageConfig struct {
	Driver string // disk, minio or s3
	Dir    string
	MinIO  MinIOConfig
	S3     S3Config
}

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint is empty for AWS itself.
	Endpoint string
}

// MailConfig selects Resend delivery when ResendAPIKey is set.
type MailConfig struct {
	ResendAPIKey string
	From         string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads the environment, after loading a .env file if present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AuthAddr:            getEnv("AUTH_ADDR", ":8000"),
		MediaAddr:           getEnv("MEDIA_ADDR", ":8001"),
		PublicURL:           getEnv("PUBLIC_URL", "http://localhost:8001"),
		Version:             getEnv("APP_VERSION", "dev"),
		CORSOrigins:         getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"),
		BodyLimit:           getEnvAsInt("BODY_LIMIT_MB", 100) * 1024 * 1024,
		DefaultStorageLimit: int64(getEnvAsInt("STORAGE_LIMIT_MB", 10*1024)) * 1024 * 1024,
		OAuthDevProvider:    getEnvAsBool("OAUTH_DEV_PROVIDER", true),
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "filedeck-dev.db"),
			DSN:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "filedeck"),
			Password: getEnv("DB_PASSWORD", "filedeck_secret"),
			Name:     getEnv("DB_NAME", "filedeck"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-me-in-production"),
			AccessTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			GrantTTL:   getEnvAsDuration("ACCESS_GRANT_TTL", 15*time.Minute),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "disk"),
			Dir:    getEnv("STORAGE_DIR", "filedeck-data"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", "filedeck"),
				SecretKey: getEnv("MINIO_SECRET_KEY", "filedeck_secret"),
				Bucket:    getEnv("MINIO_BUCKET", "filedeck"),
				UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
			},
			S3: S3Config{
				Region:    getEnv("S3_REGION", "us-east-1"),
				Bucket:    getEnv("S3_BUCKET", "filedeck"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
			},
		},
		Mail: MailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("MAIL_FROM", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
