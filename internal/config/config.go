package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// The catalog is disabled when Host is empty; streaming works without it.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether a database has been configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// HTTPConfig holds server timeouts and CORS settings.
// A zero timeout disables it.
type HTTPConfig struct {
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
	AllowedOrigins  string
}

// ReadTimeout returns the request read timeout.
func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the whole-response write timeout.
func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout.
func (c HTTPConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// Storage backends.
const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

// MediaConfig holds settings of the media store and the streaming endpoint.
type MediaConfig struct {
	Root                 string
	Backend              string
	MaxUploadBytes       int64
	StreamIdleTimeoutSec int
	Probe                bool
}

// StreamIdleTimeout returns how long a stream may go without writing a chunk.
func (c MediaConfig) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleTimeoutSec) * time.Second
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Timezone string
	Log      LogConfig
	HTTP     HTTPConfig
	Media    MediaConfig
	Auth     AuthConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		HTTP: HTTPConfig{
			ReadTimeoutSec: getEnvInt("HTTP_READ_TIMEOUT_SEC", 30),
			// Long streams are bounded per chunk by STREAM_IDLE_TIMEOUT_SEC instead.
			WriteTimeoutSec: getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 0),
			IdleTimeoutSec:  getEnvInt("HTTP_IDLE_TIMEOUT_SEC", 60),
			AllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Media: MediaConfig{
			Root:                 getEnv("MEDIA_ROOT", "./videos"),
			Backend:              strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
			MaxUploadBytes:       getEnvInt64("UPLOAD_MAX_BYTES", 512<<20),
			StreamIdleTimeoutSec: getEnvInt("STREAM_IDLE_TIMEOUT_SEC", 30),
			Probe:                getEnvBool("MEDIA_PROBE", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}
