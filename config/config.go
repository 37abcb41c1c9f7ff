package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/jwt-gate/utils"
)

// DefaultKeyFile is the file name of the cached public signing key
const DefaultKeyFile = "publicKey.pem"

// Config represents the complete application configuration
type Config struct {
	Auth          AuthConfig
	KeyCache      KeyCacheConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// AuthConfig holds token verification settings.
// Issuer is derived from Domain and always ends with a trailing slash.
type AuthConfig struct {
	Audience        string
	Domain          string `validate:"required"`
	Issuer          string `validate:"required,url"`
	Debug           bool
	PermissionsFile string
}

// KeyCacheConfig holds settings for the cached public signing key
type KeyCacheConfig struct {
	Path         string        `validate:"required"`
	FetchTimeout time.Duration `validate:"gt=0"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `validate:"required,oneof=debug info warn error"`
	LogFormat string `validate:"required,oneof=json text"` // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	domain := getEnvFirst([]string{"AUTH_DOMAIN", "domain"}, "")
	debug := isTruthy(getEnvFirst([]string{"DEBUG", "debug"}, ""))

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Auth: AuthConfig{
			Audience:        getEnvFirst([]string{"AUTH_AUDIENCE", "audience"}, ""),
			Domain:          domain,
			Issuer:          EnsureTrailingSlash(domain),
			Debug:           debug,
			PermissionsFile: getEnv("PERMISSIONS_FILE", ""),
		},
		KeyCache: KeyCacheConfig{
			Path:         getEnv("KEY_CACHE_PATH", defaultKeyPath()),
			FetchTimeout: getEnvAsDuration("KEY_FETCH_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if cfg.Auth.Debug {
		cfg.Observability.LogLevel = "debug"
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Auth.Domain == "" {
		return fmt.Errorf("auth domain is required: set AUTH_DOMAIN")
	}
	if !strings.HasSuffix(c.Auth.Issuer, "/") {
		return fmt.Errorf("issuer must end with a trailing slash: %q", c.Auth.Issuer)
	}
	if c.KeyCache.Path == "" {
		return fmt.Errorf("key cache path is required")
	}

	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KeyURL returns the endpoint serving the issuer's PEM encoded public key
func (c *AuthConfig) KeyURL() string {
	return c.Issuer + "pem"
}

// EnsureTrailingSlash appends "/" unless s already ends with one
func EnsureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Helper functions

// defaultKeyPath places the key cache next to the running executable,
// falling back to the working directory when the executable path is unknown.
func defaultKeyPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultKeyFile
	}
	return filepath.Join(filepath.Dir(exe), DefaultKeyFile)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty value among keys
func getEnvFirst(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

// isTruthy treats any non-empty value that does not parse as false as enabled
func isTruthy(value string) bool {
	if value == "" {
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return true
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
