// Package config provides configuration loading and validation for the
// engage batch job and the roster API server. It uses koanf to merge
// environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the engage services.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Warehouse database
	DatabaseURL string `koanf:"database_url"`

	// Redis (run markers, rate limiting)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication (roster API)
	JWTSecret string `koanf:"jwt_secret"`

	// Internal token guarding the metrics endpoint
	InternalToken string `koanf:"internal_token"`

	// Tracking-log source
	SourcePath string `koanf:"source_path"`

	// S3-compatible log store
	S3Bucket          string `koanf:"s3_bucket"`
	S3Prefix          string `koanf:"s3_prefix"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3Region          string `koanf:"s3_region"`

	// Pipeline settings
	Workers  int    `koanf:"workers"`
	SpillDir string `koanf:"spill_dir"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingS3Bucket          = errors.New("S3_BUCKET is required")
	ErrMissingS3AccessKeyID     = errors.New("S3_ACCESS_KEY_ID is required")
	ErrMissingS3SecretAccessKey = errors.New("S3_SECRET_ACCESS_KEY is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidWorkers           = errors.New("WORKERS must not be negative")
	ErrInvalidSamplingRate      = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultWorkers             = 0 // 0 means one worker per CPU
	DefaultTracingSamplingRate = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try ENGAGE_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"ENGAGE_PORT", "PORT"}, k.Int("port"), DefaultPort, ErrInvalidPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	workers, workersErr := getEnvIntOrDefault("WORKERS", k.Int("workers"), DefaultWorkers, ErrInvalidWorkers)
	if workersErr != nil {
		loadErrs = append(loadErrs, workersErr)
	}

	samplingRate, samplingErr := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if samplingErr != nil {
		loadErrs = append(loadErrs, samplingErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"ENGAGE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:           getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		InternalToken:       getEnvOrKoanf("INTERNAL_TOKEN", k, "internal_token"),
		SourcePath:          getEnvOrKoanf("SOURCE_PATH", k, "source_path"),
		S3Bucket:            getEnvOrKoanf("S3_BUCKET", k, "s3_bucket"),
		S3Prefix:            getEnvOrKoanf("S3_PREFIX", k, "s3_prefix"),
		S3AccessKeyID:       getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey:   getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3Endpoint:          getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		S3Region:            getEnvOrKoanf("S3_REGION", k, "s3_region"),
		Workers:             workers,
		SpillDir:            getEnvOrKoanf("SPILL_DIR", k, "spill_dir"),
		TracingEnabled:      getEnvBool("TRACING_ENABLED", k, "tracing_enabled"),
		TracingOTLPEndpoint: getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSamplingRate: samplingRate,
		TracingInsecure:     getEnvBool("TRACING_INSECURE", k, "tracing_insecure"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvBool returns the environment variable as bool if set, otherwise the koanf value.
// Unparseable env values are treated as false.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns the sentinel wrapped in a parse error if the value cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int, sentinel error) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, sentinel)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int, sentinel error) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, sentinel)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks the configuration values every engage binary needs.
// Returns a slice of validation errors (empty if valid). The roster server
// additionally calls ValidateServer.
func (c *Config) Validate() []error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, ErrInvalidWorkers)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	// S3 configuration is optional. Only validate fields if any S3 value is set.
	if c.S3Bucket != "" || c.S3AccessKeyID != "" || c.S3SecretAccessKey != "" {
		if c.S3Bucket == "" {
			errs = append(errs, ErrMissingS3Bucket)
		}
		if c.S3AccessKeyID == "" {
			errs = append(errs, ErrMissingS3AccessKeyID)
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, ErrMissingS3SecretAccessKey)
		}
	}

	return errs
}

// ValidateServer checks the additional values the roster API server needs.
// The batch CLI skips these; it only needs a database when loading the
// warehouse, and never serves authenticated requests.
func (c *Config) ValidateServer() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"redis_url":             maskDatabaseURL(c.RedisURL),
		"jwt_secret":            maskSecret(c.JWTSecret),
		"internal_token":        maskSecret(c.InternalToken),
		"source_path":           c.SourcePath,
		"s3_bucket":             c.S3Bucket,
		"s3_prefix":             c.S3Prefix,
		"s3_access_key_id":      maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key":  maskSecret(c.S3SecretAccessKey),
		"s3_endpoint":           c.S3Endpoint,
		"s3_region":             c.S3Region,
		"workers":               fmt.Sprintf("%d", c.Workers),
		"spill_dir":             c.SpillDir,
		"tracing_enabled":       fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_otlp_endpoint": c.TracingOTLPEndpoint,
		"tracing_sampling_rate": fmt.Sprintf("%g", c.TracingSamplingRate),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
