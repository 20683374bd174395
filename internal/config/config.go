// Package config loads gateway configuration from a YAML file with
// environment-variable overrides, following the same load/defaults/
// validate shape used throughout this codebase's ambient tooling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway.
type Config struct {
	Listen      string            `yaml:"listen"`
	Logging     LoggingConfig     `yaml:"logging"`
	TLS         TLSConfig         `yaml:"tls"`
	Storage     StorageConfig     `yaml:"storage"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Auth        AuthConfig        `yaml:"auth"`
	Detectors   DetectorConfig    `yaml:"detectors"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	CORSOrigins string            `yaml:"cors_origins"`
	Providers   map[string]Provider `yaml:"providers"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" (default) or "text"
	Level  string `yaml:"level"`  // debug, info, warn, error
}

// TLSConfig mirrors the teacher's TLS section: optional, with a dev
// auto-cert fallback.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	AutoCert bool   `yaml:"auto_cert"`
}

// StorageConfig locates the relational store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig controls OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // none, stdout, otlp
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// AuthConfig holds the secrets driving session tokens, API keys, and
// provider-credential encryption (spec §4.6).
type AuthConfig struct {
	JWTSecretKey           string        `yaml:"jwt_secret_key"`
	KeyEncryptionSecret    string        `yaml:"key_encryption_secret"`
	AccessTokenExpireMinutes int         `yaml:"access_token_expire_minutes"`
}

// DetectorConfig holds the tunables named in spec §6's configuration table.
type DetectorConfig struct {
	PromptInjectionDetector string  `yaml:"prompt_injection_detector"` // hybrid, deberta, regex
	PromptInjectionUseONNX  bool    `yaml:"prompt_injection_use_onnx"`
	PromptInjectionFastMode bool    `yaml:"prompt_injection_fast_mode"`
	PromptInjectionThreshold float64 `yaml:"prompt_injection_threshold"`
	ToxicityThreshold       float64 `yaml:"toxicity_threshold"`
}

// RateLimitConfig holds the general-profile caps; the OAuth-strict profile
// is fixed per spec §4.8 and not independently configurable.
type RateLimitConfig struct {
	RequestsPerMinute int         `yaml:"rate_limit_per_minute"`
	RequestsPerHour   int         `yaml:"rate_limit_per_hour"`
	Redis             RedisConfig `yaml:"redis"`
}

// RedisConfig points the rate limiter at a shared Redis instance so its
// counters are coordinated across gateway replicas. Leaving Enabled
// false (the default) keeps counters in-process, which is sufficient
// for a single instance.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Provider configures a fallback system-level credential and base URL for
// an LLM provider used by the supplemented /llm/complete path when the
// caller has no provider credential of their own on file.
type Provider struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path comes from a trusted CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return defaults(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Listen: ":8443",
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		TLS: TLSConfig{
			Enabled:  false,
			AutoCert: false,
		},
		Storage: StorageConfig{
			Path: "data/rampart.db",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Exporter:    "none",
			ServiceName: "rampart-gateway",
			Endpoint:    "localhost:4317",
			Insecure:    true,
		},
		Auth: AuthConfig{
			AccessTokenExpireMinutes: 30,
		},
		Detectors: DetectorConfig{
			PromptInjectionDetector:  "hybrid",
			PromptInjectionUseONNX:   true,
			PromptInjectionFastMode:  false,
			PromptInjectionThreshold: 0.5,
			ToxicityThreshold:        0.5,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 1000,
			RequestsPerHour:   10000,
			Redis: RedisConfig{
				Enabled:   false,
				Addr:      "localhost:6379",
				KeyPrefix: "rampart:ratelimit:",
			},
		},
		CORSOrigins: "http://localhost:3000",
		Providers: map[string]Provider{
			"openai": {
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			"anthropic": {
				BaseURL:   "https://api.anthropic.com/v1",
				APIKeyEnv: "ANTHROPIC_API_KEY",
			},
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAMPART_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("RAMPART_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAMPART_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RAMPART_JWT_SECRET_KEY"); v != "" {
		c.Auth.JWTSecretKey = v
	}
	if v := os.Getenv("RAMPART_KEY_ENCRYPTION_SECRET"); v != "" {
		c.Auth.KeyEncryptionSecret = v
	}
	if v := os.Getenv("RAMPART_ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Auth.AccessTokenExpireMinutes = n
		}
	}
	if v := os.Getenv("RAMPART_PROMPT_INJECTION_DETECTOR"); v != "" {
		c.Detectors.PromptInjectionDetector = v
	}
	if os.Getenv("RAMPART_PROMPT_INJECTION_FAST_MODE") == "true" {
		c.Detectors.PromptInjectionFastMode = true
	}
	if v := os.Getenv("RAMPART_TOXICITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detectors.ToxicityThreshold = f
		}
	}
	if v := os.Getenv("RAMPART_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("RAMPART_RATE_LIMIT_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerHour = n
		}
	}
	if os.Getenv("RAMPART_RATE_LIMIT_REDIS_ENABLED") == "true" {
		c.RateLimit.Redis.Enabled = true
	}
	if v := os.Getenv("RAMPART_RATE_LIMIT_REDIS_ADDR"); v != "" {
		c.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("RAMPART_RATE_LIMIT_REDIS_PASSWORD"); v != "" {
		c.RateLimit.Redis.Password = v
	}
	if v := os.Getenv("RAMPART_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = v
	}
	if os.Getenv("RAMPART_TELEMETRY_ENABLED") == "true" {
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("RAMPART_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if os.Getenv("RAMPART_TLS_ENABLED") == "true" {
		c.TLS.Enabled = true
	}
	if v := os.Getenv("RAMPART_TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("RAMPART_TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}
	if os.Getenv("RAMPART_TLS_AUTO_CERT") == "true" {
		c.TLS.AutoCert = true
	}
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Auth.JWTSecretKey == "" {
		return fmt.Errorf("auth.jwt_secret_key (or RAMPART_JWT_SECRET_KEY) must be set")
	}
	if c.Auth.KeyEncryptionSecret == "" {
		return fmt.Errorf("auth.key_encryption_secret (or RAMPART_KEY_ENCRYPTION_SECRET) must be set")
	}
	if c.Auth.AccessTokenExpireMinutes <= 0 || c.Auth.AccessTokenExpireMinutes > 30 {
		return fmt.Errorf("auth.access_token_expire_minutes must be in (0, 30]")
	}
	switch c.Detectors.PromptInjectionDetector {
	case "hybrid", "deberta", "regex":
	default:
		return fmt.Errorf("detectors.prompt_injection_detector must be one of hybrid|deberta|regex")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.RequestsPerHour <= 0 {
		return fmt.Errorf("rate_limit caps must be positive")
	}
	if c.RateLimit.Redis.Enabled && c.RateLimit.Redis.Addr == "" {
		return fmt.Errorf("rate_limit.redis.addr must be set when rate_limit.redis.enabled")
	}
	if c.TLS.Enabled && !c.TLS.AutoCert && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file required when tls.enabled and not auto_cert")
	}
	return nil
}

// AccessTokenTTL returns the configured session-token lifetime as a
// time.Duration, clamped to the spec's 30-minute ceiling.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Auth.AccessTokenExpireMinutes) * time.Minute
}
