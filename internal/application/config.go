package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "QUESTLOG_"

// Config is the complete service configuration. Values are resolved in
// order: built-in defaults, then the optional YAML file, then environment
// variables.
type Config struct {
	// Server configures the HTTP listener and background jobs.
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`

	// Auth configures bearer token validation.
	Auth AuthConfig `yaml:"auth" envPrefix:"AUTH_"`

	// Storage selects and configures the persistence gateway.
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`

	// Proofs selects where accepted proof images are kept.
	Proofs ProofsConfig `yaml:"proofs" envPrefix:"PROOFS_"`

	// Classifier configures the vision model used to judge proofs.
	Classifier ClassifierConfig `yaml:"classifier" envPrefix:"CLASSIFIER_"`

	// Points is the award tariff for first verifications.
	Points domain.PointTariff `yaml:"points" envPrefix:"POINTS_"`

	// Retry configures retry allowances and the retry award policy.
	Retry RetryConfig `yaml:"retry" envPrefix:"RETRY_"`

	// Telemetry configures trace export.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `yaml:"addr" env:"ADDR" validate:"required"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"min=0"`

	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" validate:"min=1024"`

	// KeepaliveSchedule is a cron spec for the self-ping job. Empty disables it.
	KeepaliveSchedule string `yaml:"keepalive_schedule" env:"KEEPALIVE_SCHEDULE" validate:"omitempty,cronspec"`

	// KeepaliveURL is pinged by the keepalive job. Defaults to the local /ping.
	KeepaliveURL string `yaml:"keepalive_url" env:"KEEPALIVE_URL" validate:"omitempty,url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// AuthConfig configures validation of identity-provider access tokens.
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret shared with the identity provider.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=16"`

	// Audience, when set, must appear in the token's aud claim.
	Audience string `yaml:"audience" env:"AUDIENCE"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer" env:"ISSUER"`
}

// StorageConfig selects the persistence gateway.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" env:"DSN"`

	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS" validate:"min=0,max=1000"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME" validate:"min=0"`

	// AutoMigrate applies the schema on start.
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// ProofsConfig selects the proof store.
type ProofsConfig struct {
	Backend string   `yaml:"backend" env:"BACKEND" validate:"oneof=datauri s3"`
	S3      S3Config `yaml:"s3" envPrefix:"S3_"`
}

// S3Config configures the S3-compatible proof bucket.
type S3Config struct {
	Bucket        string `yaml:"bucket" env:"BUCKET"`
	Region        string `yaml:"region" env:"REGION"`
	Endpoint      string `yaml:"endpoint" env:"ENDPOINT" validate:"omitempty,url"`
	AccessKey     string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" env:"SECRET_KEY"`
	Prefix        string `yaml:"prefix" env:"PREFIX"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" validate:"omitempty,url"`
}

// ClassifierConfig configures the vision classifier and its client
// middleware.
type ClassifierConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER" validate:"oneof=openai anthropic google"`
	Model    string        `yaml:"model" env:"MODEL"`
	APIKey   string        `yaml:"api_key" env:"API_KEY" validate:"required"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"min=1s,max=10m"`

	// MaxTokens bounds the length of the model's answer.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS" validate:"min=16,max=8192"`

	// RateLimit is the sustained request rate in requests per second.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gt=0"`
	Burst     int     `yaml:"burst" env:"BURST" validate:"min=1"`

	// BreakerFailures consecutive failures open the circuit for BreakerReset.
	BreakerFailures int           `yaml:"breaker_failures" env:"BREAKER_FAILURES" validate:"min=1"`
	BreakerReset    time.Duration `yaml:"breaker_reset" env:"BREAKER_RESET" validate:"min=1s"`
}

// RetryConfig configures retry allowances and awards.
type RetryConfig struct {
	// Policy is "additive" or "recompute".
	Policy string `yaml:"policy" env:"POLICY" validate:"retrypolicy"`

	// Increment is added to the previous award under the additive policy.
	Increment int `yaml:"increment" env:"INCREMENT" validate:"min=0,max=1000"`

	// Allowance is the number of retries each user gets per quarter.
	Allowance int `yaml:"allowance" env:"ALLOWANCE" validate:"min=0,max=100"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP/HTTP collector host:port. Empty disables export.
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO" validate:"min=0,max=1"`
}

// DefaultConfig returns a configuration with every knob at its default.
// Secrets (JWT secret, classifier API key) have no default.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  25 << 20,
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Driver:      "sqlite",
			DSN:         "questlog.db",
			AutoMigrate: true,
		},
		Proofs: ProofsConfig{Backend: "datauri"},
		Classifier: ClassifierConfig{
			Provider:        "openai",
			Timeout:         30 * time.Second,
			MaxTokens:       300,
			RateLimit:       5,
			Burst:           5,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Points: domain.DefaultPointTariff(),
		Retry: RetryConfig{
			Policy:    string(domain.RetryAdditive),
			Increment: 15,
			Allowance: 3,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "questlog",
			SampleRatio: 1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and QUESTLOG_* environment variables, then
// validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, ports.NewConfigError(path, err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, ports.NewConfigError(path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML decodes r over cfg in strict mode: unknown keys are errors.
func decodeYAML(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("YAML decode failed: %w", err)
	}
	return nil
}

// ValidateConfig runs struct tag validation followed by the cross-field
// rules that tags cannot express.
func ValidateConfig(cfg Config) error {
	v, err := sharedValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	return validateSemantics(cfg)
}

// validateSemantics checks cross-field requirements.
func validateSemantics(cfg Config) error {
	var errs []error
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DSN == "" {
		errs = append(errs, ports.NewConfigError("storage.dsn", errors.New("required for postgres")))
	}
	if cfg.Proofs.Backend == "s3" && cfg.Proofs.S3.Bucket == "" {
		errs = append(errs, ports.NewConfigError("proofs.s3.bucket", errors.New("required for s3 backend")))
	}
	if cfg.Points.Main < cfg.Points.Side {
		errs = append(errs, ports.NewConfigError("points", errors.New("main award must not be below side award")))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the parsed retry policy. The value is validated by
// ValidateConfig, so the error path only triggers on unvalidated configs.
func (c Config) RetryPolicy() domain.RetryPolicy {
	p, err := domain.ParseRetryPolicy(c.Retry.Policy)
	if err != nil {
		return domain.RetryAdditive
	}
	return p
}
