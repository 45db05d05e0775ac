// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required for server and migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the HS256 signing secret for API access tokens. Either this or
	// JWT_PRIVATE_KEY/JWT_PUBLIC_KEY must be set for the API to issue tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; alternative to JWT_SECRET.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "watrack-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "watrack-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "24h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// WAAuthEncryptionKey is the base64-encoded 32-byte key used to seal WhatsApp
	// credential blobs (AES-256-GCM). Required unless WAAllowPlaintextAuth is true;
	// the codec never falls back to plaintext silently.
	WAAuthEncryptionKey string `mapstructure:"WA_AUTH_ENCRYPTION_KEY"`
	// WAAllowPlaintextAuth explicitly opts in to storing credential blobs
	// unencrypted. Refused when APP_ENV=production.
	WAAllowPlaintextAuth bool `mapstructure:"WA_ALLOW_PLAINTEXT_AUTH"`
	// WAStoreDSN is the DSN for the whatsmeow device store. Defaults to DatabaseURL.
	WAStoreDSN string `mapstructure:"WA_STORE_DSN"`
	// WACountryPrefix is the country code prepended to phone numbers that do not
	// already carry it (e.g. "91").
	WACountryPrefix string `mapstructure:"WA_COUNTRY_PREFIX"`
	// QRURLBase is the externally reachable base URL of this server, used to
	// build QR retrieval links handed to clients (e.g. http://localhost:3000).
	QRURLBase string `mapstructure:"QR_URL_BASE"`
	// QRTTL is how long a rendered QR challenge stays retrievable (e.g. "60s").
	QRTTL string `mapstructure:"QR_TTL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Notifications (optional). When Kafka brokers are set, presence transitions
	// are also emitted to Kafka.
	// NotifyKafkaBrokers is a comma-separated list of Kafka broker addresses.
	NotifyKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the Kafka topic for presence notifications (default watrack-presence).
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "watrack-auth")
	v.SetDefault("JWT_AUDIENCE", "watrack-api")
	v.SetDefault("JWT_ACCESS_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("WA_AUTH_ENCRYPTION_KEY", "")
	v.SetDefault("WA_ALLOW_PLAINTEXT_AUTH", false)
	v.SetDefault("WA_STORE_DSN", "")
	v.SetDefault("WA_COUNTRY_PREFIX", "91")
	v.SetDefault("QR_URL_BASE", "http://localhost:3000")
	v.SetDefault("QR_TTL", "60s")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "watrack-presence")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.WAAuthEncryptionKey == "" && !cfg.WAAllowPlaintextAuth {
		return nil, errors.New("config: WA_AUTH_ENCRYPTION_KEY must be set (or WA_ALLOW_PLAINTEXT_AUTH=true to opt in to unencrypted credential storage)")
	}
	if cfg.WAAllowPlaintextAuth && cfg.Env == "production" {
		return nil, errors.New("config: WA_ALLOW_PLAINTEXT_AUTH must not be true when APP_ENV=production")
	}
	if cfg.WAAuthEncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.WAAuthEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("config: WA_AUTH_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("config: WA_AUTH_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AuthEncryptionKey returns the decoded 32-byte blob key, or nil when plaintext
// mode is enabled. Load has already validated encoding and length.
func (c *Config) AuthEncryptionKey() []byte {
	if c == nil || c.WAAuthEncryptionKey == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(c.WAAuthEncryptionKey)
	if err != nil {
		return nil
	}
	return key
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// QRChallengeTTL parses QRTTL as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) QRChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.QRTTL)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// StoreDSN returns the whatsmeow device store DSN, defaulting to DatabaseURL.
func (c *Config) StoreDSN() string {
	if c.WAStoreDSN != "" {
		return c.WAStoreDSN
	}
	return c.DatabaseURL
}

// NotifyKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka notification delivery is enabled (non-empty list) and to create the producer.
func (c *Config) NotifyKafkaBrokersList() []string {
	if c == nil || c.NotifyKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.NotifyKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
