// Package config loads the process-wide configuration. All values are read
// once at startup and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/monad-arcade/paygate/pkg/types"
)

// ErrMissingPayTo marks the one startup-fatal misconfiguration: without a
// receiving wallet address the server must not come up at all.
var ErrMissingPayTo = errors.New("config: PAY_TO_WALLET_ADDRESS is required")

// Config is the full application configuration.
type Config struct {
	Server        ServerConfig
	Payment       PaymentConfig
	Facilitator   FacilitatorConfig
	OpenTelemetry OpenTelemetryConfig
	Environment   string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PaymentConfig configures the payment gate.
type PaymentConfig struct {
	// PayTo is the merchant wallet that receives settled payments.
	PayTo string
	// Price is the fixed USD price per request, e.g. "$0.01".
	Price string
	// ChainRPC optionally overrides the Monad testnet RPC endpoint.
	ChainRPC string
	// ResourceBaseURL is the canonical public origin of this server.
	ResourceBaseURL string
	// ReplayTTL bounds the duplicate-settlement cache.
	ReplayTTL time.Duration
}

// FacilitatorConfig configures the settlement facilitator client.
type FacilitatorConfig struct {
	URL       string
	SecretKey string
	Timeout   time.Duration
}

// OpenTelemetryConfig configures tracing and metrics export.
type OpenTelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// Load reads the configuration from the environment, consulting a .env file
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Payment: PaymentConfig{
			PayTo:           getEnv("PAY_TO_WALLET_ADDRESS", ""),
			Price:           getEnv("PRICE_USD", "$0.01"),
			ChainRPC:        getEnv("MONAD_RPC_URL", ""),
			ResourceBaseURL: getEnv("RESOURCE_BASE_URL", "http://localhost:8080"),
			ReplayTTL:       getEnvAsDuration("REPLAY_TTL", 5*time.Minute),
		},
		Facilitator: FacilitatorConfig{
			URL:       getEnv("FACILITATOR_URL", ""),
			SecretKey: getEnv("FACILITATOR_SECRET_KEY", ""),
			Timeout:   getEnvAsDuration("FACILITATOR_TIMEOUT", 30*time.Second),
		},
		OpenTelemetry: OpenTelemetryConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "paygate"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			OTLPInsecure:   getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Payment.PayTo == "" {
		return ErrMissingPayTo
	}
	if _, err := types.ParsePrice(c.Payment.Price); err != nil {
		return fmt.Errorf("PRICE_USD: %w", err)
	}
	return nil
}

// Network returns the chain configuration, applying the RPC override when
// set. The override is descriptive only; chain id routing is unaffected.
func (c *PaymentConfig) Network() types.ChainConfig {
	network := types.DefaultMonadTestnet()
	if c.ChainRPC != "" {
		network.RPC = c.ChainRPC
	}
	return network
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
