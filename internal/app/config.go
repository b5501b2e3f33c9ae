package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PETNEEDS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PETNEEDS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HMAC secret for verifying bearer tokens" flag:"jwt-secret"`
	Gateway     GatewayConfig
	AMQP        AMQPConfig
	Graceful    GracefulConfig
}

// GatewayConfig points at the external payment gateway.
type GatewayConfig struct {
	BaseURL         string        `usage:"Payment gateway base URL" flag:"gateway-base-url"`
	ServerKey       string        `usage:"Payment gateway server key" flag:"gateway-server-key"`
	Timeout         time.Duration `default:"15s" usage:"Payment gateway request timeout" flag:"gateway-timeout"`
	VerifySignature bool          `default:"true" usage:"Verify webhook signatures" flag:"gateway-verify-signature"`
}

// AMQPConfig controls order event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL      string `usage:"RabbitMQ connection URL; empty disables event publishing" flag:"amqp-url"`
	Exchange string `default:"petneeds.orders" usage:"Exchange for order events" flag:"amqp-exchange"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PETNEEDS",
		Files:     []string{"config.yaml", "/etc/petneeds/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PETNEEDS_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set PETNEEDS_JWT_SECRET")
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, errors.New("gateway base URL is required: set PETNEEDS_GATEWAY_BASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and
// PORT to the application's PETNEEDS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
