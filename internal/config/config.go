package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthBaseURL        string `envconfig:"AUTH_BASE_URL" default:"http://localhost:9001"`
	FulfillmentBaseURL string `envconfig:"FULFILLMENT_BASE_URL" default:"https://api.printful.com"`
	FulfillmentAPIKey  string `envconfig:"FULFILLMENT_API_KEY" default:""`
	ZipLookupBaseURL   string `envconfig:"ZIP_LOOKUP_BASE_URL" default:"https://api.zippopotam.us"`
	PaymentBaseURL     string `envconfig:"PAYMENT_BASE_URL" default:"http://localhost:9002"`

	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ClientTimeout   time.Duration `envconfig:"CLIENT_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
