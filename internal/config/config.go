// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	AWSRegion   string `envconfig:"AWS_REGION" default:"ap-south-1"`
	AWSEndpoint string `envconfig:"AWS_ENDPOINT_OVERRIDE" default:""` // DynamoDB Local / LocalStack

	StoreBackend     string        `envconfig:"STORE_BACKEND" default:"dynamodb"`
	OrdersTable      string        `envconfig:"ORDERS_TABLE" default:"orders"`
	VendorsTable     string        `envconfig:"VENDORS_TABLE" default:"vendors"`
	ApprovalsTable   string        `envconfig:"APPROVALS_TABLE" default:"approval_records"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	OrdersQueueURL   string `envconfig:"ORDERS_QUEUE_URL" default:""`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"TailorOrderflow"`
	MetricsEnabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`

	JWTSecret string `envconfig:"JWT_SECRET" default:""` // required by the API only

	ConsumerEditWindow   time.Duration `envconfig:"CONSUMER_EDIT_WINDOW" default:"36h"`
	ConsumerCancelWindow time.Duration `envconfig:"CONSUMER_CANCEL_WINDOW" default:"24h"`
	B2BEditWindow        time.Duration `envconfig:"B2B_EDIT_WINDOW" default:"30h"`

	ConsumerGSTRate float64 `envconfig:"CONSUMER_GST_RATE" default:"0.05"`
	B2BGSTRate      float64 `envconfig:"B2B_GST_RATE" default:"0.18"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendDynamoDB, BackendMemory, c.StoreBackend)
	}
	if c.ConsumerGSTRate < 0 || c.B2BGSTRate < 0 {
		return fmt.Errorf("GST rates must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"CONSUMER_EDIT_WINDOW":   c.ConsumerEditWindow,
		"CONSUMER_CANCEL_WINDOW": c.ConsumerCancelWindow,
		"B2B_EDIT_WINDOW":        c.B2BEditWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// ValidateAPI adds the checks only the HTTP API needs.
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}
