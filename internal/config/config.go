package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {

	// Application configuration
	AppConfig struct {
		Port    int    `envconfig:"USERSYNC_PORT"`
		Address string `envconfig:"USERSYNC_ADDRESS"`
	}

	// Webhook ingestion configuration
	WebhookConfig struct {
		// Shared signing secret from the Clerk dashboard (whsec_...).
		// Required: the service refuses to start without it.
		ClerkWebhookSecret string `envconfig:"CLERK_WEBHOOK_SECRET"`
		ToleranceSeconds   int    `envconfig:"WEBHOOK_TOLERANCE_SECONDS"`
		TimeoutSeconds     int    `envconfig:"WEBHOOK_TIMEOUT_SECONDS"`
	}

	// Clerk Backend API configuration
	ClerkConfig struct {
		SecretKey string `envconfig:"CLERK_SECRET_KEY"`
		APIURL    string `envconfig:"CLERK_API_URL"`
	}

	// Database configuration
	DatabaseConfig struct {
		DatabaseHost                      string `envconfig:"DB_HOST"`
		DatabaseUser                      string `envconfig:"DB_USER"`
		DatabasePassword                  string `envconfig:"DB_PASSWORD"`
		DatabaseName                      string `envconfig:"DB_NAME"`
		DatabasePort                      int32  `envconfig:"DB_PORT"`
		DatabasePoolMaxConnections        int32  `envconfig:"DB_MAX_CON"`
		DatabasePoolMinConnections        int32  `envconfig:"DB_POOL_MIN_CON"`
		DatabasePoolMaxConnectionLifetime int    `envconfig:"DB_POOL_MAX_LIFETIME"`
	}

	// Redis configuration (per-identity delivery locks)
	RedisConfig struct {
		RedisAddress  string `envconfig:"REDIS_ADDRESS"`
		RedisPassword string `envconfig:"REDIS_PASSWORD"`
	}

	// RabbitMQ configuration
	RabbitMQConfig struct {
		RabbitMQUser    string `envconfig:"RABBITMQ_USER"`
		RabbitMQPass    string `envconfig:"RABBITMQ_PASSWORD"`
		RabbitMQAddress string `envconfig:"RABBITMQ_ADDRESS"`
		RabbitMQPort    int    `envconfig:"RABBITMQ_PORT"`
		Exchange        string `envconfig:"RABBITMQ_EXCHANGE"`
	}
}

// The LoadConfig function loads the env file specified and returns
// a valid configuration object ready for use
func LoadConfig() (*Config, error) {
	cfg := Config{}

	// Attempt to load a .env file; missing files are fine in deployment.
	_ = godotenv.Load()

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("Failed to load environment variables: %v", err)
	}

	return &cfg, nil
}
