package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/types"
)

// Configuration holds everything the CLI tools read from the environment.
type Configuration struct {
	Stripe  StripeConfig  `mapstructure:"stripe"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level"`
}

// NewConfig loads configuration from the environment. A .env file in the
// working directory is loaded first when present, matching how the scripts
// are run locally.
func NewConfig() (*Configuration, error) {
	// Ignore the error: a missing .env file just means plain env vars.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("logging.level", types.LogLevelInfo)

	if err := v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY"); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to bind environment variables").
			Mark(ierr.ErrInternal)
	}
	if err := v.BindEnv("logging.level", "LOG_LEVEL"); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to bind environment variables").
			Mark(ierr.ErrInternal)
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to parse configuration").
			Mark(ierr.ErrInternal)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the loaded configuration is usable. The Stripe secret
// key is required before any remote call is attempted.
func (c *Configuration) Validate() error {
	if c.Stripe.SecretKey == "" {
		return ierr.NewError("STRIPE_SECRET_KEY is not set").
			WithHint("Set STRIPE_SECRET_KEY in the environment or a .env file").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetDefaultConfig returns a configuration suitable for tests and for the
// package-level logger before NewConfig has run.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{Level: types.LogLevelInfo},
	}
}
