package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/shrimpsense/shrimpsense-api/shared/logger"
	"github.com/shrimpsense/shrimpsense-api/shared/mailer"
)

// AuthServiceConfig is the complete configuration of the auth service, read
// from environment variables.
type AuthServiceConfig struct {
	HTTP   HTTPConfig    `envPrefix:"HTTP_"`
	Mongo  MongoConfig   `envPrefix:"MONGO_"`
	Redis  RedisConfig   `envPrefix:"REDIS_"`
	SMTP   mailer.Config `envPrefix:"SMTP_"`
	Token  TokenConfig   `envPrefix:"TOKEN_"`
	Auth   AuthConfig    `envPrefix:"AUTH_"`
	Logger logger.Config `envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Addr              string        `env:"ADDR"                 envDefault:":5000"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN"  envDefault:"http://localhost:3000"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES"       envDefault:"1048576"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"         envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT"        envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"     envDefault:"15s"`
}

type MongoConfig struct {
	URI      string        `env:"URI"      envDefault:"mongodb://localhost:27017"`
	Database string        `env:"DATABASE" envDefault:"shrimpsense"`
	Timeout  time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// RedisConfig configures the recovery request throttle. The throttle is off
// when Addr is empty.
type RedisConfig struct {
	Addr           string        `env:"ADDR"`
	Password       string        `env:"PASSWORD"`
	DB             int           `env:"DB"               envDefault:"0"`
	RecoverWindow  time.Duration `env:"RECOVER_WINDOW"   envDefault:"15m"`
	RecoverMaxHits int           `env:"RECOVER_MAX_HITS" envDefault:"5"`
}

type TokenConfig struct {
	Secret   string `env:"SECRET"`
	Issuer   string `env:"ISSUER"   envDefault:"shrimpsense-auth"`
	Audience string `env:"AUDIENCE" envDefault:"shrimpsense"`
}

type AuthConfig struct {
	// OperationTimeout bounds each request's calls to the store, hasher and
	// mailer.
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"15s"`

	// LoginUnifyErrors reports unknown accounts as invalid credentials.
	LoginUnifyErrors bool `env:"LOGIN_UNIFY_ERRORS" envDefault:"false"`
}

// Load parses the environment into an AuthServiceConfig and validates it.
func Load() (*AuthServiceConfig, error) {
	cfg, err := env.ParseAs[AuthServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *AuthServiceConfig) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("missing TOKEN_SECRET environment variable")
	}
	if c.Mongo.URI == "" {
		return errors.New("missing MONGO_URI environment variable")
	}
	if c.Auth.OperationTimeout <= 0 {
		return errors.New("AUTH_OPERATION_TIMEOUT must be positive")
	}
	if c.Redis.Addr != "" && (c.Redis.RecoverMaxHits <= 0 || c.Redis.RecoverWindow <= 0) {
		return errors.New("REDIS_RECOVER_MAX_HITS and REDIS_RECOVER_WINDOW must be positive")
	}
	if err := c.SMTP.Validate(); err != nil {
		return err
	}

	return nil
}
