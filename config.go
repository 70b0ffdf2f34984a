package accounts

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Config is the explicit runtime configuration for the service. It is built
// once at startup from the environment and passed down; nothing reads env
// vars after that.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":4000"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:4000"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:accounts.db?cache=shared"`

	SigningSecret string `env:"TOKEN_SECRET"`
	// TokenExpiration is the session validity window in hours.
	TokenExpiration int    `env:"TOKEN_EXPIRATION_HOURS" envDefault:"24"`
	Issuer          string `env:"TOKEN_ISSUER" envDefault:"go-accounts"`
	AudienceCSV     string `env:"TOKEN_AUDIENCE"`

	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"10m"`

	// DeterministicIDs derives account ids from the email instead of random
	// UUIDs. Useful for fixtures and idempotent seeding.
	DeterministicIDs bool `env:"DETERMINISTIC_IDS"`

	Debug bool `env:"DEBUG"`

	Mail MailConfig `envPrefix:"MAIL_"`
}

// MailConfig carries the SMTP transport settings
type MailConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Sender   string `env:"SENDER"`
}

// LoadConfig parses the environment into a Config and validates it
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse environment configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid configuration")
	}

	return cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.SigningSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.TokenExpiration, validation.Min(1)),
	)
}

// Audience returns the configured token audience list
func (c Config) Audience() jwt.ClaimStrings {
	if c.AudienceCSV == "" {
		return nil
	}

	var aud jwt.ClaimStrings
	for _, a := range strings.Split(c.AudienceCSV, ",") {
		if a = strings.TrimSpace(a); a != "" {
			aud = append(aud, a)
		}
	}
	return aud
}

// TokenTTL is the session validity window as a duration
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenExpiration) * time.Hour
}
