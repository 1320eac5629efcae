// Package config loads the server configuration from the environment.
//
// Every setting is a TAGFER_* variable with a default that is good enough for
// local development. Secrets have no default; the server refuses to start
// without them (see Validate).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/tagfer.db"`

	// RedisURL selects the Redis verification cache when set. Empty means the
	// codes are kept in SQLite.
	RedisURL string `env:"REDIS_URL"`

	// AppSecret is the shared secret the mobile app sends on unauthenticated
	// routes. TokenSecret signs page and password-reset tokens.
	AppSecret   string `env:"APP_SECRET"`
	TokenSecret string `env:"TOKEN_SECRET"`

	VerificationTTL  time.Duration `env:"VERIFICATION_TTL" envDefault:"5m"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"4096"`
	SessionCacheTTL  time.Duration `env:"SESSION_CACHE_TTL" envDefault:"10m"`
	SuggestPageSize  int           `env:"SUGGEST_PAGE_SIZE" envDefault:"10"`
	PageTokenTTL     time.Duration `env:"PAGE_TOKEN_TTL" envDefault:"24h"`
	ResetTokenTTL    time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	DefaultProfile   string        `env:"DEFAULT_PROFILE_NAME" envDefault:"Business"`
	ReferralTokens   int           `env:"REFERRAL_TOKENS" envDefault:"10"`
	BaseURL          string        `env:"BASE_URL" envDefault:"https://tagfer.com"`
	PhoneRegion      string        `env:"PHONE_REGION" envDefault:"US"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	PasswordHashCost int           `env:"PASSWORD_HASH_COST" envDefault:"12"`

	Media   MediaConfig   `envPrefix:"MEDIA_"`
	Twilio  TwilioConfig  `envPrefix:"TWILIO_"`
	Twitter TwitterConfig `envPrefix:"TWITTER_"`
	SMTP    SMTPConfig    `envPrefix:"SMTP_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

// MediaConfig locates the photo bucket on disk and the public URL it is
// served from.
type MediaConfig struct {
	Dir     string `env:"DIR" envDefault:"data/media"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080/media"`
}

// TwilioConfig holds SMS credentials. An empty AccountSID logs messages
// instead of sending them.
type TwilioConfig struct {
	AccountSID string `env:"ACCOUNT_SID"`
	AuthToken  string `env:"AUTH_TOKEN"`
	From       string `env:"FROM"`
}

// TwitterConfig is the OAuth 2.0 client used for social sign-in.
type TwitterConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL" envDefault:"http://localhost:8080/auth/twitter/username"`
	AuthURL      string `env:"AUTH_URL" envDefault:"https://twitter.com/i/oauth2/authorize"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://api.twitter.com/2/oauth2/token"`
	APIURL       string `env:"API_URL" envDefault:"https://api.twitter.com"`
}

// SMTPConfig configures the password-reset mailer. An empty Host logs the
// reset link instead of mailing it.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@tagfer.com"`
}

// LogConfig selects the log level and output format ("text", "json" or
// "auto", which picks text on a terminal).
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"auto"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "TAGFER_"})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.AppSecret == "" {
		errs = append(errs, errors.New("TAGFER_APP_SECRET is required"))
	}
	if len(c.TokenSecret) < 16 {
		errs = append(errs, errors.New("TAGFER_TOKEN_SECRET must be at least 16 characters"))
	}
	if c.SuggestPageSize < 1 {
		errs = append(errs, fmt.Errorf("TAGFER_SUGGEST_PAGE_SIZE must be positive, got %d", c.SuggestPageSize))
	}
	if c.VerificationTTL <= 0 {
		errs = append(errs, fmt.Errorf("TAGFER_VERIFICATION_TTL must be positive, got %s", c.VerificationTTL))
	}
	return errors.Join(errs...)
}
