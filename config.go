package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with AUTHCORE_STORE
const (
	StoreFS   = "fs"
	StoreGorm = "gorm"
	StoreGAE  = "gae"
)

// Config is the process configuration, read once from the environment at
// startup and passed down explicitly.
type Config struct {
	Addr string `env:"AUTHCORE_ADDR" envDefault:":8080"`

	JWTSecretKey string        `env:"AUTHCORE_JWT_SECRET_KEY"`
	JWTIssuer    string        `env:"AUTHCORE_JWT_ISSUER"   envDefault:"authcore"`
	JWTAudience  string        `env:"AUTHCORE_JWT_AUDIENCE" envDefault:"authcore-api"`
	SessionTTL   time.Duration `env:"AUTHCORE_SESSION_TTL"  envDefault:"24h"`

	ClientURL         string `env:"AUTHCORE_CLIENT_URL"          envDefault:"http://localhost:3000"`
	ConfirmEmailPath  string `env:"AUTHCORE_CONFIRM_EMAIL_PATH"  envDefault:"account/confirm-email"`
	ResetPasswordPath string `env:"AUTHCORE_RESET_PASSWORD_PATH" envDefault:"account/reset-password"`
	AppName           string `env:"AUTHCORE_APP_NAME"            envDefault:"authcore"`
	AutoConfirmLocal  bool   `env:"AUTHCORE_AUTO_CONFIRM_LOCAL"  envDefault:"false"`
	MailLogBody       bool   `env:"AUTHCORE_MAIL_LOG_BODY"       envDefault:"false"`

	FacebookAppID      string        `env:"AUTHCORE_FACEBOOK_APP_ID"`
	FacebookAppSecret  string        `env:"AUTHCORE_FACEBOOK_APP_SECRET"`
	GoogleClientID     string        `env:"AUTHCORE_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"AUTHCORE_GOOGLE_CLIENT_SECRET"`
	OAuthCallbackBase  string        `env:"AUTHCORE_OAUTH_CALLBACK_BASE"`
	HTTPTimeout        time.Duration `env:"AUTHCORE_HTTP_TIMEOUT" envDefault:"10s"`

	Store              string `env:"AUTHCORE_STORE"        envDefault:"fs"`
	StoragePath        string `env:"AUTHCORE_STORAGE_PATH" envDefault:"./data"`
	DatabaseURL        string `env:"AUTHCORE_DATABASE_URL"`
	DatastoreProject   string `env:"AUTHCORE_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"AUTHCORE_DATASTORE_NAMESPACE"`
}

// LoadConfig parses the process environment
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadConfigFrom parses the given environment instead of the process one
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports configuration the server cannot start with
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecretKey) < MinSigningKeyLength {
		errs = append(errs, fmt.Errorf("AUTHCORE_JWT_SECRET_KEY must be at least %d bytes", MinSigningKeyLength))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("AUTHCORE_SESSION_TTL must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("AUTHCORE_HTTP_TIMEOUT must be positive"))
	}
	if u, err := url.Parse(c.ClientURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("AUTHCORE_CLIENT_URL %q is not an absolute URL", c.ClientURL))
	}
	if (c.FacebookAppID == "") != (c.FacebookAppSecret == "") {
		errs = append(errs, errors.New("AUTHCORE_FACEBOOK_APP_ID and AUTHCORE_FACEBOOK_APP_SECRET must be set together"))
	}

	switch c.Store {
	case StoreFS:
		if c.StoragePath == "" {
			errs = append(errs, errors.New("AUTHCORE_STORAGE_PATH is required for the fs store"))
		}
	case StoreGorm:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTHCORE_DATABASE_URL is required for the gorm store"))
		}
	case StoreGAE:
		if c.DatastoreProject == "" {
			errs = append(errs, errors.New("AUTHCORE_DATASTORE_PROJECT is required for the gae store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTHCORE_STORE %q", c.Store))
	}
	return errors.Join(errs...)
}

// SessionConfig returns the signing configuration for NewSessionIssuer
func (c Config) SessionConfig() SessionConfig {
	return SessionConfig{
		SigningKey: c.JWTSecretKey,
		Issuer:     c.JWTIssuer,
		Audience:   c.JWTAudience,
		TTL:        c.SessionTTL,
	}
}

// LinkConfig returns the recovery link configuration
func (c Config) LinkConfig() LinkConfig {
	return LinkConfig{
		ClientURL:         c.ClientURL,
		ConfirmEmailPath:  c.ConfirmEmailPath,
		ResetPasswordPath: c.ResetPasswordPath,
		ApplicationName:   c.AppName,
	}
}

// FacebookEnabled reports whether Facebook credentials are configured
func (c Config) FacebookEnabled() bool {
	return c.FacebookAppID != "" && c.FacebookAppSecret != ""
}

// GoogleEnabled reports whether a Google client id is configured
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}
