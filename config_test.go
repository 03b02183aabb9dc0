package authcore_test

import (
	"strings"
	"testing"
	"time"

	"github.com/panyam/authcore"
)

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := authcore.LoadConfigFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadConfigFrom failed: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.SessionTTL != 24*time.Hour || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Store != authcore.StoreFS || cfg.AutoConfirmLocal || cfg.MailLogBody {
		t.Errorf("unexpected store defaults %+v", cfg)
	}

	// Defaults are valid apart from the missing signing key
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "AUTHCORE_JWT_SECRET_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
	cfg.JWTSecretKey = testSigningKey
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadConfigFrom_Overrides(t *testing.T) {
	cfg, err := authcore.LoadConfigFrom(map[string]string{
		"AUTHCORE_JWT_SECRET_KEY":     testSigningKey,
		"AUTHCORE_SESSION_TTL":        "90m",
		"AUTHCORE_CLIENT_URL":         "https://app.example.com",
		"AUTHCORE_APP_NAME":           "Example",
		"AUTHCORE_AUTO_CONFIRM_LOCAL": "true",
		"AUTHCORE_MAIL_LOG_BODY":      "true",
		"AUTHCORE_STORE":              "gorm",
		"AUTHCORE_DATABASE_URL":       "postgres://localhost/authcore",
	})
	if err != nil {
		t.Fatalf("LoadConfigFrom failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	sc := cfg.SessionConfig()
	if sc.TTL != 90*time.Minute || sc.SigningKey != testSigningKey || sc.Issuer != "authcore" {
		t.Errorf("unexpected session config %+v", sc)
	}
	lc := cfg.LinkConfig()
	if lc.ClientURL != "https://app.example.com" || lc.ApplicationName != "Example" {
		t.Errorf("unexpected link config %+v", lc)
	}
	if !cfg.AutoConfirmLocal || !cfg.MailLogBody || cfg.FacebookEnabled() || cfg.GoogleEnabled() {
		t.Errorf("unexpected feature flags %+v", cfg)
	}
}

func TestLoadConfigFrom_InvalidDuration(t *testing.T) {
	if _, err := authcore.LoadConfigFrom(map[string]string{"AUTHCORE_SESSION_TTL": "soon"}); err == nil {
		t.Error("expected parse error for invalid duration")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() authcore.Config {
		cfg, err := authcore.LoadConfigFrom(map[string]string{"AUTHCORE_JWT_SECRET_KEY": testSigningKey})
		if err != nil {
			t.Fatalf("LoadConfigFrom failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*authcore.Config)
		wantErr string
	}{
		{"short key", func(c *authcore.Config) { c.JWTSecretKey = "short" }, "AUTHCORE_JWT_SECRET_KEY"},
		{"zero ttl", func(c *authcore.Config) { c.SessionTTL = 0 }, "AUTHCORE_SESSION_TTL"},
		{"zero timeout", func(c *authcore.Config) { c.HTTPTimeout = 0 }, "AUTHCORE_HTTP_TIMEOUT"},
		{"relative client url", func(c *authcore.Config) { c.ClientURL = "/app" }, "AUTHCORE_CLIENT_URL"},
		{"half facebook", func(c *authcore.Config) { c.FacebookAppID = "id" }, "AUTHCORE_FACEBOOK_APP_SECRET"},
		{"gorm without url", func(c *authcore.Config) { c.Store = authcore.StoreGorm }, "AUTHCORE_DATABASE_URL"},
		{"gae without project", func(c *authcore.Config) { c.Store = authcore.StoreGAE }, "AUTHCORE_DATASTORE_PROJECT"},
		{"unknown store", func(c *authcore.Config) { c.Store = "redis" }, "unknown AUTHCORE_STORE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}
