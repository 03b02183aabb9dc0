package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/panyam/authcore"
	"github.com/panyam/authcore/oauth2"
	"github.com/panyam/authcore/stores/fs"
	"github.com/panyam/authcore/stores/gae"
	gormstore "github.com/panyam/authcore/stores/gorm"
)

const shutdownTimeout = 10 * time.Second

// openStores builds the account and token stores for cfg.Store. The
// returned func releases backend resources.
func openStores(ctx context.Context, cfg authcore.Config) (authcore.AccountStore, authcore.TokenStore, func(), error) {
	switch cfg.Store {
	case authcore.StoreFS:
		return fs.NewFSAccountStore(cfg.StoragePath), fs.NewFSTokenStore(cfg.StoragePath), func() {}, nil

	case authcore.StoreGorm:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewAccountStore(db), gormstore.NewTokenStore(db), closer, nil

	case authcore.StoreGAE:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open datastore: %w", err)
		}
		closer := func() { client.Close() }
		return gae.NewAccountStore(client, cfg.DatastoreNamespace), gae.NewTokenStore(client, cfg.DatastoreNamespace), closer, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func run(ctx context.Context, cfg authcore.Config) error {
	accounts, tokens, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	issuer, err := authcore.NewSessionIssuer(cfg.SessionConfig())
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	auth := &authcore.Authenticator{
		Store:            authcore.NewIdentityStore(accounts, tokens),
		Sessions:         issuer,
		Mailer:           &authcore.ConsoleMailDispatcher{ShowBody: cfg.MailLogBody},
		Links:            cfg.LinkConfig(),
		AutoConfirmLocal: cfg.AutoConfirmLocal,
	}

	var google *oauth2.GoogleVerifier
	if cfg.GoogleEnabled() {
		google, err = oauth2.NewGoogleVerifier(ctx, cfg.GoogleClientID, httpClient)
		if err != nil {
			return fmt.Errorf("google verifier: %w", err)
		}
		auth.Google = google
	}
	if cfg.FacebookEnabled() {
		auth.Facebook = &oauth2.FacebookVerifier{
			AppID:      cfg.FacebookAppID,
			AppSecret:  cfg.FacebookAppSecret,
			HTTPClient: httpClient,
		}
	}

	sessions := scs.New()
	sessions.Lifetime = cfg.SessionTTL
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = strings.HasPrefix(cfg.ClientURL, "https://")

	api := &authcore.AccountAPI{
		Auth:       auth,
		Middleware: &authcore.SessionMiddleware{Issuer: issuer, Sessions: sessions},
		Sessions:   sessions,
	}

	router := mux.NewRouter()
	api.Routes(router.PathPrefix(authcore.AccountAPIPrefix).Subrouter())
	mountOAuth(router, cfg, api, google, httpClient)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sessions.LoadAndSave(router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("authcore listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("authcore stopped cleanly")
	return nil
}

// mountOAuth serves the server side code flows under /auth/{provider}/ when
// a callback base and the client secret are configured.
func mountOAuth(router *mux.Router, cfg authcore.Config, api *authcore.AccountAPI, google *oauth2.GoogleVerifier, client *http.Client) {
	base := strings.TrimSuffix(cfg.OAuthCallbackBase, "/")
	if base == "" {
		return
	}

	if google != nil && cfg.GoogleClientSecret != "" {
		flow := oauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret,
			base+"/auth/google/callback/", google, api.HandleProviderToken)
		flow.SetHTTPClient(client)
		router.PathPrefix("/auth/google/").Handler(http.StripPrefix("/auth/google", flow.Handler()))
	}
	if cfg.FacebookEnabled() {
		flow := oauth2.NewFacebookOAuth2(cfg.FacebookAppID, cfg.FacebookAppSecret,
			base+"/auth/facebook/callback/", api.HandleProviderToken)
		flow.SetHTTPClient(client)
		router.PathPrefix("/auth/facebook/").Handler(http.StripPrefix("/auth/facebook", flow.Handler()))
	}
}
