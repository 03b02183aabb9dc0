package oauth2

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// DefaultAuthFailureURL is where callbacks redirect when a flow fails
const DefaultAuthFailureURL = "/auth/failed"

// BaseOAuth2 holds what every provider's code flow shares: client
// credentials, the oauth2 config, the state checks and the routes.
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// HandleToken is called once the provider has vouched for the caller
	HandleToken HandleTokenFunc

	// AuthFailureUrl is the redirect target for failed flows
	AuthFailureUrl string

	// HTTPClient is used for the code exchange and provider calls when set
	HTTPClient *http.Client

	Logger *slog.Logger

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func newBaseOAuth2(clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes []string, handleToken HandleTokenFunc) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleToken:    handleToken,
		AuthFailureUrl: DefaultAuthFailureURL,
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

// Handler serves "/" (start the flow) and "/callback/" (finish it). Mount
// it under a provider prefix with http.StripPrefix.
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

// SetOAuthEndpoint replaces the provider's authorization and token URLs
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// SetHTTPClient sets the client used for provider calls
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

// OAuthConfig returns a copy of the oauth2 configuration
func (b *BaseOAuth2) OAuthConfig() oauth2.Config {
	return b.oauthConfig
}

func (b *BaseOAuth2) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// exchangeContext makes the oauth2 library use our HTTP client
func (b *BaseOAuth2) exchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) routes(callback http.HandlerFunc) {
	b.mux.HandleFunc("/callback/", callback)
	b.mux.HandleFunc("/", OauthRedirector(&b.oauthConfig))
}

// exchange checks the state cookie and trades the code for a token. It
// writes the error response itself and returns nil on failure.
func (b *BaseOAuth2) exchange(provider string, w http.ResponseWriter, r *http.Request) *oauth2.Token {
	oauthState, _ := r.Cookie(StateCookieName)
	if oauthState == nil {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return nil
	}
	if r.FormValue("state") != oauthState.Value {
		clearStateCookie(w)
		http.Error(w, fmt.Sprintf("invalid oauth %s state", provider), http.StatusBadRequest)
		return nil
	}
	clearStateCookie(w)

	token, err := b.oauthConfig.Exchange(b.exchangeContext(r.Context()), r.FormValue("code"))
	if err != nil {
		b.logger().InfoContext(r.Context(), "code exchange failed", "provider", provider, "error", err)
		b.fail(w, r)
		return nil
	}
	return token
}

func (b *BaseOAuth2) fail(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
}

func (b *BaseOAuth2) complete(provider, token, subject string, w http.ResponseWriter, r *http.Request) {
	if b.HandleToken == nil {
		b.logger().WarnContext(r.Context(), "no token handler configured", "provider", provider)
		b.fail(w, r)
		return
	}
	b.HandleToken(provider, token, subject, w, r)
}
