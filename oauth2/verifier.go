package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// Provider names as accepted by the account API
const (
	ProviderFacebook = "facebook"
	ProviderGoogle   = "google"
)

// DefaultFacebookGraphURL is the Graph API base used for introspection
const DefaultFacebookGraphURL = "https://graph.facebook.com"

// Issuers Google signs ID tokens with
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

const maxProviderResponseBytes = 1 << 20

// FederatedClaim is what a provider asserts about a token. It is built per
// verification and never stored.
type FederatedClaim struct {
	Subject       string
	Audience      string
	Issuer        string
	ExpirySeconds int64
	Valid         bool
}

// FacebookVerifier checks access tokens with the Graph API debug_token
// endpoint.
type FacebookVerifier struct {
	GraphURL   string
	AppID      string
	AppSecret  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type debugTokenResponse struct {
	Data struct {
		AppID     string `json:"app_id"`
		IsValid   bool   `json:"is_valid"`
		UserID    string `json:"user_id"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

func (f *FacebookVerifier) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Claim asks Facebook what it knows about accessToken
func (f *FacebookVerifier) Claim(ctx context.Context, accessToken string) (*FederatedClaim, error) {
	base := f.GraphURL
	if base == "" {
		base = DefaultFacebookGraphURL
	}
	q := url.Values{}
	q.Set("input_token", accessToken)
	q.Set("access_token", f.AppID+"|"+f.AppSecret)
	endpoint := strings.TrimSuffix(base, "/") + "/debug_token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("debug_token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("debug_token returned status %d", resp.StatusCode)
	}
	var body debugTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode debug_token response: %w", err)
	}
	return &FederatedClaim{
		Subject:       body.Data.UserID,
		Audience:      body.Data.AppID,
		Issuer:        ProviderFacebook,
		ExpirySeconds: body.Data.ExpiresAt,
		Valid:         body.Data.IsValid,
	}, nil
}

// Verify accepts the token only when Facebook reports it valid for
// claimedUserID.
func (f *FacebookVerifier) Verify(ctx context.Context, accessToken, claimedUserID string) bool {
	claim, err := f.Claim(ctx, accessToken)
	if err != nil {
		f.logger().WarnContext(ctx, "facebook verification failed", "error", err)
		return false
	}
	if !claim.Valid {
		f.logger().DebugContext(ctx, "facebook token reported invalid")
		return false
	}
	if claim.Subject != claimedUserID {
		f.logger().DebugContext(ctx, "facebook subject mismatch", "subject", claim.Subject, "claimed", claimedUserID)
		return false
	}
	return true
}

// TokenValidator checks an ID token signature and returns its payload.
// *idtoken.Validator implements it.
type TokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier checks Google ID tokens. Signature validation is done by
// Validator; the claims are then checked again here.
type GoogleVerifier struct {
	ClientID  string
	Validator TokenValidator
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewGoogleVerifier creates a verifier backed by idtoken.Validator. The
// client is used to fetch Google's signing certificates.
func NewGoogleVerifier(ctx context.Context, clientID string, client *http.Client) (*GoogleVerifier, error) {
	var opts []option.ClientOption
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	validator, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}
	return &GoogleVerifier{ClientID: clientID, Validator: validator}, nil
}

func (g *GoogleVerifier) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *GoogleVerifier) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Claim validates the signature of idToken and returns its claims
func (g *GoogleVerifier) Claim(ctx context.Context, idToken string) (*FederatedClaim, error) {
	if g.Validator == nil {
		return nil, errors.New("no id token validator configured")
	}
	payload, err := g.Validator.Validate(ctx, idToken, g.ClientID)
	if err != nil {
		return nil, fmt.Errorf("id token validation failed: %w", err)
	}
	if payload == nil {
		return nil, errors.New("id token validation returned no payload")
	}
	return &FederatedClaim{
		Subject:       payload.Subject,
		Audience:      payload.Audience,
		Issuer:        payload.Issuer,
		ExpirySeconds: payload.Expires,
		Valid:         true,
	}, nil
}

// Verify accepts idToken only when audience, issuer, expiry and subject all
// check out.
func (g *GoogleVerifier) Verify(ctx context.Context, idToken, claimedUserID string) bool {
	claim, err := g.Claim(ctx, idToken)
	if err != nil {
		g.logger().WarnContext(ctx, "google verification failed", "error", err)
		return false
	}
	if reason := g.check(claim, claimedUserID); reason != "" {
		g.logger().DebugContext(ctx, "google token rejected", "reason", reason)
		return false
	}
	return true
}

func (g *GoogleVerifier) check(claim *FederatedClaim, claimedUserID string) string {
	if g.ClientID == "" || claim.Audience != g.ClientID {
		return "audience mismatch"
	}
	if !slices.Contains(GoogleIssuers, claim.Issuer) {
		return "unexpected issuer"
	}
	if claim.ExpirySeconds == 0 {
		return "missing expiry"
	}
	if time.Unix(claim.ExpirySeconds, 0).Before(g.now()) {
		return "expired"
	}
	if claim.Subject == "" || claim.Subject != claimedUserID {
		return "subject mismatch"
	}
	return ""
}
