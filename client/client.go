package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// RefreshThreshold is how long before expiry to proactively refresh
const RefreshThreshold = 5 * time.Minute

// DefaultAPIPrefix is where the account API is mounted on the server
const DefaultAPIPrefix = "/api/account"

// maxResponseBytes bounds the JSON bodies read from the server
const maxResponseBytes = 1 << 20

// ErrNotLoggedIn is returned by Refresh when there is no usable credential
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a failure reported by the account API
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: HTTP %d", e.Status)
	}
	return fmt.Sprintf("request failed: %s (%s)", e.Message, e.Code)
}

// userResponse is the body of every successful login or refresh
type userResponse struct {
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	JWT       string    `json:"jwt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthClient is an HTTP client with automatic credential management
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	apiPrefix     string
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithAPIPrefix sets a custom mount point for the account API
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.apiPrefix = prefix
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a new authenticated HTTP client for a server
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		apiPrefix:     DefaultAPIPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &refreshTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetCredential returns the stored credential for this server
func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// GetToken returns the current credential, refreshing it when it expires
// within RefreshThreshold. An expired or missing credential yields "".
func (c *AuthClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.IsExpired() {
		return "", nil
	}

	if cred.IsExpiringSoon(RefreshThreshold) {
		refreshed, err := c.refreshLocked(ctx, cred)
		if err != nil {
			// the old credential is still valid for a little while
			return cred.AccessToken, nil
		}
		cred = refreshed
	}
	return cred.AccessToken, nil
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return false
	}
	return !cred.IsExpired()
}

// Login authenticates with username and password and stores the credential
func (c *AuthClient) Login(ctx context.Context, username, password string) (*ServerCredential, error) {
	body := map[string]string{"userName": username, "password": password}
	return c.login(ctx, "/login", body)
}

// LoginExternal exchanges a Facebook or Google token for a session credential
func (c *AuthClient) LoginExternal(ctx context.Context, provider, accessToken, userID string) (*ServerCredential, error) {
	body := map[string]string{"provider": provider, "accessToken": accessToken, "userId": userID}
	return c.login(ctx, "/login-with-third-party", body)
}

func (c *AuthClient) login(ctx context.Context, path string, body any) (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resp userResponse
	if err := c.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return nil, err
	}
	cred := credentialFrom(&resp)
	if err := c.storeLocked(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Refresh trades the current credential for a fresh one
func (c *AuthClient) Refresh(ctx context.Context) (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.IsExpired() {
		return nil, ErrNotLoggedIn
	}
	return c.refreshLocked(ctx, cred)
}

// Logout ends the server session and removes the stored credential. The
// credential is removed even if the server cannot be reached.
func (c *AuthClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var token string
	if cred, err := c.store.GetCredential(c.serverURL); err == nil && cred != nil {
		token = cred.AccessToken
	}
	callErr := c.do(ctx, http.MethodPost, "/logout", token, nil, nil)

	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return callErr
}

// refreshLocked calls the refresh endpoint. Caller must hold c.mu.
func (c *AuthClient) refreshLocked(ctx context.Context, cred *ServerCredential) (*ServerCredential, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "/refresh-user-token", cred.AccessToken, nil, &resp); err != nil {
		return nil, err
	}
	refreshed := credentialFrom(&resp)
	if refreshed.UserID == "" {
		refreshed.UserID = cred.UserID
	}
	if err := c.storeLocked(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (c *AuthClient) storeLocked(cred *ServerCredential) error {
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func credentialFrom(resp *userResponse) *ServerCredential {
	expiresAt := resp.ExpiresAt
	if exp, ok := TokenExpiry(resp.JWT); ok {
		expiresAt = exp
	}
	return &ServerCredential{
		AccessToken: resp.JWT,
		UserID:      resp.UserID,
		FirstName:   resp.FirstName,
		LastName:    resp.LastName,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
}

// do sends a JSON request with the base transport, bypassing the refresh
// transport so credential calls never recurse.
func (c *AuthClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{
		Transport: &AuthTransport{Base: c.baseTransport, Token: token},
		Timeout:   c.httpClient.Timeout,
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
