package authcore_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/panyam/authcore"
)

type apiUser struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	JWT       string `json:"jwt"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newTestAPI(t *testing.T, sessions *scs.SessionManager) (*testEnv, *authcore.AccountAPI, *httptest.Server) {
	t.Helper()
	env := newTestEnv(t)
	api := &authcore.AccountAPI{
		Auth:       env.Auth,
		Middleware: &authcore.SessionMiddleware{Issuer: env.Issuer, Sessions: sessions},
		Sessions:   sessions,
	}
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return env, api, server
}

func doJSON(t *testing.T, client *http.Client, method, url, bearer, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestAccountAPI_LocalFlow(t *testing.T) {
	env, _, server := newTestAPI(t, nil)
	base := server.URL + authcore.AccountAPIPrefix
	client := server.Client()

	resp := doJSON(t, client, http.MethodPost, base+"/register", "",
		`{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"secret1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", resp.StatusCode)
	}
	var notice authcore.Notice
	decodeBody(t, resp, &notice)
	if notice.Title != "Account Created" {
		t.Errorf("unexpected notice %+v", notice)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/login", "", `{"userName":"ada@example.com","password":"secret1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login before confirm: expected 401, got %d", resp.StatusCode)
	}
	var apiErr apiError
	decodeBody(t, resp, &apiErr)
	if apiErr.Code != string(authcore.KindEmailNotConfirmed) || apiErr.Error != "Please confirm your email address first" {
		t.Errorf("unexpected error body %+v", apiErr)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/resend-email-confirmation-link/ada@example.com", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resend: expected 200, got %d", resp.StatusCode)
	}

	token, email := linkParams(t, env.Mailer.last(t))
	body, _ := json.Marshal(map[string]string{"token": token, "email": email})
	resp = doJSON(t, client, http.MethodPut, base+"/confirm-email", "", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/login", "", `{"userName":"ada@example.com","password":"secret1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var user apiUser
	decodeBody(t, resp, &user)
	if user.JWT == "" || user.FirstName != "ada" || user.UserID == "" {
		t.Fatalf("unexpected user %+v", user)
	}

	resp = doJSON(t, client, http.MethodGet, base+"/refresh-user-token", user.JWT, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var refreshed apiUser
	decodeBody(t, resp, &refreshed)
	if refreshed.UserID != user.UserID || refreshed.JWT == "" {
		t.Errorf("unexpected refreshed user %+v", refreshed)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/forgot-username-or-password/ada@example.com", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot: expected 200, got %d", resp.StatusCode)
	}
	token, email = linkParams(t, env.Mailer.last(t))
	body, _ = json.Marshal(map[string]string{"token": token, "email": email, "newPassword": "newsecret"})
	resp = doJSON(t, client, http.MethodPut, base+"/reset-password", "", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/login", "", `{"userName":"ada@example.com","password":"newsecret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", resp.StatusCode)
	}
}

func TestAccountAPI_ExternalFlow(t *testing.T) {
	_, _, server := newTestAPI(t, nil)
	base := server.URL + authcore.AccountAPIPrefix
	client := server.Client()

	resp := doJSON(t, client, http.MethodPost, base+"/login-with-third-party", "",
		`{"provider":"google","accessToken":"google-token","userId":"g-1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login before register: expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/register-with-third-party", "",
		`{"provider":"google","accessToken":"google-token","userId":"g-1","firstName":"Grace","lastName":"Hopper"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register external: expected 200, got %d", resp.StatusCode)
	}
	var user apiUser
	decodeBody(t, resp, &user)
	if user.JWT == "" || user.LastName != "hopper" {
		t.Errorf("unexpected user %+v", user)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/login-with-third-party", "",
		`{"provider":"google","accessToken":"google-token","userId":"g-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login external: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/login-with-third-party", "",
		`{"provider":"myspace","accessToken":"x","userId":"g-1"}`)
	var apiErr apiError
	decodeBody(t, resp, &apiErr)
	if resp.StatusCode != http.StatusBadRequest || apiErr.Code != string(authcore.KindUnsupportedProvider) {
		t.Errorf("expected 400 unsupported_provider, got %d %+v", resp.StatusCode, apiErr)
	}
}

func TestAccountAPI_RequestValidation(t *testing.T) {
	_, _, server := newTestAPI(t, nil)
	base := server.URL + authcore.AccountAPIPrefix
	client := server.Client()

	tests := []struct {
		name       string
		method     string
		path       string
		bearer     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed json", http.MethodPost, "/login", "", `{"userName":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/login", "", `{"userName":"a","password":"b","admin":true}`, http.StatusBadRequest, "invalid_request"},
		{"trailing data", http.MethodPost, "/login", "", `{"userName":"a","password":"b"}{}`, http.StatusBadRequest, "invalid_request"},
		{"bad credentials", http.MethodPost, "/login", "", `{"userName":"a","password":"b"}`, http.StatusUnauthorized, "invalid_credentials"},
		{"refresh without credential", http.MethodGet, "/refresh-user-token", "", "", http.StatusUnauthorized, "unauthorized"},
		{"refresh with garbage credential", http.MethodGet, "/refresh-user-token", "garbage", "", http.StatusUnauthorized, "unauthorized"},
		{"confirm unknown account", http.MethodPut, "/confirm-email", "", `{"token":"abc","email":"nobody@example.com"}`, http.StatusUnauthorized, "account_not_found"},
		{"register weak password", http.MethodPost, "/register", "", `{"email":"bob@example.com","password":"1"}`, http.StatusBadRequest, "weak_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, client, tt.method, base+tt.path, tt.bearer, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			var apiErr apiError
			decodeBody(t, resp, &apiErr)
			if apiErr.Code != tt.wantCode || apiErr.Error == "" {
				t.Errorf("expected code %q, got %+v", tt.wantCode, apiErr)
			}
		})
	}
}

func TestAccountAPI_BodyLimit(t *testing.T) {
	_, api, _ := newTestAPI(t, nil)
	big := `{"userName":"` + strings.Repeat("a", authcore.MaxRequestBodyBytes) + `","password":"x"}`

	r := httptest.NewRequest(http.MethodPost, authcore.AccountAPIPrefix+"/login", bytes.NewBufferString(big))
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized body, got %d", w.Code)
	}
}

func TestAccountAPI_MethodNotAllowed(t *testing.T) {
	_, _, server := newTestAPI(t, nil)
	resp, err := server.Client().Get(server.URL + authcore.AccountAPIPrefix + "/login")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAccountAPI_SessionCookie(t *testing.T) {
	env, _, server := newTestAPI(t, scs.New())
	env.registerConfirmed(t, "ada@example.com", "secret1")
	base := server.URL + authcore.AccountAPIPrefix

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar failed: %v", err)
	}
	client := &http.Client{Jar: jar}

	resp := doJSON(t, client, http.MethodPost, base+"/login", "", `{"userName":"ada@example.com","password":"secret1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	// no bearer header: the session cookie carries the credential
	resp = doJSON(t, client, http.MethodGet, base+"/refresh-user-token", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh via session: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, client, http.MethodPost, base+"/logout", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp = doJSON(t, client, http.MethodGet, base+"/refresh-user-token", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after logout: expected 401, got %d", resp.StatusCode)
	}
}

func TestAccountAPI_HandleProviderToken(t *testing.T) {
	env, api, _ := newTestAPI(t, nil)
	if _, err := env.Auth.RegisterExternal(t.Context(), authcore.RegisterExternalRequest{
		Provider: "google", AccessToken: "google-token", UserID: "g-1",
	}); err != nil {
		t.Fatalf("RegisterExternal failed: %v", err)
	}

	tests := []struct {
		name         string
		callbackURL  string
		token        string
		wantStatus   int
		wantLocation string
	}{
		{"json without callback", "", "google-token", http.StatusOK, ""},
		{"redirect on success", "/done", "google-token", http.StatusFound, "/done"},
		{"redirect to client host", "https://app.example.com/welcome", "google-token", http.StatusFound, "https://app.example.com/welcome"},
		{"redirect with error", "/done", "forged", http.StatusFound, "/done?error=external_verification_failed"},
		{"foreign host falls back to json", "https://evil.example.net/steal", "google-token", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/auth/google/callback/", nil)
			if tt.callbackURL != "" {
				r.AddCookie(&http.Cookie{Name: "oauthCallbackURL", Value: tt.callbackURL})
			}
			w := httptest.NewRecorder()
			api.HandleProviderToken("google", tt.token, "g-1", w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantLocation != "" {
				loc, _ := url.Parse(w.Header().Get("Location"))
				want, _ := url.Parse(tt.wantLocation)
				if loc.String() != want.String() {
					t.Errorf("expected redirect to %s, got %s", want, loc)
				}
			}
		})
	}
}
