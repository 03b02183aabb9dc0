package authcore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	authoauth2 "github.com/panyam/authcore/oauth2"
)

// MaxRequestBodyBytes bounds the JSON body of every account request
const MaxRequestBodyBytes = 1 << 20

// AccountAPIPrefix is where Handler mounts the account routes
const AccountAPIPrefix = "/api/account"

// AccountAPI exposes the Authenticator over HTTP/JSON
type AccountAPI struct {
	Auth       *Authenticator
	Middleware *SessionMiddleware

	// Sessions is optional. When set, successful logins are remembered in
	// the session and Handler wraps the router with LoadAndSave.
	Sessions *scs.SessionManager

	Logger *slog.Logger
}

type userResponse struct {
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	JWT       string    `json:"jwt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type externalLoginRequest struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Provider    string `json:"provider"`
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type externalRegisterRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

type confirmEmailRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

func (a *AccountAPI) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Handler returns a router serving the account API under AccountAPIPrefix
func (a *AccountAPI) Handler() http.Handler {
	r := mux.NewRouter()
	a.Routes(r.PathPrefix(AccountAPIPrefix).Subrouter())
	if a.Sessions != nil {
		return a.Sessions.LoadAndSave(r)
	}
	return r
}

// Routes registers the account endpoints on r
func (a *AccountAPI) Routes(r *mux.Router) {
	r.Handle("/refresh-user-token", a.Middleware.EnsureUser(http.HandlerFunc(a.handleRefresh))).Methods(http.MethodGet)
	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/login-with-third-party", a.handleLoginExternal).Methods(http.MethodPost)
	r.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/register-with-third-party", a.handleRegisterExternal).Methods(http.MethodPost)
	r.HandleFunc("/confirm-email", a.handleConfirmEmail).Methods(http.MethodPut)
	r.HandleFunc("/resend-email-confirmation-link/{email}", a.handleResendConfirmation).Methods(http.MethodPost)
	r.HandleFunc("/forgot-username-or-password/{email}", a.handleForgot).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", a.handleResetPassword).Methods(http.MethodPut)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
}

func (a *AccountAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := a.Auth.RefreshSession(r.Context(), SubjectFromContext(r.Context()))
	a.respondUser(w, r, result, err)
}

func (a *AccountAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.Login(r.Context(), req.UserName, req.Password)
	a.respondUser(w, r, result, err)
}

func (a *AccountAPI) handleLoginExternal(w http.ResponseWriter, r *http.Request) {
	var req externalLoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.LoginExternal(r.Context(), req.Provider, req.AccessToken, req.UserID)
	a.respondUser(w, r, result, err)
}

func (a *AccountAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	notice, err := a.Auth.Register(r.Context(), RegisterRequest(req))
	a.respondNotice(w, notice, err)
}

func (a *AccountAPI) handleRegisterExternal(w http.ResponseWriter, r *http.Request) {
	var req externalRegisterRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.RegisterExternal(r.Context(), RegisterExternalRequest(req))
	a.respondUser(w, r, result, err)
}

func (a *AccountAPI) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if !a.decode(w, r, &req) {
		return
	}
	notice, err := a.Auth.ConfirmEmail(r.Context(), req.Email, req.Token)
	a.respondNotice(w, notice, err)
}

func (a *AccountAPI) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	notice, err := a.Auth.ResendConfirmation(r.Context(), mux.Vars(r)["email"])
	a.respondNotice(w, notice, err)
}

func (a *AccountAPI) handleForgot(w http.ResponseWriter, r *http.Request) {
	notice, err := a.Auth.ForgotCredentials(r.Context(), mux.Vars(r)["email"])
	a.respondNotice(w, notice, err)
}

func (a *AccountAPI) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !a.decode(w, r, &req) {
		return
	}
	notice, err := a.Auth.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword)
	a.respondNotice(w, notice, err)
}

// HandleProviderToken completes a server side OAuth code flow as a
// LoginExternal call. It has the oauth2.HandleTokenFunc signature. When the
// flow started with a callbackURL the browser is sent back there, with an
// error query parameter on failure. Otherwise the result is written as JSON.
func (a *AccountAPI) HandleProviderToken(provider, token, subject string, w http.ResponseWriter, r *http.Request) {
	result, err := a.Auth.LoginExternal(r.Context(), provider, token, subject)

	cookie, cookieErr := r.Cookie(authoauth2.CallbackURLCookieName)
	if cookieErr != nil || cookie.Value == "" {
		a.respondUser(w, r, result, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: authoauth2.CallbackURLCookieName, Path: "/", MaxAge: -1})

	target, ok := a.callbackTarget(cookie.Value)
	if !ok {
		a.logger().WarnContext(r.Context(), "rejected oauth callback url", "url", cookie.Value)
		a.respondUser(w, r, result, err)
		return
	}
	if err != nil {
		code := string(KindInternal)
		var ae *AuthError
		if errors.As(err, &ae) {
			code = string(ae.Kind)
		}
		q := target.Query()
		q.Set("error", code)
		target.RawQuery = q.Encode()
	} else {
		a.rememberLogin(r, result.Session)
	}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// callbackTarget accepts relative paths and urls on the client's host
func (a *AccountAPI) callbackTarget(raw string) (*url.URL, bool) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if target.Host == "" && target.Scheme == "" {
		return target, true
	}
	client, err := url.Parse(a.Auth.Links.ClientURL)
	if err != nil || client.Host == "" {
		return nil, false
	}
	return target, target.Scheme == client.Scheme && target.Host == client.Host
}

func (a *AccountAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if a.Sessions != nil {
		if err := a.Sessions.Destroy(r.Context()); err != nil {
			a.logger().WarnContext(r.Context(), "error clearing session", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, Notice{Title: "Logged out", Message: "You have been logged out"})
}

// decode reads a size bounded JSON body into v, answering 400 itself on
// failure.
func (a *AccountAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.logger().DebugContext(r.Context(), "invalid request body", "path", r.URL.Path, "error", err)
		writeAuthError(w, NewAuthError(KindInvalidRequest))
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeAuthError(w, NewAuthError(KindInvalidRequest))
		return false
	}
	return true
}

func (a *AccountAPI) respondUser(w http.ResponseWriter, r *http.Request, result *AuthResult, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	a.rememberLogin(r, result.Session)
	writeJSON(w, http.StatusOK, userResponse{
		UserID:    result.Session.SubjectID,
		FirstName: result.Profile.FirstName,
		LastName:  result.Profile.LastName,
		JWT:       result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

func (a *AccountAPI) respondNotice(w http.ResponseWriter, notice *Notice, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notice)
}

// rememberLogin keeps the credential in the session so browser clients
// can call the API without a bearer header.
func (a *AccountAPI) rememberLogin(r *http.Request, session *SessionCredential) {
	if a.Sessions == nil {
		return
	}
	if err := a.Sessions.RenewToken(r.Context()); err != nil {
		a.logger().WarnContext(r.Context(), "failed to renew session token", "error", err)
	}
	a.Sessions.Put(r.Context(), SessionKeyUserID, session.SubjectID)
	a.Sessions.Put(r.Context(), SessionKeyToken, session.Token)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *AuthError
	if !errors.As(err, &ae) {
		ae = NewAuthError(KindInternal)
	}
	writeAuthError(w, ae)
}

func writeAuthError(w http.ResponseWriter, ae *AuthError) {
	writeJSON(w, ae.HTTPStatus(), errorBody{Error: ae.Message, Code: string(ae.Kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
