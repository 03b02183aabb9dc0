package authcore

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

// Session variables written on login when a session manager is configured
const (
	SessionKeyUserID = "loggedInUserId"
	SessionKeyToken  = "authToken"
)

type claimsKey struct{}

// SessionMiddleware resolves the caller from a session credential sent as a
// bearer token, or from the one kept in the scs session after a login.
type SessionMiddleware struct {
	Issuer              *SessionIssuer
	Sessions            *scs.SessionManager
	AuthTokenHeaderName string
	Logger              *slog.Logger
}

func (m *SessionMiddleware) headerName() string {
	if m.AuthTokenHeaderName == "" {
		return "Authorization"
	}
	return m.AuthTokenHeaderName
}

func (m *SessionMiddleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Authenticate returns the verified claims of the request, if any. Header
// credentials take precedence over the session.
func (m *SessionMiddleware) Authenticate(r *http.Request) (*SessionClaims, bool) {
	var candidates []string
	for _, v := range r.Header.Values(m.headerName()) {
		if token, ok := BearerToken(v); ok {
			candidates = append(candidates, token)
		}
	}
	if m.Sessions != nil {
		if token := m.Sessions.GetString(r.Context(), SessionKeyToken); token != "" {
			candidates = append(candidates, token)
		}
	}

	for _, token := range candidates {
		claims, err := m.Issuer.Verify(token)
		if err == nil {
			return claims, true
		}
		m.logger().DebugContext(r.Context(), "rejected session credential", "error", err)
	}
	return nil, false
}

// ExtractUser loads the caller into the request context when present and
// never rejects the request.
func (m *SessionMiddleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := m.Authenticate(r); ok {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser is ExtractUser that answers 401 when there is no valid caller
func (m *SessionMiddleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.Authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// BearerToken extracts the credential from an Authorization header value
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// WithClaims stores verified session claims in ctx
func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by the middleware
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*SessionClaims)
	return claims, ok && claims != nil
}

// SubjectFromContext returns the authenticated subject id, or ""
func SubjectFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
