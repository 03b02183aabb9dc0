package grpc

import (
	"context"
	"log/slog"

	"github.com/panyam/authcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Issuer verifies the credentials. Required.
	Issuer *authcore.SessionIssuer

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	Logger *slog.Logger
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(issuer *authcore.SessionIssuer) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Issuer:        issuer,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(issuer *authcore.SessionIssuer, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(issuer)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(issuer *authcore.SessionIssuer) *InterceptorConfig {
	config := DefaultInterceptorConfig(issuer)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// authenticate verifies the credential in ctx. A missing or invalid
// credential fails only when the method requires auth.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	required := c.RequireAuth && !c.PublicMethods[method]

	token := TokenFromIncomingContext(ctx, c.Config)
	if token == "" {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	claims, err := c.Issuer.Verify(token)
	if err != nil {
		c.Logger.DebugContext(ctx, "rejected grpc credential", "method", method, "error", err)
		if required {
			return nil, status.Error(codes.Unauthenticated, "invalid credential")
		}
		return ctx, nil
	}
	return authcore.WithClaims(ctx, claims), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// session credential and stores its claims in the handler context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStream overrides the stream context with the authenticated one
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the session credential.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}
