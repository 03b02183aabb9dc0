// Package grpc carries authcore session credentials across gRPC calls.
// Clients attach the credential as "authorization: Bearer <jwt>" metadata
// and the interceptors verify it with the same SessionIssuer the HTTP API
// uses, exposing the subject through the context.
package grpc

import (
	"context"

	"github.com/panyam/authcore"
	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the gRPC metadata key carrying the bearer credential
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// TokenFromIncomingContext returns the first bearer credential found in the
// incoming metadata, or "".
func TokenFromIncomingContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := authcore.BearerToken(v); ok {
			return token
		}
	}
	return ""
}

// TokenToOutgoingContext attaches a session credential to outgoing metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// UserIDFromContext returns the subject verified by the interceptors, or "".
func UserIDFromContext(ctx context.Context) string {
	return authcore.SubjectFromContext(ctx)
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
