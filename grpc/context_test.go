package grpc

import (
	"context"
	"testing"

	"github.com/panyam/authcore"
	"google.golang.org/grpc/metadata"
)

func TestEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
}

func TestTokenFromIncomingContext(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{"no metadata", nil, ""},
		{"bearer", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"lower case scheme", metadata.Pairs("authorization", "bearer abc"), "abc"},
		{"basic is ignored", metadata.Pairs("authorization", "Basic abc"), ""},
		{"first bearer wins", metadata.Pairs("authorization", "Basic x", "authorization", "Bearer y"), "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if got := TokenFromIncomingContext(ctx, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTokenFromIncomingContext_CustomKey(t *testing.T) {
	md := metadata.Pairs("x-session", "Bearer abc")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if got := TokenFromIncomingContext(ctx, &Config{MetadataKeyAuthorization: "x-session"}); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if got := TokenFromIncomingContext(ctx, nil); got != "" {
		t.Errorf("expected default key to miss, got %q", got)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "abc")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	values := md.Get(DefaultMetadataKeyAuthorization)
	if len(values) != 1 || values[0] != "Bearer abc" {
		t.Errorf("expected [Bearer abc], got %v", values)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected empty context to be unauthenticated")
	}
	claims := &authcore.SessionClaims{}
	claims.Subject = "user123"
	ctx := authcore.WithClaims(context.Background(), claims)
	if got := UserIDFromContext(ctx); got != "user123" {
		t.Errorf("expected user123, got %q", got)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected context to be authenticated")
	}
}
