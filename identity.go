package authcore

import (
	"strings"
	"time"
)

// Provider identifies who vouches for an identity. The set is closed:
// adding a provider means adding a constant here and a case to
// Authenticator.verifierFor.
type Provider string

const (
	ProviderNone     Provider = ""
	ProviderFacebook Provider = "facebook"
	ProviderGoogle   Provider = "google"
)

// ParseProvider maps a client supplied provider name onto a federated
// Provider. Names are case-insensitive. ProviderNone is not a valid
// federated provider and is rejected like any unknown name.
func ParseProvider(name string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderFacebook:
		return ProviderFacebook, true
	case ProviderGoogle:
		return ProviderGoogle, true
	}
	return ProviderNone, false
}

func (p Provider) String() string {
	if p == ProviderNone {
		return "local"
	}
	return string(p)
}

// DisplayName is the first/last name pair shown back to clients
type DisplayName struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

func (d DisplayName) String() string {
	return strings.TrimSpace(d.First + " " + d.Last)
}

// LocalIdentity is an account in this system. A federated identity carries
// both Provider and ProviderSubject, a local one carries neither.
type LocalIdentity struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Name            DisplayName `json:"name"`
	Email           string      `json:"email,omitempty"` // normalized
	EmailConfirmed  bool        `json:"email_confirmed"`
	PasswordHash    string      `json:"password_hash,omitempty"`
	Provider        Provider    `json:"provider,omitempty"`
	ProviderSubject string      `json:"provider_subject,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsFederated reports whether the identity is linked to an external provider
func (i *LocalIdentity) IsFederated() bool {
	return i.Provider != ProviderNone
}

// HasConsistentLink checks that Provider and ProviderSubject are both set or
// both unset.
func (i *LocalIdentity) HasConsistentLink() bool {
	return (i.Provider == ProviderNone) == (i.ProviderSubject == "")
}

// NormalizeEmail returns the canonical form used for lookups and uniqueness
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName lower-cases a profile name the way registration stores it
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
