package domain

import (
	"errors"
	"time"
)

// Identity links a user to a way of signing in: a local password or an OAuth provider account.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string // email for local identities, the provider's subject for OAuth
	PasswordHash string // empty unless Provider is local
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal    IdentityProvider = "local"
	IdentityProviderGoogle   IdentityProvider = "google"
	IdentityProviderGitHub   IdentityProvider = "github"
	IdentityProviderLinkedIn IdentityProvider = "linkedin"
)

// ErrIdentityExists is returned when the (provider, provider ID) pair is already linked.
var ErrIdentityExists = errors.New("identity already linked")

// ParseProvider validates an OAuth provider name. The local provider is not accepted here.
func ParseProvider(s string) (IdentityProvider, error) {
	switch p := IdentityProvider(s); p {
	case IdentityProviderGoogle, IdentityProviderGitHub, IdentityProviderLinkedIn:
		return p, nil
	}
	return "", errors.New("unsupported identity provider")
}

// ExternalIdentity is the verified (externalId, email, profile) tuple handed over by the OAuth handshake.
type ExternalIdentity struct {
	Provider   IdentityProvider
	ExternalID string
	Email      string
	Profile    Profile
}

// Profile is the subset of provider profile data kept on the user.
type Profile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}
