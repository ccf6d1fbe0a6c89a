package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// GuestTokenHeader carries the anonymous cart token issued to shoppers who are not signed in.
const GuestTokenHeader = "X-Cart-Token"

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// PrimaryRole returns admin when present, otherwise the first role.
func (i *Identity) PrimaryRole() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	if i.IsAdmin() {
		return RoleAdmin
	}
	return i.Roles[0]
}

type contextKey string

const (
	identityContextKey   contextKey = "github.com/furnishop/api/internal/platform/auth/identity"
	guestTokenContextKey contextKey = "github.com/furnishop/api/internal/platform/auth/guest_token"
)

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithGuestToken stores the caller's anonymous cart token.
func WithGuestToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, guestTokenContextKey, token)
}

// GuestTokenFromContext returns the anonymous cart token, if the request carried a valid one.
func GuestTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(guestTokenContextKey).(string)
	return token
}
