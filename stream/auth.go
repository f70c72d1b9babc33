package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by authenticators when a token is missing,
// malformed, expired, or otherwise rejected.
var ErrUnauthorized = errors.New("stream: unauthorized")

// Identity is the authenticated principal behind a connection.
type Identity struct {
	// Subject is the user ID the token was issued for.
	Subject string

	// Scopes grants access beyond the subject's own runs. The "*" scope
	// bypasses ownership checks entirely (service-to-service tokens).
	Scopes []string
}

// HasScope reports whether the identity carries the given scope.
func (id *Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates a bearer token and resolves it to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Implementations
// ─────────────────────────────────────────────────────────────────────────────

// NoopAuthenticator accepts every request and reports the token itself as
// the subject. Meant for local development and tests only.
type NoopAuthenticator struct{}

// Authenticate accepts any token.
func (NoopAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	return &Identity{Subject: token, Scopes: []string{"*"}}, nil
}

// APIKeyAuthenticator resolves static API keys to identities. Keys map
// token value to subject; every key gets the wildcard scope.
type APIKeyAuthenticator struct {
	keys map[string]string
}

// NewAPIKeyAuthenticator creates an authenticator over a static key set.
func NewAPIKeyAuthenticator(keys map[string]string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

// Authenticate looks the token up in the key set.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	subject, ok := a.keys[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &Identity{Subject: subject, Scopes: []string{"*"}}, nil
}

// JWTAuthenticator validates HS256-signed JWTs. The subject claim becomes
// Identity.Subject and an optional "scopes" claim (array of strings)
// becomes Identity.Scopes.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates a JWT authenticator with the given HMAC secret.
func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

// Authenticate parses and validates the token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("stream: unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrUnauthorized
	}

	identity := &Identity{Subject: subject}
	if raw, ok := claims["scopes"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				identity.Scopes = append(identity.Scopes, str)
			}
		}
	}
	return identity, nil
}

var (
	_ Authenticator = NoopAuthenticator{}
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ Authenticator = (*JWTAuthenticator)(nil)
)
