package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	auth := NewAPIKeyAuthenticator(map[string]string{"key-alice": "alice"})

	id, err := auth.Authenticate(ctx, "key-alice")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != "alice" || !id.HasScope("*") {
		t.Fatalf("identity = %+v", id)
	}

	if _, err := auth.Authenticate(ctx, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad key err = %v, want ErrUnauthorized", err)
	}
	if _, err := auth.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token err = %v, want ErrUnauthorized", err)
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTAuthenticator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	secret := []byte("test-secret")
	auth := NewJWTAuthenticator(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"sub":    "alice",
		"scopes": []any{"runs:read", "runs:write"},
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	id, err := auth.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != "alice" {
		t.Fatalf("Subject = %q", id.Subject)
	}
	if !id.HasScope("runs:read") || id.HasScope("*") {
		t.Fatalf("Scopes = %v", id.Scopes)
	}
}

func TestJWTAuthenticatorRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	secret := []byte("test-secret")
	auth := NewJWTAuthenticator(secret)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"wrong secret", signToken(t, []byte("other"), jwt.MapClaims{"sub": "alice"})},
		{"expired", signToken(t, secret, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"no subject", signToken(t, secret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := auth.Authenticate(ctx, tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestNoopAuthenticator(t *testing.T) {
	t.Parallel()

	id, err := NoopAuthenticator{}.Authenticate(context.Background(), "whoever")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != "whoever" || !id.HasScope("*") {
		t.Fatalf("identity = %+v", id)
	}
}
