package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticateMissingBearer(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "test-token")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := auth.Authenticate(req)
	if err != ErrMissingBearer {
		t.Fatalf("expected ErrMissingBearer, got %v", err)
	}
}

func TestAuthenticateDevToken(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "test-token")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	claims, err := auth.Authenticate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "dev" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "test-token")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	_, err := auth.Authenticate(req)
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticateBadAuthorizationHeader(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "test-token")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	_, err := auth.Authenticate(req)
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticateEmptyBearer(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "test-token")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	_, err := auth.Authenticate(req)
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticateNoTokenConfigured(t *testing.T) {
	t.Setenv("DEPO_DEV_TOKEN", "")

	auth := NewAuthenticatorFromEnv()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	if _, err := auth.Authenticate(req); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
