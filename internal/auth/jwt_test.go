package auth

import (
	"testing"
	"time"
)

func TestNewManagerAndTokenLifecycle(t *testing.T) {
	mgr, err := NewManager("test-secret", "issuer", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}

	token, expiresAt, err := mgr.GenerateToken()
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected future expiry time")
	}

	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.Subject != "admin" {
		t.Fatalf("expected admin subject, got %s", claims.Subject)
	}
	if claims.Issuer != "issuer" {
		t.Fatalf("expected issuer, got %s", claims.Issuer)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuerMgr, err := NewManager("secret-a", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	verifierMgr, err := NewManager("secret-b", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, _, err := issuerMgr.GenerateToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := verifierMgr.ParseToken(token); err == nil {
		t.Fatal("expected error for token signed with different secret")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	mgr, err := NewManager("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.ParseToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
