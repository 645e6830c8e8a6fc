package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	claims := Claims{
		Org:  "org_abc",
		Name: "Acme Corp",
		JTI:  "jti-1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if parsed.Org != claims.Org || parsed.JTI != claims.JTI {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	claims := Claims{Org: "org_abc", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := ParseToken(secret, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken under wrong secret, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	claims := Claims{Org: "org_abc", JTI: "jti-1", Exp: time.Now().Add(-time.Minute).Unix()}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsMissingOrg(t *testing.T) {
	claims := Claims{Name: "No Org", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()}
	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAPIKeyHashRoundTrip(t *testing.T) {
	hash, err := HashAPIKey("gk_live_123456")
	if err != nil {
		t.Fatalf("HashAPIKey failed: %v", err)
	}
	if err := VerifyAPIKey(hash, "gk_live_123456"); err != nil {
		t.Fatalf("VerifyAPIKey rejected the right key: %v", err)
	}
	if err := VerifyAPIKey(hash, "gk_live_wrong"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}
