package auth

import (
	"testing"
	"time"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret", "HS256")

	token, err := v.IssueToken("user-1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	id, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id.UserID != "user-1" || id.Username != "alice" {
		t.Errorf("got %+v, want user-1/alice", id)
	}
}

func TestJWTVerifierRejectsBadSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a", "HS256")
	verifier := NewJWTVerifier("secret-b", "HS256")

	token, err := issuer.IssueToken("user-1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := verifier.VerifyToken(token); err == nil {
		t.Error("expected verification failure with mismatched secret")
	}
}

func TestJWTVerifierRejectsExpired(t *testing.T) {
	v := NewJWTVerifier("test-secret", "HS256")

	token, err := v.IssueToken("user-1", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := v.VerifyToken(token); err == nil {
		t.Error("expected verification failure for expired token")
	}
}
