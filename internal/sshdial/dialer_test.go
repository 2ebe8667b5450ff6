package sshdial

import (
	"os"
	"testing"

	"github.com/ashureev/sshgw/internal/domain"
)

func TestAuthMethodsPassword(t *testing.T) {
	d := NewDialer(0)
	cred := domain.CredentialRecord{Method: domain.AuthPassword, Secret: "hunter2"}

	methods, cleanup, err := d.authMethods(cred)
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if cleanup != nil {
		t.Error("password auth should not need cleanup")
	}
	if len(methods) != 1 {
		t.Fatalf("expected 1 auth method, got %d", len(methods))
	}
}

func TestAuthMethodsPrivateKeyInvalid(t *testing.T) {
	d := NewDialer(0)
	cred := domain.CredentialRecord{Method: domain.AuthPrivateKey, Secret: "not a real key"}

	_, cleanup, err := d.authMethods(cred)
	if cleanup != nil {
		cleanup()
	}
	derr, ok := err.(*DialError)
	if !ok {
		t.Fatalf("expected *DialError, got %T", err)
	}
	if derr.Kind != ErrAuthFailed {
		t.Errorf("got kind %v, want auth_failed", derr.Kind)
	}
}

func TestAuthMethodsPrivateKeyTempFileCleanedUp(t *testing.T) {
	d := NewDialer(0)
	cred := domain.CredentialRecord{Method: domain.AuthPrivateKey, Secret: "bad-key"}

	before, _ := os.ReadDir(os.TempDir())
	_, cleanup, _ := d.authMethods(cred)
	if cleanup != nil {
		cleanup()
	}
	after, _ := os.ReadDir(os.TempDir())
	if len(after) > len(before) {
		t.Error("temp key file was not cleaned up")
	}
}

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer(0)
	if d.Timeout <= 0 {
		t.Error("expected default timeout to be set")
	}
	if d.HostKeyCallback == nil {
		t.Error("expected default host key callback (insecure-ignore) to be set")
	}
}
