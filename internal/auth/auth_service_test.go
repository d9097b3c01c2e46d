package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"
)

func generateKeyPair(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	return privatePEM, publicPEM
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	svc, err := NewAuthService(privatePEM, publicPEM, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	token, err := svc.IssueToken(42, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.SchoolID != 42 || claims.Role != RoleStaff || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAuthService_VerifierOnly(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	signer, err := NewAuthService(privatePEM, publicPEM, time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewAuthService(nil, publicPEM, time.Hour)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.IssueToken(1, RoleStaff); !errors.Is(err, ErrSigningDisabled) {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}
	token, err := signer.IssueToken(7, RoleStaff)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err != nil {
		t.Fatalf("verifier must accept signer tokens: %v", err)
	}
}

func TestAuthService_RejectsExpiredAndForeignTokens(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	expired, err := NewAuthService(privatePEM, publicPEM, -time.Minute)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	token, err := expired.IssueToken(3, RoleStaff)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := expired.ValidateToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}

	_, otherPublic := generateKeyPair(t)
	other, err := NewAuthService(nil, otherPublic, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	fresh, _ := NewAuthService(privatePEM, publicPEM, time.Hour)
	token, _ = fresh.IssueToken(3, RoleStaff)
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("token signed by another key must be rejected")
	}
}
