package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHMACRoundTrip(t *testing.T) {
	issuer, err := NewHMACIssuer("s3cret", "https://id.example", "backoffice")
	if err != nil {
		t.Fatalf("NewHMACIssuer: %v", err)
	}
	token, expiresAt, err := issuer.Issue("uid-1", "ann@example.com", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	v, err := NewJWTVerifier(WithHMACSecret("s3cret"), WithIssuer("https://id.example"), WithAudience("backoffice"))
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	subject, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject.ID != "uid-1" || subject.Email != "ann@example.com" {
		t.Fatalf("unexpected subject: %+v", subject)
	}
}

func TestRSAVerifierFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	issuer, err := NewRSAIssuer(key, "idp", "")
	if err != nil {
		t.Fatalf("NewRSAIssuer: %v", err)
	}
	token, _, err := issuer.Issue("uid-rsa", "", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	v, err := NewJWTVerifier(WithRSAPublicKeyPEM(pemData), WithIssuer("idp"))
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	subject, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject.ID != "uid-rsa" {
		t.Fatalf("unexpected subject %q", subject.ID)
	}

	// An HS256 token must not be accepted by an RS256-only verifier.
	hmacIssuer, _ := NewHMACIssuer("other", "idp", "")
	forged, _, _ := hmacIssuer.Issue("uid-rsa", "", time.Minute)
	if _, err := v.Verify(context.Background(), forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong algorithm, got %v", err)
	}
}

func TestVerifierRejections(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer, _ := NewHMACIssuer("s3cret", "idp", "")
	issuer.now = func() time.Time { return now }

	valid, _, _ := issuer.Issue("uid-1", "", time.Minute)
	otherIssuer, _ := NewHMACIssuer("s3cret", "someone-else", "")
	otherIssuer.now = issuer.now
	wrongIss, _, _ := otherIssuer.Issue("uid-1", "", time.Minute)
	wrongKeyIssuer, _ := NewHMACIssuer("not-the-secret", "idp", "")
	wrongKeyIssuer.now = issuer.now
	wrongKey, _, _ := wrongKeyIssuer.Issue("uid-1", "", time.Minute)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "idp", Subject: "uid-1"},
	}).SignedString([]byte("s3cret"))

	cases := map[string]struct {
		token string
		at    time.Time
	}{
		"empty":        {token: "", at: now},
		"garbage":      {token: "not.a.jwt", at: now},
		"expired":      {token: valid, at: now.Add(2 * time.Minute)},
		"wrong issuer": {token: wrongIss, at: now},
		"wrong key":    {token: wrongKey, at: now},
		"no subject":   {token: noSubject, at: now},
		"no expiry":    {token: noExpiry, at: now},
	}
	for name, tc := range cases {
		at := tc.at
		v, err := NewJWTVerifier(WithHMACSecret("s3cret"), WithIssuer("idp"), WithClock(func() time.Time { return at }))
		if err != nil {
			t.Fatalf("%s: NewJWTVerifier: %v", name, err)
		}
		_, err = v.Verify(context.Background(), tc.token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
		if err.Error() != "invalid authentication token" {
			t.Fatalf("%s: rejection leaked detail: %q", name, err.Error())
		}
	}
}

func TestNewJWTVerifierRequiresKey(t *testing.T) {
	if _, err := NewJWTVerifier(WithIssuer("idp")); err == nil {
		t.Fatal("expected error without keys")
	}
	if _, err := NewJWTVerifier(WithRSAPublicKeyPEM([]byte("garbage"))); err == nil {
		t.Fatal("expected error for bad PEM")
	}
}
