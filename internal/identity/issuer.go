package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints provider-compatible tokens. Production tokens come from the
// identity provider; this is used by the operator CLI and tests.
type Issuer struct {
	method   jwt.SigningMethod
	key      any
	issuer   string
	audience string
	now      func() time.Time
}

// NewHMACIssuer signs HS256 tokens with secret.
func NewHMACIssuer(secret, issuer, audience string) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: hmac secret is required")
	}
	return &Issuer{
		method:   jwt.SigningMethodHS256,
		key:      []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// NewRSAIssuer signs RS256 tokens with key.
func NewRSAIssuer(key *rsa.PrivateKey, issuer, audience string) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("identity: rsa key is required")
	}
	return &Issuer{
		method:   jwt.SigningMethodRS256,
		key:      key,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (i *Issuer) Issue(subject, email string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("identity: subject is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("identity: ttl must be greater than zero")
	}
	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
