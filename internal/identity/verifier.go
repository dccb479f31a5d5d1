package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only rejection a verifier reports. Expired, forged and
// malformed tokens are deliberately indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid authentication token")

// Subject is a verified identity.
type Subject struct {
	ID    string
	Email string
}

// Verifier validates an opaque bearer credential.
// Implementations return ErrInvalidToken for any credential the provider rejects;
// any other error means the provider could not be consulted.
type Verifier interface {
	Verify(ctx context.Context, token string) (Subject, error)
}

// Claims are the JWT claims issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies provider-issued JWTs against locally configured keys.
type JWTVerifier struct {
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
}

// VerifierOption configures JWTVerifier.
type VerifierOption func(*JWTVerifier) error

// WithHMACSecret accepts HS256 tokens signed with secret.
func WithHMACSecret(secret string) VerifierOption {
	return func(v *JWTVerifier) error {
		if strings.TrimSpace(secret) == "" {
			return nil
		}
		v.hmacSecret = []byte(secret)
		return nil
	}
}

// WithRSAPublicKeyPEM accepts RS256 tokens verifiable with the PEM encoded key.
func WithRSAPublicKeyPEM(pemData []byte) VerifierOption {
	return func(v *JWTVerifier) error {
		if len(pemData) == 0 {
			return nil
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemData)
		if err != nil {
			return fmt.Errorf("identity: parse public key: %w", err)
		}
		v.rsaKey = key
		return nil
	}
}

// WithRSAPublicKey accepts RS256 tokens verifiable with key.
func WithRSAPublicKey(key *rsa.PublicKey) VerifierOption {
	return func(v *JWTVerifier) error {
		v.rsaKey = key
		return nil
	}
}

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *JWTVerifier) error {
		v.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *JWTVerifier) error {
		v.audience = strings.TrimSpace(audience)
		return nil
	}
}

// WithLeeway tolerates clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) error {
		if d >= 0 {
			v.leeway = d
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) VerifierOption {
	return func(v *JWTVerifier) error {
		if fn != nil {
			v.now = fn
		}
		return nil
	}
}

// NewJWTVerifier builds a verifier. At least one key must be configured.
func NewJWTVerifier(opts ...VerifierOption) (*JWTVerifier, error) {
	v := &JWTVerifier{
		leeway: 5 * time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if len(v.hmacSecret) == 0 && v.rsaKey == nil {
		return nil, errors.New("identity: no verification key configured")
	}
	return v, nil
}

// Verify checks signature, expiry and the configured issuer/audience.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Subject{}, ErrInvalidToken
	}

	parser := jwt.NewParser(v.parserOptions()...)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil || !parsed.Valid {
		return Subject{}, ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Subject{}, ErrInvalidToken
	}
	return Subject{ID: subject, Email: strings.TrimSpace(claims.Email)}, nil
}

func (v *JWTVerifier) parserOptions() []jwt.ParserOption {
	methods := make([]string, 0, 2)
	if v.rsaKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if len(v.hmacSecret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

func (v *JWTVerifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method {
	case jwt.SigningMethodRS256:
		if v.rsaKey != nil {
			return v.rsaKey, nil
		}
	case jwt.SigningMethodHS256:
		if len(v.hmacSecret) > 0 {
			return v.hmacSecret, nil
		}
	}
	return nil, ErrInvalidToken
}
