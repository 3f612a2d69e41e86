package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of bind tokens.
const Issuer = "ranger-worker"

// MinSecretLength is the minimum HS256 secret length in bytes.
const MinSecretLength = 32

// Token verification errors.
var (
	ErrEmptyToken   = errors.New("token cannot be empty")
	ErrInvalidToken = errors.New("invalid token")
	ErrWeakSecret   = errors.New("bind secret too short")
)

// Claims are the claims carried by a bind token.
type Claims struct {
	BindingID string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies bind tokens with a shared HS256 secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. A zero ttl issues tokens without expiry.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(secret), MinSecretLength)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("token ttl must be non-negative, got %v", ttl)
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &TokenIssuer{secret: s, ttl: ttl, now: time.Now}, nil
}

// NewRandomSecret returns a fresh secret suitable for NewTokenIssuer.
func NewRandomSecret() ([]byte, error) {
	secret := make([]byte, MinSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate bind secret: %w", err)
	}
	return secret, nil
}

// Issue mints a token for bindingID on behalf of subject.
func (i *TokenIssuer) Issue(bindingID, subject string) (string, error) {
	if bindingID == "" {
		return "", fmt.Errorf("binding ID cannot be empty")
	}

	now := i.now()
	claims := jwt.RegisteredClaims{
		ID:       bindingID,
		Issuer:   Issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign bind token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature, issuer and expiry, and returns its claims.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrEmptyToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate algorithm
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing 'jti' claim", ErrInvalidToken)
	}

	out := &Claims{
		BindingID: claims.ID,
		Subject:   claims.Subject,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// VerifyBinding verifies the token and checks it was issued for bindingID.
func (i *TokenIssuer) VerifyBinding(tokenString, bindingID string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.BindingID != bindingID {
		return nil, fmt.Errorf("%w: token issued for binding %s, not %s", ErrInvalidToken, claims.BindingID, bindingID)
	}
	return claims, nil
}
