package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication methods recorded in session claims.
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
)

// ErrInvalidToken is returned by Verify for any token that cannot be
// trusted: bad signature, structural corruption, or elapsed lifetime.
// Callers treat it identically to "unauthenticated".
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the fixed session claim set. The subject is the identity id.
type Claims struct {
	jwt.RegisteredClaims
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	Active        bool   `json:"active"`
	AuthMethod    string `json:"auth_method"`
}

// TokenCodec mints and verifies signed session tokens. Tokens are derived,
// never persisted: the server holds no session state, so a minted token
// stays valid until its expiry.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time // injectable clock for testing
}

// NewTokenCodec creates a codec signing with the given HMAC secret. Tokens
// expire after ttl.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint creates a signed token for the given account. The claims snapshot
// the account at mint time; method records how the session was established.
func (c *TokenCodec) Mint(acct *Account, method string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role:          acct.Role,
		EmailVerified: acct.EmailVerified,
		Active:        acct.Active,
		AuthMethod:    method,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Refresh re-mints a token from previously verified claims without a store
// read. Role and flag changes made since the original mint are therefore
// not picked up until the session expires; that staleness window is the
// price of skipping a database round-trip on every request.
func (c *TokenCodec) Refresh(claims *Claims) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role:          claims.Role,
		EmailVerified: claims.EmailVerified,
		Active:        claims.Active,
		AuthMethod:    claims.AuthMethod,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing refreshed token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, failing closed: any parse, signature,
// or expiry problem yields ErrInvalidToken.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
