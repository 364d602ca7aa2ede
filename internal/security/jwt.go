package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// AccountClaims binds a token to one account and one server-side session.
// The session ID travels in the registered "jti" claim.
type AccountClaims struct {
	AccountID uint64 `json:"account_id"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// SessionID returns the session the token was issued for.
func (c *AccountClaims) SessionID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// GenerateToken signs an account token for sessionID with the configured expiry.
func GenerateToken(secret string, accountID uint64, kind, sessionID string, issuedAt time.Time, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("security: empty token secret")
	}
	issuedAt = issuedAt.UTC()
	claims := AccountClaims{
		AccountID: accountID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates an account token and returns its claims.
func ParseToken(secret string, tokenString string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid || claims.SessionID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
