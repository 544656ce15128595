package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token classification errors. Callers match with errors.Is; the HTTP layer
// maps all of them to the same 401 so token state is not enumerable.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenWrongType = errors.New("token type mismatch")
)

// tokenType is the value of the "typ" claim distinguishing access from
// refresh credentials
type tokenType string

const (
	tokenTypeAccess  tokenType = "access"
	tokenTypeRefresh tokenType = "refresh"
)

// Claims are the JWT claims carried on both token kinds
type Claims struct {
	UserID   int64    `json:"uid"`
	Email    string   `json:"email"`
	SiteRole SiteRole `json:"site_role"`
	Type     string   `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a token manager with the given signing secret and
// lifetimes
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken creates a short-lived access token for the user
func (m *TokenManager) IssueAccessToken(user *User) (string, error) {
	return m.issue(user, tokenTypeAccess, m.accessTTL)
}

// IssueRefreshToken creates a long-lived refresh token for the user
func (m *TokenManager) IssueRefreshToken(user *User) (string, error) {
	return m.issue(user, tokenTypeRefresh, m.refreshTTL)
}

func (m *TokenManager) issue(user *User, typ tokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		SiteRole: user.SiteRole,
		Type:     string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates an access token and returns its claims
func (m *TokenManager) VerifyAccessToken(tokenString string) (*Claims, error) {
	return m.verify(tokenString, tokenTypeAccess)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
// An access token presented here fails with ErrTokenWrongType.
func (m *TokenManager) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return m.verify(tokenString, tokenTypeRefresh)
}

func (m *TokenManager) verify(tokenString string, expected tokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Type != string(expected) {
		return nil, ErrTokenWrongType
	}
	return claims, nil
}

// GenerateSecureToken returns a random URL-safe token for password reset and
// email verification flows
func GenerateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken returns the sha256 hex digest of a token. Only digests are
// stored; the plaintext token exists solely in the outbound message.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
