package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingClaims    = errors.New("missing required claims")
)

// Claims carried by collaboration tokens. UserID is the identity the
// session manager attributes operations to.
type Claims struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared HMAC secret.
type Manager struct {
	secret        []byte
	expire        time.Duration
	refreshExpire time.Duration
	issuer        string
}

// NewManager creates a token manager. Expirations are in seconds.
func NewManager(secret string, expire, refreshExpire int64, issuer string) *Manager {
	return &Manager{
		secret:        []byte(secret),
		expire:        time.Duration(expire) * time.Second,
		refreshExpire: time.Duration(refreshExpire) * time.Second,
		issuer:        issuer,
	}
}

// GenerateToken issues an access token for a user.
func (m *Manager) GenerateToken(userID, userName string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateRefreshToken issues a longer-lived refresh token.
func (m *Manager) GenerateRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshExpire)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyToken validates a token and returns its claims.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		return nil, ErrMissingClaims
	}

	return claims, nil
}

// RefreshToken exchanges a valid refresh token for a new access token.
func (m *Manager) RefreshToken(refreshToken string) (string, error) {
	claims, err := m.VerifyToken(refreshToken)
	if err != nil {
		return "", err
	}
	return m.GenerateToken(claims.UserID, claims.UserName)
}

// GetExpire returns the access-token lifetime.
func (m *Manager) GetExpire() time.Duration {
	return m.expire
}
