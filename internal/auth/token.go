package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// VerifyAudience marks tokens that only authorize a verify callback.
const VerifyAudience = "survey-verify"

// Claims are the identity claims carried by a bearer token.
type Claims struct {
	Anonymous bool `json:"anonymous"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HS256 identity tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenManager(secret string, ttl time.Duration, clock clockwork.Clock) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs a token for id.
func (m *TokenManager) Issue(id Identity) (string, error) {
	now := m.clock.Now()
	claims := Claims{
		Anonymous: id.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates a bearer token and returns the identity it carries.
// Verify link tokens are rejected.
func (m *TokenManager) Parse(tokenStr string) (Identity, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return Identity{}, err
	}
	if len(claims.Audience) > 0 {
		return Identity{}, errors.New("not a bearer token")
	}
	return Identity{UserID: claims.Subject, Anonymous: claims.Anonymous}, nil
}

// IssueVerify signs a verify link token bound to one pending response.
// It expires with the response.
func (m *TokenManager) IssueVerify(id Identity, responseID string, ttl time.Duration) (string, error) {
	if responseID == "" {
		return "", errors.New("response id is required")
	}
	now := m.clock.Now()
	claims := Claims{
		Anonymous: id.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings{VerifyAudience},
			ID:        responseID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseVerify validates a verify link token and returns the respondent and
// the response it was issued for.
func (m *TokenManager) ParseVerify(tokenStr string) (Identity, string, error) {
	claims, err := m.parse(tokenStr, jwt.WithAudience(VerifyAudience))
	if err != nil {
		return Identity{}, "", err
	}
	if claims.ID == "" {
		return Identity{}, "", errors.New("verify token has no response id")
	}
	return Identity{UserID: claims.Subject, Anonymous: claims.Anonymous}, claims.ID, nil
}

func (m *TokenManager) parse(tokenStr string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithTimeFunc(m.clock.Now))
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
