// Package auth issues and validates the bearer tokens used by REST and the broker.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user id both as a numeric claim and as the subject.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Authority signs and verifies HMAC tokens.
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthority constructs an Authority. A zero ttl issues tokens without expiry.
func NewAuthority(secret string, ttl time.Duration) *Authority {
	return &Authority{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for userID.
func (a *Authority) Issue(userID int64) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken verifies the token and returns the authenticated user id.
func (a *Authority) ValidateToken(_ context.Context, token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	return userID(claims)
}

// UserIDFromToken reads the user id without verifying the signature. Clients use it to
// learn their own id; servers must use ValidateToken.
func UserIDFromToken(token string) (int64, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return userID(&claims)
}

func userID(claims *Claims) (int64, error) {
	if claims.UserID > 0 {
		return claims.UserID, nil
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
