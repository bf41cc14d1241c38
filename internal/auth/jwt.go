// Package auth issues and verifies the bearer tokens that carry an actor's
// identity and role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID string      `json:"user_id"`
	Role   orders.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the actor the claims identify.
func (c *Claims) Actor() orders.Actor {
	return orders.Actor{ID: c.UserID, Role: c.Role}
}

func GenerateToken(secret string, actor orders.Actor, ttl time.Duration) (string, error) {
	if !actor.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}
	now := time.Now()
	claims := Claims{
		UserID: actor.ID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing user or role", ErrInvalidToken)
	}
	return claims, nil
}
