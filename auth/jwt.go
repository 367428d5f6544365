package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims bind a participant identity to one room.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Room   string `json:"room"`
	jwt.RegisteredClaims
}

type Issuer struct {
	Secret []byte
	TTL    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{Secret: []byte(secret), TTL: ttl}
}

func (i *Issuer) Issue(userID, name, room string) (string, error) {
	if userID == "" || room == "" {
		return "", errors.New("auth: identity and room are required")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		Room:   room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.Secret)
}

func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return i.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.Room == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
