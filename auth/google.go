package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

type User struct {
	UserID string
	Name   string
	Email  string
}

// GoogleVerifier checks Google ID tokens issued for ClientID.
type GoogleVerifier struct {
	ClientID string
}

func (g GoogleVerifier) Verify(ctx context.Context, token string) (User, error) {
	payload, err := idtoken.Validate(ctx, token, g.ClientID)
	if err != nil {
		return User{}, err
	}

	sub, ok := payload.Claims["sub"].(string)
	if !ok || sub == "" {
		return User{}, errors.New("invalid sub")
	}

	name, _ := payload.Claims["name"].(string)
	email, _ := payload.Claims["email"].(string)

	return User{UserID: sub, Name: name, Email: email}, nil
}
