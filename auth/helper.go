package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Tk21111/meeting_board/config"
)

var ErrNoBearer = errors.New("auth: missing bearer token")

func ReadBearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrNoBearer
	}
	return strings.TrimSpace(token), nil
}

func RequireUserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(config.ContextUserIDKey).(string)
	if id == "" {
		return "", errors.New("auth: no user in context")
	}
	return id, nil
}

func UserName(ctx context.Context) string {
	name, _ := ctx.Value(config.ContextUserNameKey).(string)
	return name
}
