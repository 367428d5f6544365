package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/internal/logx"
)

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// Identify puts the caller's identity into the request context. With a
// verifier a valid bearer token is required; without one the X-User-Id header
// is trusted and callers without it become guests.
func Identify(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user User

			if v != nil {
				token, err := ReadBearer(r)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				user, err = v.Verify(r.Context(), token)
				if err != nil {
					logx.From(r.Context()).Info("id token rejected", zap.Error(err))
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
			} else {
				user.UserID = strings.TrimSpace(r.Header.Get("X-User-Id"))
				user.Name = strings.TrimSpace(r.Header.Get("X-User-Name"))
				if user.UserID == "" {
					user.UserID = "guest-" + uuid.NewString()
				}
			}

			if user.Name == "" {
				user.Name = user.UserID
			}

			ctx := context.WithValue(r.Context(), config.ContextUserIDKey, user.UserID)
			ctx = context.WithValue(ctx, config.ContextUserNameKey, user.Name)
			ctx = logx.With(ctx, zap.String("user", user.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
