package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tk21111/meeting_board/auth"
	"github.com/Tk21111/meeting_board/internal/logx"
	"github.com/Tk21111/meeting_board/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser validates a meeting token. *auth.Issuer satisfies it.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// ServeWS upgrades a request carrying a meeting token and relays its frames
// within the token's room.
func (h *Hub) ServeWS(tokens TokenParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing params", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			logx.From(r.Context()).Info("ws token rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.From(r.Context()).Warn("upgrade", zap.Error(err))
			return
		}

		client := &Client{
			hub:      h,
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
			roomID:   claims.Room,
			identity: claims.UserID,
			name:     claims.Name,
			color:    presence.ColorFromIdentity(claims.UserID),
			limiter:  rate.NewLimiter(messagesPerSecond, messageBurst),
			log: h.log.With(
				zap.String("room", claims.Room),
				zap.String("identity", claims.UserID),
			),
		}

		/* --------------------------------------------------
		   1. JOIN ROOM: welcome -> new client, join -> others
		   -------------------------------------------------- */

		if replaced := h.Join(client.roomID, client); replaced != nil {
			client.log.Info("replaced previous connection")
		} else {
			client.log.Info("join room")
		}

		/* --------------------------------------------------
		   2. START IO
		   -------------------------------------------------- */

		go client.write()
		client.read()
	}
}
