package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tk21111/meeting_board/auth"
	"github.com/Tk21111/meeting_board/middleware"
	"github.com/Tk21111/meeting_board/ws"
)

type Deps struct {
	Hub    *ws.Hub
	Issuer *auth.Issuer
	// Verifier authenticates callers of the token route. Nil trusts the
	// X-User-Id header.
	Verifier   auth.Verifier
	Attendance AttendanceReader
	Storage    Presigner

	PublicWSURL string
	CORSOrigin  string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging)
	if d.CORSOrigin != "" {
		r.Use(middleware.CORS(d.CORSOrigin))
	}

	r.Get("/health", Health)
	r.Get("/ws", d.Hub.ServeWS(d.Issuer))

	r.Group(func(r chi.Router) {
		r.Use(auth.Identify(d.Verifier))

		r.Get("/course/{courseId}/meeting/{topicId}/token", TokenHandler(d.Issuer, d.PublicWSURL))
		r.Get("/rooms/{room}/attendance", AttendanceHandler(d.Attendance))
		r.Post("/rooms/{room}/snapshots", UploadHandler(d.Storage))
		r.Get("/rooms/{room}/snapshots", GetObject(d.Storage))
	})

	return r
}
