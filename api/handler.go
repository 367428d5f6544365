package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Tk21111/meeting_board/auth"
	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/export"
	"github.com/Tk21111/meeting_board/internal/logx"
	"github.com/Tk21111/meeting_board/room"
)

// AttendanceReader is the read side of the attendance journal. *db.Writer
// satisfies it.
type AttendanceReader interface {
	ListAttendance(ctx context.Context, roomID string) ([]config.Attendance, error)
	Present(ctx context.Context, roomID string) ([]string, error)
}

// Presigner signs direct-to-storage URLs. *export.Uploader satisfies it.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type SignRequest struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// TokenHandler issues a meeting token for the caller's identity, scoped to
// the course topic's room.
func TokenHandler(issuer *auth.Issuer, wsURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		userID, err := auth.RequireUserID(r.Context())
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		roomName := RoomName(chi.URLParam(r, "courseId"), chi.URLParam(r, "topicId"))
		token, err := issuer.Issue(userID, auth.UserName(r.Context()), roomName)
		if err != nil {
			logx.From(r.Context()).Error("issue token", zap.Error(err))
			http.Error(w, "token fail", http.StatusInternalServerError)
			return
		}

		logx.From(r.Context()).Info("meeting token issued", zap.String("room", roomName))
		writeJSON(w, http.StatusOK, room.Credentials{
			Token:    token,
			RoomName: roomName,
			WSURL:    wsURL,
		})
	}
}

func AttendanceHandler(journal AttendanceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		if journal == nil {
			http.Error(w, "attendance disabled", http.StatusServiceUnavailable)
			return
		}

		roomID := chi.URLParam(r, "room")
		records, err := journal.ListAttendance(r.Context(), roomID)
		if err != nil {
			logx.From(r.Context()).Error("list attendance", zap.Error(err))
			http.Error(w, "fail to get attendance", http.StatusInternalServerError)
			return
		}
		present, err := journal.Present(r.Context(), roomID)
		if err != nil {
			logx.From(r.Context()).Error("present", zap.Error(err))
			http.Error(w, "fail to get attendance", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"room":    roomID,
			"present": present,
			"records": records,
		})
	}
}

// UploadHandler signs a PUT for a board export of the room.
func UploadHandler(client Presigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		userID, err := auth.RequireUserID(r.Context())
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if client == nil {
			http.Error(w, "storage disabled", http.StatusServiceUnavailable)
			return
		}

		var req SignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if !export.Allowed(req.MimeType) {
			http.Error(w, "unsupported type", http.StatusUnsupportedMediaType)
			return
		}
		if req.Size <= 0 || req.Size > export.MaxSnapshotSize {
			http.Error(w, "snapshot too large", http.StatusForbidden)
			return
		}

		objectKey := export.ObjectKey(chi.URLParam(r, "room"), userID, req.MimeType)

		url, err := client.PresignPut(r.Context(), objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			logx.From(r.Context()).Error("presign put", zap.Error(err))
			http.Error(w, "signed fail", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"upload_url": url,
			"key":        objectKey,
		})
	}
}

// GetObject signs a download of an export that belongs to the room.
func GetObject(client Presigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		if client == nil {
			http.Error(w, "storage disabled", http.StatusServiceUnavailable)
			return
		}

		objectKey := r.URL.Query().Get("key")
		if objectKey == "" {
			http.Error(w, "key require", http.StatusBadRequest)
			return
		}
		if !strings.HasPrefix(objectKey, "rooms/"+chi.URLParam(r, "room")+"/") {
			http.Error(w, "no perm", http.StatusForbidden)
			return
		}

		url, err := client.PresignGet(r.Context(), objectKey, time.Hour)
		if err != nil {
			logx.From(r.Context()).Error("presign get", zap.Error(err))
			http.Error(w, "Failed to sign URL", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"download_url": url,
		})
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
