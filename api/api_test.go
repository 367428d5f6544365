package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tk21111/meeting_board/action"
	"github.com/Tk21111/meeting_board/auth"
	"github.com/Tk21111/meeting_board/db"
	"github.com/Tk21111/meeting_board/room"
	"github.com/Tk21111/meeting_board/surface"
	"github.com/Tk21111/meeting_board/ws"
)

type fakePresigner struct {
	err     error
	lastKey string
}

func (f *fakePresigner) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	f.lastKey = key
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/" + key + "?sig=put", nil
}

func (f *fakePresigner) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/" + key + "?sig=get", nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, token string) (auth.User, error) {
	if token != "good" {
		return auth.User{}, errors.New("bad id token")
	}
	return auth.User{UserID: "google-123", Name: "Ada"}, nil
}

type server struct {
	srv     *httptest.Server
	issuer  *auth.Issuer
	journal *db.Writer
	storage *fakePresigner
}

func newServer(t *testing.T, verifier auth.Verifier) *server {
	t.Helper()

	journal, err := db.NewWriter(filepath.Join(t.TempDir(), "meeting.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	s := &server{
		issuer:  auth.NewIssuer("test-secret", time.Hour),
		journal: journal,
		storage: &fakePresigner{},
	}

	var handler http.Handler
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)

	handler = NewRouter(Deps{
		Hub:         ws.NewHub(journal, nil),
		Issuer:      s.issuer,
		Verifier:    verifier,
		Attendance:  journal,
		Storage:     s.storage,
		PublicWSURL: "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws",
		CORSOrigin:  "http://localhost:5173",
	})
	return s
}

func (s *server) do(t *testing.T, method, path string, body []byte, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func userHeader(id string) http.Header {
	return http.Header{"X-User-Id": {id}, "X-User-Name": {"Name " + id}}
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	resp := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTokenHandler(t *testing.T) {
	s := newServer(t, nil)

	resp := s.do(t, http.MethodGet, "/course/c9/meeting/t3/token", nil, userHeader("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var creds room.Credentials
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&creds))
	assert.Equal(t, "course-c9-topic-t3", creds.RoomName)
	assert.True(t, strings.HasSuffix(creds.WSURL, "/ws"))

	claims, err := s.issuer.Parse(creds.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Name alice", claims.Name)
	assert.Equal(t, "course-c9-topic-t3", claims.Room)
}

func TestTokenHandlerGuest(t *testing.T) {
	s := newServer(t, nil)

	resp := s.do(t, http.MethodGet, "/course/c/meeting/t/token", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var creds room.Credentials
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&creds))
	claims, err := s.issuer.Parse(creds.Token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(claims.UserID, "guest-"))
}

func TestTokenHandlerWithVerifier(t *testing.T) {
	s := newServer(t, fakeVerifier{})

	resp := s.do(t, http.MethodGet, "/course/c/meeting/t/token", nil, userHeader("spoofed"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/course/c/meeting/t/token", nil, http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/course/c/meeting/t/token", nil, http.Header{"Authorization": {"Bearer good"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var creds room.Credentials
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&creds))
	claims, err := s.issuer.Parse(creds.Token)
	require.NoError(t, err)
	assert.Equal(t, "google-123", claims.UserID)
	assert.Equal(t, "Ada", claims.Name)
}

func TestUploadHandler(t *testing.T) {
	s := newServer(t, nil)

	body, _ := json.Marshal(SignRequest{Size: 2048, MimeType: "image/png"})
	resp := s.do(t, http.MethodPost, "/rooms/course-1-topic-1/snapshots", body, userHeader("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, strings.HasPrefix(out["key"], "rooms/course-1-topic-1/alice-"))
	assert.True(t, strings.HasSuffix(out["key"], ".png"))
	assert.Contains(t, out["upload_url"], out["key"])
}

func TestUploadHandlerRejects(t *testing.T) {
	s := newServer(t, nil)
	path := "/rooms/r/snapshots"

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"video", `{"size":10,"mimeType":"video/mp4"}`, http.StatusUnsupportedMediaType},
		{"too large", `{"size":10485761,"mimeType":"application/pdf"}`, http.StatusForbidden},
		{"empty", `{"size":0,"mimeType":"image/png"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, path, []byte(tc.body), userHeader("alice"))
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	s.storage.err = errors.New("boom")
	resp := s.do(t, http.MethodPost, path, []byte(`{"size":10,"mimeType":"image/png"}`), userHeader("alice"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetObject(t *testing.T) {
	s := newServer(t, nil)

	resp := s.do(t, http.MethodGet, "/rooms/r1/snapshots?key=rooms/r1/a.png", nil, userHeader("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["download_url"], "rooms/r1/a.png")

	resp = s.do(t, http.MethodGet, "/rooms/r1/snapshots?key=rooms/r2/a.png", nil, userHeader("alice"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/rooms/r1/snapshots", nil, userHeader("alice"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStorageDisabled(t *testing.T) {
	h := NewRouter(Deps{Hub: ws.NewHub(nil, nil), Issuer: auth.NewIssuer("s", time.Hour)})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rooms/r/snapshots", strings.NewReader(`{"size":1,"mimeType":"image/png"}`))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/r/attendance", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTokenClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := (&TokenClient{BaseURL: srv.URL}).MeetingToken(context.Background(), "t", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTokenClientIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/course/c%201/meeting/t/token", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]string{"roomName": "x"})
	}))
	defer srv.Close()

	_, err := (&TokenClient{BaseURL: srv.URL + "/"}).MeetingToken(context.Background(), "t", "c 1")
	assert.Error(t, err)
}

func joinRoom(t *testing.T, s *server, id string) *room.Controller {
	t.Helper()
	tokens := &TokenClient{BaseURL: s.srv.URL, Header: userHeader(id)}
	c := room.New(room.DefaultOptions("t1", "c1"), tokens, &ws.Dialer{Redials: -1}, surface.New(160, 120), nil)
	require.NoError(t, c.Join(context.Background()))
	t.Cleanup(func() { _ = c.Leave(context.Background()) })
	return c
}

func TestMeetingOverRelay(t *testing.T) {
	s := newServer(t, nil)
	ctx := context.Background()

	alice := joinRoom(t, s, "alice")
	bob := joinRoom(t, s, "bob")

	assert.Equal(t, "course-c1-topic-t1", bob.RoomName())
	require.Eventually(t, func() bool { return len(alice.Presence().Roster()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, alice.BeginStroke(20, 20, action.ToolPen, "#FF0000", 3))
	alice.ExtendStroke(80, 60)
	alice.ExtendStroke(140, 30)
	_, ok := alice.EndStroke(ctx)
	require.True(t, ok)

	_, ok = alice.CommitShape(ctx, 10, 90, 70, 110, action.ToolRectangle, "#0000FF", 2)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return bytes.Equal(alice.Board().Snapshot().Pix, bob.Board().Snapshot().Pix)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.SendChat(ctx, "hello"))
	require.Eventually(t, func() bool { return len(alice.Presence().Chat()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := alice.Presence().Chat()[0]
	assert.Equal(t, "bob", msg.SenderID)
	assert.Equal(t, "hello", msg.Text)

	require.NoError(t, s.journal.Flush(ctx))
	resp := s.do(t, http.MethodGet, "/rooms/course-c1-topic-t1/attendance", nil, userHeader("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Present []string `json:"present"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"alice", "bob"}, out.Present)
}
