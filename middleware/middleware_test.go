package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tk21111/meeting_board/config"
	"github.com/Tk21111/meeting_board/internal/logx"
)

func TestLoggingRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := logx.L
	logx.L = zap.New(core)
	t.Cleanup(func() { logx.L = prev })

	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logx.From(r.Context()).Info("inner")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "/health", entries[0].ContextMap()["path"])
	assert.Equal(t, "http_request", entries[1].Message)
	assert.EqualValues(t, http.StatusTeapot, entries[1].ContextMap()["status"])
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("http://example.test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://example.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestFrameCodec(t *testing.T) {
	msgs, err := DecodeNetworkMsg([]byte(`[{"operation":"data","id":"x","to":["b"],"data":{"k":1}}]`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, config.OpData, msgs[0].Operation)
	assert.Equal(t, []string{"b"}, msgs[0].To)

	_, err = DecodeNetworkMsg([]byte(`[]`))
	assert.Error(t, err)
	_, err = DecodeNetworkMsg([]byte(`{"operation":"data"}`))
	assert.Error(t, err)

	raw := EncodeNetworkMsg([]config.ServerMsg{{Clock: 3, Payload: config.NetworkMsg{Operation: config.OpParticipantLeave, ID: "a"}}})
	back, err := DecodeServerMsg(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(3), back[0].Clock)
	assert.Equal(t, "a", back[0].Payload.ID)

	assert.Nil(t, EncodeNetworkMsg(make(chan int)))
}
