package export

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tk21111/meeting_board/action"
	"github.com/Tk21111/meeting_board/surface"
)

func board(t *testing.T) *image.RGBA {
	t.Helper()
	s := surface.New(120, 80)
	require.True(t, s.BeginStroke(10, 10, action.ToolPen, "#ff0000", 4))
	s.ExtendStroke(100, 60)
	_, ok := s.EndStroke()
	require.True(t, ok)
	return s.Snapshot()
}

func TestWritePNGRoundTripsPixels(t *testing.T) {
	img := board(t)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	assert.Equal(t,
		color.RGBAModel.Convert(img.At(55, 35)),
		color.RGBAModel.Convert(decoded.At(55, 35)))
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, board(t), "course-1-topic-2"))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Less(t, buf.Len(), MaxSnapshotSize)
}

func TestWritePDFRejectsEmptyImage(t *testing.T) {
	err := WritePDF(io.Discard, image.NewRGBA(image.Rect(0, 0, 0, 0)), "")
	assert.Error(t, err)
}

func TestAllowedTypes(t *testing.T) {
	assert.True(t, Allowed(ContentTypePNG))
	assert.True(t, Allowed(ContentTypePDF))
	assert.False(t, Allowed("video/mp4"))
	assert.False(t, Allowed(""))
}

func TestObjectKey(t *testing.T) {
	k := ObjectKey("course-1-topic-2", "alice", ContentTypePDF)
	assert.True(t, strings.HasPrefix(k, "rooms/course-1-topic-2/alice-"))
	assert.True(t, strings.HasSuffix(k, ".pdf"))
	assert.NotEqual(t, k, ObjectKey("course-1-topic-2", "alice", ContentTypePDF))
}

func TestNewUploaderRequiresBucket(t *testing.T) {
	_, err := NewUploader(context.Background(), Storage{Endpoint: "https://r2.example.com"})
	assert.Error(t, err)
}

func TestPresignPut(t *testing.T) {
	u, err := NewUploader(context.Background(), Storage{
		Endpoint:  "https://r2.example.com",
		Bucket:    "boards",
		AccessKey: "AKID",
		SecretKey: "SECRET",
	})
	require.NoError(t, err)

	raw, err := u.PresignPut(context.Background(), "rooms/r/a.png", ContentTypePNG, 15*time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "r2.example.com", parsed.Host)
	assert.Equal(t, "/boards/rooms/r/a.png", parsed.Path)
	assert.NotEmpty(t, parsed.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", parsed.Query().Get("X-Amz-Expires"))

	get, err := u.PresignGet(context.Background(), "rooms/r/a.png", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, get, "/boards/rooms/r/a.png")
}

func TestUpload(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewUploader(context.Background(), Storage{
		Endpoint:  srv.URL,
		Bucket:    "boards",
		AccessKey: "AKID",
		SecretKey: "SECRET",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, board(t)))
	require.NoError(t, u.Upload(context.Background(), "rooms/r/a.png", ContentTypePNG, bytes.NewReader(buf.Bytes())))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/boards/rooms/r/a.png", path)
	assert.Equal(t, ContentTypePNG, ctype)
}
