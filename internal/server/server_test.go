package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/clipvault/internal/memstore"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/notify"
	"github.com/raphaelgruber/clipvault/internal/service"
)

// publishRunner reports a finished run to the hub without touching the record.
type publishRunner struct {
	hub   *notify.Hub
	store *memstore.Store
}

func (r publishRunner) Run(ctx context.Context, videoID string) error {
	v, _ := r.store.GetVideo(ctx, videoID)
	if v == nil {
		return nil
	}
	return r.hub.Publish(v.OwnerID, notify.Progress(videoID, 5, "Initializing"))
}

type testEnv struct {
	srv   *httptest.Server
	store *memstore.Store
	jobs  *service.JobManager
	hub   *notify.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	hub := notify.NewHub()
	jobs := service.NewJobManager(publishRunner{hub: hub, store: store}, store, 2, time.Minute)
	videos := service.NewVideoService(store, jobs, t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := New(videos, jobs, hub, metrics.NewCollector(), logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		jobs.Wait()
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, store: store, jobs: jobs, hub: hub}
}

func (e *testEnv) upload(t *testing.T, owner, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("video", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/videos", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) seed(t *testing.T, v *models.Video) {
	t.Helper()
	require.NoError(t, e.store.CreateVideo(context.Background(), v))
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	resp := env.upload(t, "alice", "clip.mp4", "fake video bytes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	v := decode[VideoResponse](t, resp)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "alice", v.OwnerID)
	assert.Equal(t, models.StatusPending, v.ProcessingStatus)
	assert.Equal(t, "clip.mp4", v.OriginalName)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		owner   string
		content string
		want    int
	}{
		{"missing owner", "", "data", http.StatusBadRequest},
		{"empty file accepted for processing", "alice", "", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.upload(t, tt.owner, "clip.mp4", tt.content)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGetHidesInternalError(t *testing.T) {
	env := newTestEnv(t)
	v := models.NewVideo("v1", "alice", "/srv/uploads/v1.mp4", "clip.mp4", "video/mp4", 10)
	v.ProcessingStatus = models.StatusFailed
	v.ProcessingError = &models.ProcessingError{Message: service.MsgCorrupt, Internal: "ffprobe: moov atom not found at /srv/uploads"}
	env.seed(t, v)

	resp, err := http.Get(env.srv.URL + "/api/videos/v1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), service.MsgCorrupt)
	assert.NotContains(t, string(body), "moov")
	assert.NotContains(t, string(body), "/srv/uploads")
}

func TestGetNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/videos/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListByOwner(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, models.NewVideo("a1", "alice", "/x", "a.mp4", "video/mp4", 1))
	env.seed(t, models.NewVideo("b1", "bob", "/y", "b.mp4", "video/mp4", 1))

	resp, err := http.Get(env.srv.URL + "/api/videos?owner=alice")
	require.NoError(t, err)
	defer resp.Body.Close()

	videos := decode[[]VideoResponse](t, resp)
	require.Len(t, videos, 1)
	assert.Equal(t, "a1", videos[0].ID)
}

func TestAdminOverrides(t *testing.T) {
	env := newTestEnv(t)
	done := models.NewVideo("done", "alice", "/x", "a.mp4", "video/mp4", 1)
	done.ProcessingStatus = models.StatusCompleted
	env.seed(t, done)
	busy := models.NewVideo("busy", "alice", "/y", "b.mp4", "video/mp4", 1)
	busy.ProcessingStatus = models.StatusProcessing
	env.seed(t, busy)

	post := func(path, body string) *http.Response {
		resp, err := http.Post(env.srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("/api/videos/done/reject", `{"reason":"copyright"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rejected := decode[VideoResponse](t, resp)
	assert.Equal(t, models.StatusRejected, rejected.ProcessingStatus)
	assert.Equal(t, "copyright", rejected.RejectReason)

	resp = post("/api/videos/done/reprocess", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, models.StatusPending, decode[VideoResponse](t, resp).ProcessingStatus)

	assert.Equal(t, http.StatusConflict, post("/api/videos/busy/reject", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, post("/api/videos/nope/reprocess", "").StatusCode)

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/videos/busy", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusConflict, delResp.StatusCode)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	v := models.NewVideo("gone", "alice", "/does/not/exist.mp4", "a.mp4", "video/mp4", 1)
	v.ProcessingStatus = models.StatusFailed
	env.seed(t, v)

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/videos/gone", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, _ := env.store.GetVideo(context.Background(), "gone")
	assert.Nil(t, got)
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	stats := decode[StatsResponse](t, resp)
	assert.Equal(t, 2, stats.Concurrency)
	assert.Empty(t, stats.ActiveJobs)
}

func TestWebSocketThroughMiddleware(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?user_id=alice"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return env.hub.Connections("alice") == 1 }, time.Second, 5*time.Millisecond)

	resp := env.upload(t, "alice", "clip.mp4", "bytes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	v := decode[VideoResponse](t, resp)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev notify.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, notify.EventProgress, ev.Name)
	assert.Equal(t, v.ID, ev.Data.VideoID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
