package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/coordinator"
	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/playback"
	"git.home.luguber.info/inful/showroom/internal/server/handlers"
	smw "git.home.luguber.info/inful/showroom/internal/server/middleware"
)

type stubDocs struct {
	mu       sync.Mutex
	doc      *model.Document
	saved    *model.Document
	resets   int
	fetches  int
	saveErr  error
	fetchErr error
}

func (s *stubDocs) Document() *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *stubDocs) Snapshot() coordinator.Snapshot {
	return coordinator.Snapshot{Source: events.SourceRemote, Revision: 7, Status: s.Status()}
}

func (s *stubDocs) Status() events.SyncStatus {
	return events.SyncStatus{State: events.SyncComplete, Progress: 100}
}

func (s *stubDocs) Save(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.saved = doc
	return s.saveErr
}

func (s *stubDocs) ResetToDefaults(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.doc = model.Default()
	return nil
}

func (s *stubDocs) Fetch(context.Context, bool) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.doc, nil
}

type stubEngine struct {
	mu     sync.Mutex
	ready  []uint64
	ended  []uint64
	failed []uint64
	wake   playback.WakeResult
}

func (e *stubEngine) Touch() playback.WakeResult { return e.wake }

func (e *stubEngine) Ready(t uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = append(e.ready, t)
}

func (e *stubEngine) Ended(t uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, t)
}

func (e *stubEngine) Failed(t uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, t)
}

func (e *stubEngine) Snapshot() playback.Snapshot {
	return playback.Snapshot{State: playback.StatePlaying, Playlist: 4}
}

type stubIdentity identity.Identity

func (s stubIdentity) Get() identity.Identity { return identity.Identity(s) }

func newTestServer(t *testing.T, docs *stubDocs, engine handlers.PlaybackService) *Server {
	t.Helper()
	s, err := New("127.0.0.1:0", Options{
		Docs:     docs,
		Playback: engine,
		Identity: stubIdentity{ID: "dev-1", Name: "Front", DeviceType: model.DeviceKiosk},
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var adminHeaders = map[string]string{handlers.HeaderAdminName: "admin", handlers.HeaderAdminPin: "1234"}

func TestNewRequiresDocs(t *testing.T) {
	_, err := New(":0", Options{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestGetDocument(t *testing.T) {
	docs := &stubDocs{doc: model.Default()}
	h := newTestServer(t, docs, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/document", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
	require.NotEmpty(t, rec.Header().Get(smw.RequestIDHeader))

	var got model.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, model.DefaultImageDuration, got.ScreensaverSettings.ImageDuration)
}

func TestGetDocumentNotLoaded(t *testing.T) {
	rec := do(t, newTestServer(t, &stubDocs{}, nil).Handler(), http.MethodGet, "/api/document", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSaveRequiresAdmin(t *testing.T) {
	docs := &stubDocs{doc: model.Default()}
	h := newTestServer(t, docs, nil).Handler()
	body := `{"screensaverSettings":{"imageDuration":3}}`

	rec := do(t, h, http.MethodPut, "/api/document", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/document", body,
		map[string]string{handlers.HeaderAdminName: "admin", handlers.HeaderAdminPin: "0000"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Nil(t, docs.saved)

	rec = do(t, h, http.MethodPut, "/api/document", body, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, docs.saved)
	require.Equal(t, 3, docs.saved.ScreensaverSettings.ImageDuration)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "saved", resp["status"])
	require.InDelta(t, 7, resp["revision"], 0)
}

func TestSaveWithoutAdminsIsOpen(t *testing.T) {
	doc := model.Default()
	doc.Admins = nil
	docs := &stubDocs{doc: doc}

	rec := do(t, newTestServer(t, docs, nil).Handler(), http.MethodPut, "/api/document", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	docs := &stubDocs{doc: model.Default()}
	rec := do(t, newTestServer(t, docs, nil).Handler(), http.MethodPut, "/api/document", `{"brands":`, adminHeaders)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveFailureIsReported(t *testing.T) {
	docs := &stubDocs{
		doc:     model.Default(),
		saveErr: ferrors.SyncError("remote push failed").Retryable().Build(),
	}
	rec := do(t, newTestServer(t, docs, nil).Handler(), http.MethodPut, "/api/document", `{}`, adminHeaders)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ferrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(ferrors.CategorySync), resp.Code)
	require.True(t, resp.Retryable)
	// The optimistic document stays in place.
	require.NotNil(t, docs.Document())
}

func TestReset(t *testing.T) {
	docs := &stubDocs{doc: model.Default()}
	rec := do(t, newTestServer(t, docs, nil).Handler(), http.MethodPost, "/api/document/reset", "", adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, docs.resets)
}

func TestSync(t *testing.T) {
	doc := model.Default()
	doc.Brands = []model.Brand{{ID: "b1"}, {ID: "b2"}}
	docs := &stubDocs{doc: doc}
	h := newTestServer(t, docs, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/sync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.InDelta(t, 2, resp["brands"], 0)

	docs.fetchErr = ferrors.NetworkError("remote unreachable").Build()
	rec = do(t, h, http.MethodPost, "/api/sync", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatusAndIdentity(t *testing.T) {
	h := newTestServer(t, &stubDocs{doc: model.Default()}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "complete", status["status"].(map[string]any)["state"])

	rec = do(t, h, http.MethodGet, "/api/identity", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var id map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	require.Equal(t, "dev-1", id["id"])
	require.Equal(t, true, id["configured"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &stubDocs{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"healthy"`)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")
}

func TestPlaybackCallbacks(t *testing.T) {
	engine := &stubEngine{wake: playback.WakeResult{From: playback.StatePlaying, Behavior: model.WakeResume, ProductID: "p1"}}
	h := newTestServer(t, &stubDocs{doc: model.Default()}, engine).Handler()

	rec := do(t, h, http.MethodPost, "/api/playback/ready", `{"token":4}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/playback/ended", `{"token":5}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/playback/failed", `{"token":6}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []uint64{4}, engine.ready)
	require.Equal(t, []uint64{5}, engine.ended)
	require.Equal(t, []uint64{6}, engine.failed)

	rec = do(t, h, http.MethodPost, "/api/playback/ready", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/playback/touch", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wake map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wake))
	require.Equal(t, "p1", wake["productId"])

	rec = do(t, h, http.MethodGet, "/api/playback", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"playlistLength":4`)
}

func TestPlaybackDisabled(t *testing.T) {
	h := newTestServer(t, &stubDocs{}, nil).Handler()
	rec := do(t, h, http.MethodPost, "/api/playback/touch", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(t, &stubDocs{}, nil).Handler()
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/status", "", nil).Code)
}

func TestStartStop(t *testing.T) {
	s := newTestServer(t, &stubDocs{}, nil)
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	require.Error(t, s.Start(t.Context()))

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(t.Context()))
	require.NoError(t, s.Stop(t.Context()))
}
