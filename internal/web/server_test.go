package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/petdoor/watchbox/internal/backend"
	"github.com/petdoor/watchbox/internal/config"
	"github.com/petdoor/watchbox/internal/feed"
	"github.com/petdoor/watchbox/internal/monitor"
	"github.com/petdoor/watchbox/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	toggleResult *backend.ToggleResult
	toggleErr    error
	deleteErr    error
	config       backend.Config

	deleted []string
	patches []backend.Config
}

func (f *fakeBackend) Toggle(ctx context.Context) (*backend.ToggleResult, error) {
	if f.toggleErr != nil {
		return nil, f.toggleErr
	}
	return f.toggleResult, nil
}

func (f *fakeBackend) DeleteDetection(ctx context.Context, category backend.Category, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, string(category)+"/"+id)
	return nil
}

func (f *fakeBackend) GetConfig(ctx context.Context) (backend.Config, error) {
	return f.config, nil
}

func (f *fakeBackend) UpdateConfig(ctx context.Context, patch backend.Config) error {
	f.patches = append(f.patches, patch)
	return nil
}

type fakeScheduler struct {
	filters         []backend.Category
	statusForces    int
	detectionForces int
}

func (f *fakeScheduler) SetFilter(filter backend.Category) { f.filters = append(f.filters, filter) }
func (f *fakeScheduler) ForceStatus()                      { f.statusForces++ }
func (f *fakeScheduler) ForceDetections()                  { f.detectionForces++ }

type fakeImages struct {
	data        string
	contentType string
	err         error
}

func (f *fakeImages) FetchImage(ctx context.Context, category backend.Category, filename string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader(f.data)), f.contentType, nil
}

// nopBus satisfies the hub without an embedded NATS server
type nopBus struct{}

func (nopBus) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return nil, nil
}

type testServer struct {
	srv    *Server
	store  *state.Store
	fb     *fakeBackend
	sched  *fakeScheduler
	images *fakeImages
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	store := state.NewStore(nil)
	fb := &fakeBackend{toggleResult: &backend.ToggleResult{Active: true, Message: "Monitoring started"}}
	sched := &fakeScheduler{}
	ctrl := monitor.NewController(fb, store, sched)

	hub, err := feed.NewHub(nopBus{}, "test.snapshot")
	require.NoError(t, err)

	images := &fakeImages{data: "jpeg-bytes", contentType: "image/jpeg"}
	return &testServer{
		srv:    NewServer(cfg, ctrl, images, hub, nil, 0),
		store:  store,
		fb:     fb,
		sched:  sched,
		images: images,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestServer_View(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{{ID: "det-1", Category: backend.CategoryCats, Filename: "cat.jpg"}},
		Total:      1,
	})

	w := ts.do(t, http.MethodGet, "/api/view", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var vs state.ViewState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vs))
	assert.Equal(t, backend.CategoryAll, vs.Filter)
	assert.False(t, vs.Loading)
	require.Len(t, vs.Detections, 1)
	assert.Equal(t, "det-1", vs.Detections[0].ID)
}

func TestServer_SetFilter(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/filter", map[string]string{"category": "dogs"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []backend.Category{backend.CategoryDogs}, ts.sched.filters)
	assert.Equal(t, backend.CategoryDogs, ts.store.Snapshot().Filter)
}

func TestServer_SetFilter_Invalid(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/filter", map[string]string{"category": "birds"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.sched.filters)
}

func TestServer_SelectAndClear(t *testing.T) {
	ts := newTestServer(t)
	ts.store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{{ID: "det-1", Category: backend.CategoryCats}},
		Total:      1,
	})

	w := ts.do(t, http.MethodPost, "/api/select", map[string]string{"category": "cats", "id": "det-1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ts.store.Snapshot().Selected)

	w = ts.do(t, http.MethodDelete, "/api/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ts.store.Snapshot().Selected)
}

func TestServer_Select_NotInList(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/select", map[string]string{"category": "cats", "id": "ghost"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Toggle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/toggle", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.sched.statusForces)

	var resp struct {
		Success bool   `json:"success"`
		Active  bool   `json:"active"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Active)
}

func TestServer_Toggle_BackendDown(t *testing.T) {
	ts := newTestServer(t)
	ts.fb.toggleErr = errors.New("connection refused")

	w := ts.do(t, http.MethodPost, "/api/toggle", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Zero(t, ts.sched.statusForces)
}

func TestServer_Delete(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodDelete, "/api/detections/cats/det-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cats/det-1"}, ts.fb.deleted)
	assert.Equal(t, 1, ts.sched.detectionForces)
}

func TestServer_Delete_AllIsNotAnItemCategory(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodDelete, "/api/detections/all/det-1", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.fb.deleted)
}

func TestServer_ImageProxy(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/images/cats/cat.jpg", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", w.Body.String())
}

func TestServer_ImageProxy_NotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.images.err = &backend.ServerError{Op: "image", Status: http.StatusNotFound}

	w := ts.do(t, http.MethodGet, "/images/cats/missing.jpg", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_BackendConfigRoundtrip(t *testing.T) {
	ts := newTestServer(t)
	ts.fb.config = backend.Config{"fps": 10.0, "detection_confidence": 0.6}

	w := ts.do(t, http.MethodGet, "/api/backend/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg backend.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 10.0, cfg["fps"])

	w = ts.do(t, http.MethodPut, "/api/backend/config", map[string]interface{}{"fps": 15})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.fb.patches, 1)
}
