package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbridge/internal/bridge"
	"schedbridge/internal/config"
	"schedbridge/internal/schedule"
)

const sampleDoc = `{
	"updated_at": "2025-10-01T08:00:00+07:00",
	"buildings": [{"id": "GF", "name": "Gedung Fisika", "rooms": ["1201", "1202"]}],
	"bookings": [
		{"id": "X1", "rooms": ["GF-1201", "GF-1202"], "status": "fixed", "title": "Seminar",
		 "start_dt": "2025-10-22T13:00:00+07:00", "end_dt": "2025-10-22T14:30:00+07:00"},
		{"id": "X2", "rooms": ["GF-1201"], "status": "pending",
		 "date_from": "2025-09-01", "date_to": "2025-12-19",
		 "byweekday": ["MO"], "start": "09:00", "end": "10:40"}
	]
}`

// newTestServer returns a Server over a store loaded from sampleDoc, or an
// empty store when loaded is false.
func newTestServer(t *testing.T, loaded bool) (*Server, *schedule.Store) {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleDoc))
	}))
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	store := schedule.NewStore(ts.URL, cfg.Resource, nil, nil)
	if loaded {
		require.NoError(t, store.Reload(context.Background()))
	}

	br := bridge.New(cfg.Resource, store.LegacyPayload)
	return NewServer(cfg, store, br, true), store
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleSchedule_BeforeLoad(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := get(t, s, "/api/schedule")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestHandleSchedule_RowsAndFilters(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s, "/api/schedule")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Rows, 3)
	require.Len(t, resp.Buildings, 1)
	assert.Equal(t, "GF", resp.Buildings[0].ID)
	assert.Equal(t, "2025-10-01T08:00:00+07:00", resp.UpdatedAt)

	rec = get(t, s, "/api/schedule?status=pending")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "X2", resp.Rows[0].ID)

	rec = get(t, s, "/api/schedule?building=all&room=GF-1202&status=all")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "X1", resp.Rows[0].ID)
}

func TestLegacyRoutes_ByteIdenticalPayload(t *testing.T) {
	s, store := newTestServer(t, true)

	bare := get(t, s, "/schedule.json")
	sub := get(t, s, "/data/schedule.json?x=1")

	require.Equal(t, http.StatusOK, bare.Code)
	require.Equal(t, http.StatusOK, sub.Code)
	assert.Equal(t, bare.Body.Bytes(), sub.Body.Bytes())
	assert.Equal(t, store.LegacyPayload(), bare.Body.Bytes())
}

func TestHandleBuildings(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := get(t, s, "/api/buildings")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Buildings []struct {
			ID    string   `json:"id"`
			Rooms []string `json:"rooms"`
		} `json:"buildings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Buildings, 1)
	assert.Equal(t, []string{"GF-1201", "GF-1202"}, resp.Buildings[0].Rooms)
}

func TestHandleRefresh(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec := get(t, s, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	post := httptest.NewRecorder()
	s.Handler().ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	require.Equal(t, http.StatusOK, post.Code)

	// The reload made the schedule available.
	rec = get(t, s, "/api/schedule")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleExportICS(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := get(t, s, "/export.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "X1@schedbridge")
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}

	// /health stays open.
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/api/schedule")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	req.SetBasicAuth("admin", "secret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestHandlePreview_ServesCapturedFile(t *testing.T) {
	s, store := newTestServer(t, true)

	// The handler must read the PNG from the same path the capture
	// pipeline writes, in both modes.
	cfg := config.DefaultConfig()
	cfg.Capture.Output = filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, os.WriteFile(cfg.PreviewPath(false), []byte("png-bytes"), 0o644))

	prod := NewServer(cfg, store, s.bridge, false)
	rec := get(t, prod, "/preview.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
}

func TestAPIPathsNeverFallThroughToStatic(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := get(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
