package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"schedbridge/internal/bridge"
	"schedbridge/internal/config"
	"schedbridge/internal/export"
	appLog "schedbridge/internal/log"
	"schedbridge/internal/model"
	"schedbridge/internal/schedule"
)

// Server provides HTTP APIs for the schedule board plus the server-side
// face of the legacy bridge.
type Server struct {
	cfg    *config.Config
	store  *schedule.Store
	bridge *bridge.Bridge
	debug  bool
	mux    *http.ServeMux
}

// embeddedStatic contains the board UI.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server over the given store. br may be nil
// when the legacy routes are not wanted.
func NewServer(cfg *config.Config, store *schedule.Store, br *bridge.Bridge, debug bool) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		bridge: br,
		debug:  debug,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health is always exposed without auth.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="SchedBridge", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer starts an HTTP server bound to cfg.Listen. Graceful shutdown
// is left to the caller wrapping http.Server if needed.
func StartServer(_ context.Context, cfg *config.Config, store *schedule.Store, br *bridge.Bridge, debug bool) error {
	s := NewServer(cfg, store, br, debug)
	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "debug", debug)
	return http.ListenAndServe(cfg.Listen, s.Handler())
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/buildings", s.handleBuildings)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/export.ics", s.handleExportICS)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// Server-side face of the legacy bridge: requests for the legacy
	// resource name are answered with the synthesized payload, whether
	// they use the bare path or the data/ variant, query or not.
	if s.bridge != nil {
		legacy := s.bridge.Handler()
		s.mux.Handle("/"+s.cfg.Resource, legacy)
		s.mux.Handle("/data/"+s.cfg.Resource, legacy)
	}

	// Embedded board UI. All remaining paths fall back to this handler.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	Rows        []model.ViewRow         `json:"rows"`
	Buildings   []model.Building        `json:"buildings"`
	Combinables []model.CombinableGroup `json:"combinables"`
	Schema      model.Schema            `json:"schema"`
	UpdatedAt   string                  `json:"updated_at,omitempty"`
	SourcePath  string                  `json:"source_path,omitempty"`
	LoadedAt    time.Time               `json:"loaded_at"`
}

// handleSchedule returns the filtered view rows plus the building catalog.
//
// GET /api/schedule?building=GF&room=GF-1201&status=approved
//
// Empty or "all" selectors apply no filter. Filtering only selects from the
// already-built rows; it never triggers a re-fetch.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		s.writeLoadError(w)
		return
	}

	q := r.URL.Query()
	rows := schedule.FilterRows(snap.Rows, schedule.FilterOptions{
		Building: q.Get("building"),
		Room:     q.Get("room"),
		Status:   q.Get("status"),
	})

	writeJSON(w, http.StatusOK, scheduleResponse{
		Rows:        rows,
		Buildings:   snap.Model.Buildings,
		Combinables: snap.Model.Combinables,
		Schema:      snap.Model.Schema,
		UpdatedAt:   snap.Model.UpdatedAt,
		SourcePath:  snap.Path,
		LoadedAt:    snap.LoadedAt,
	})
}

// handleBuildings returns the building/room catalog for dropdown
// population.
func (s *Server) handleBuildings(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		s.writeLoadError(w)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Buildings   []model.Building        `json:"buildings"`
		Combinables []model.CombinableGroup `json:"combinables"`
	}{snap.Model.Buildings, snap.Model.Combinables})
}

// handleRefresh triggers an immediate reload of the schedule document.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := s.store.Reload(r.Context()); err != nil {
		appLog.Error("manual refresh failed", err)
		s.writeLoadError(w)
		return
	}
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		Bookings int       `json:"bookings"`
		Rows     int       `json:"rows"`
		LoadedAt time.Time `json:"loaded_at"`
	}{len(snap.Model.Bookings), len(snap.Rows), snap.LoadedAt})
}

// handleExportICS serves the canonical bookings as an iCalendar feed.
func (s *Server) handleExportICS(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		s.writeLoadError(w)
		return
	}

	feed, err := export.Feed(snap.Model, resolveLocationOrLocal(s.cfg.Timezone))
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar feed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	_, _ = w.Write(feed)
}

// handlePreview serves the last captured board PNG from disk, from the same
// path the capture pipeline writes to.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.PreviewPath(s.debug))
}

// writeLoadError reports the no-usable-document state. The distinction
// between "every candidate path failed" and "never loaded" is surfaced in
// the message; either way the client gets a renderable inline error, never
// a fault.
func (s *Server) writeLoadError(w http.ResponseWriter) {
	msg := "schedule not loaded yet"
	if err := s.store.LastErr(); err != nil {
		if errors.Is(err, schedule.ErrResourceNotFound) {
			msg = "schedule document not found at any known path"
		} else {
			msg = "schedule load failed"
		}
	}
	writeError(w, http.StatusServiceUnavailable, msg)
}

// staticFileServer returns an http.Handler that serves the embedded board
// UI.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "board UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /api/* requests must never fall through to the static UI; a
		// missing API handler should 404, not return HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
