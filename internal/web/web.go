package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"myhebrewdates/internal/auth"
	"myhebrewdates/internal/calendar"
	"myhebrewdates/internal/config"
	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/store"
)

// Server serves the owner API, the public share view and feed downloads.
type Server struct {
	cfg  *config.Config
	svc  *calendar.Service
	auth *auth.Authenticator
	mux  *http.ServeMux
}

// embeddedStatic holds the static pages served outside the API.
//
//go:embed static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *calendar.Service, a *auth.Authenticator) *Server {
	s := &Server{
		cfg:  cfg,
		svc:  svc,
		auth: a,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)

	s.mux.Handle("GET /api/calendars", s.requireUser(s.handleListCalendars))
	s.mux.Handle("POST /api/calendars", s.requireUser(s.handleCreateCalendar))
	s.mux.Handle("GET /api/calendars/{id}", s.requireUser(s.handleGetCalendar))
	s.mux.Handle("PUT /api/calendars/{id}", s.requireUser(s.handleUpdateCalendar))
	s.mux.Handle("DELETE /api/calendars/{id}", s.requireUser(s.handleDeleteCalendar))

	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/instructions/", http.StatusFound)
	})
	s.mux.HandleFunc("GET /instructions/{$}", s.handleInstructions)

	// Public, token-addressed routes. The token is the only credential.
	s.mux.HandleFunc("GET /{token}/{$}", s.handleShare)
	s.mux.HandleFunc("GET /{file}", s.handleDownload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to open embedded static filesystem", err)
		writeError(w, http.StatusServiceUnavailable, "instructions not available")
		return
	}
	http.ServeFileFS(w, r, sub, "instructions.html")
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

// writeServiceError maps service and store errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *calendar.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		appLog.Error("request failed", err, "method", r.Method, "path", redactPath(r.URL.Path))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Info("http request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// redactPath replaces share tokens in p with "<token>".
func redactPath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		base := seg
		if dot := strings.IndexByte(seg, '.'); dot >= 0 {
			base = seg[:dot]
		}
		if _, err := uuid.Parse(base); err == nil {
			segs[i] = "<token>" + seg[len(base):]
		}
	}
	return strings.Join(segs, "/")
}
