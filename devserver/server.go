// Package devserver runs the functions on a single local HTTP server: the
// callables over their protocol, the write triggers as simulated writes,
// and the scheduled jobs on an in-process scheduler.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/PipeOpsHQ/financeira-functions/admin"
	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/authz"
	"github.com/PipeOpsHQ/financeira-functions/callable"
	"github.com/PipeOpsHQ/financeira-functions/observe"
	cronpkg "github.com/PipeOpsHQ/financeira-functions/runtime/cron"
	"github.com/PipeOpsHQ/financeira-functions/trigger"
)

type Config struct {
	Addr     string
	Admin    *admin.Service
	Verifier authz.Verifier
	Triggers []*trigger.Handler
	// Scheduler runs the scheduled functions; nil disables the job routes.
	Scheduler *cronpkg.Scheduler
	Audit     *audit.Log
	Sink      observe.Sink
	Logger    *slog.Logger
	// AllowLocalNoAuth lets loopback requests without a token use the
	// operator routes.
	AllowLocalNoAuth bool
	AllowedOrigin    string
}

type Server struct {
	cfg  Config
	mux  *http.ServeMux
	http *http.Server
	once sync.Once
}

func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = observe.NoopSink{}
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(s.mux, "functions-local"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	s.cfg.Logger.Info("local functions server listening", slog.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		s.cfg.Logger.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.cfg.Logger.Warn("http shutdown error", slog.Any("error", err))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
	})
	return outErr
}

func (s *Server) registerRoutes() {
	if s.cfg.Admin != nil {
		opts := []callable.Option{
			callable.WithVerifier(s.cfg.Verifier),
			callable.WithSink(s.cfg.Sink),
			callable.WithLogger(s.cfg.Logger),
			callable.WithAllowedOrigin(s.cfg.AllowedOrigin),
		}
		s.mux.Handle("/setCustomClaims", callable.Handler("setCustomClaims", s.cfg.Admin.SetCustomClaimsFunc(), opts...))
		s.mux.Handle("/setAppCheckRequired", callable.Handler("setAppCheckRequired", s.cfg.Admin.SetAppCheckRequiredFunc(), opts...))
	}
	s.mux.HandleFunc("/triggers/", s.require(s.handleTrigger))
	s.mux.HandleFunc("/jobs", s.require(s.handleJobs))
	s.mux.HandleFunc("/jobs/", s.require(s.handleJobByName))
	s.mux.HandleFunc("/audit", s.require(s.handleAudit))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
}

// require admits admin principals, and loopback callers without a token
// when AllowLocalNoAuth is set.
func (s *Server) require(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if p != nil && !authz.IsAdmin(p) {
			writeError(w, http.StatusForbidden, fmt.Errorf("admin required"))
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticate(r *http.Request) (*authz.Principal, error) {
	token := bearerToken(r)
	if token == "" {
		if s.cfg.AllowLocalNoAuth && isLocalRequest(r.RemoteAddr) {
			return nil, nil
		}
		return nil, fmt.Errorf("missing bearer token")
	}
	if s.cfg.Verifier == nil {
		return nil, fmt.Errorf("token verification is not configured")
	}
	return s.cfg.Verifier.Verify(r.Context(), token)
}

type writeRequest struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	path := strings.Join(splitPath(strings.TrimPrefix(r.URL.Path, "/triggers/")), "/")
	h := s.triggerFor(path)
	if h == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no trigger watches %q", path))
		return
	}
	var req writeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid write body: %w", err))
		return
	}
	if err := h.Handle(r.Context(), trigger.Change{Path: path, Before: req.Before, After: req.After}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"function": h.Name,
		"path":     path,
		"action":   audit.ActionFor(req.Before, req.After),
	})
}

func (s *Server) triggerFor(path string) *trigger.Handler {
	for _, h := range s.cfg.Triggers {
		if _, ok := h.Pattern.Match(path); ok {
			return h
		}
	}
	return nil
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []cronpkg.Job{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.cfg.Scheduler.List()})
}

func (s *Server) handleJobByName(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/jobs/"))
	if len(parts) != 2 || s.cfg.Scheduler == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	name, action := parts[0], parts[1]
	if _, ok := s.cfg.Scheduler.Get(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job %q not found", name))
		return
	}
	switch {
	case action == "run" && r.Method == http.MethodPost:
		output, err := s.cfg.Scheduler.Trigger(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": name, "output": output})
	case action == "history" && r.Method == http.MethodGet:
		runs, err := s.cfg.Scheduler.History(name, parseInt(r.URL.Query().Get("limit"), 20))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": name, "runs": runs})
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Audit == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("audit log is not configured"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries, err := s.cfg.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func isLocalRequest(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
