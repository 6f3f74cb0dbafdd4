// Package api exposes the command surface (spec.md §6) over a loopback-only
// HTTP server, for a GUI bridge or any other local caller that prefers JSON
// over an in-process Go call. Grounded on the teacher's
// internal/api/server.go ControlServer: the same loopback-enforcement +
// bearer-token + chi middleware chain, re-routed to internal/launcher's
// command methods instead of the download-queue API.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mc-launcher-engine/internal/config"
	"mc-launcher-engine/internal/launcher"
	"mc-launcher-engine/internal/security"
)

// ControlServer serves the command surface under /v1/*.
type ControlServer struct {
	logger  *slog.Logger
	service *launcher.Service
	cfg     *config.ConfigManager
	audit   *security.AuditLogger
	router  *chi.Mux
}

func NewControlServer(logger *slog.Logger, service *launcher.Service, cfg *config.ConfigManager, audit *security.AuditLogger) *ControlServer {
	s := &ControlServer{logger: logger, service: service, cfg: cfg, audit: audit, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

// Start binds the loopback listener in a goroutine. A no-op if the control
// server is disabled in config.
func (s *ControlServer) Start(port int) {
	if !s.cfg.GetEnableControlServer() {
		return
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	go func() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			s.logger.Error("control server failed to bind", "addr", addr, "error", err)
			return
		}
		s.logger.Info("control server listening", "addr", addr)
		if err := http.Serve(listener, s.router); err != nil {
			s.logger.Error("control server stopped", "error", err)
		}
	}()
}

func (s *ControlServer) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityMiddleware)

	s.router.Post("/v1/login", s.handleLogin)
	s.router.Post("/v1/login_abort", s.handleLoginAbort)
	s.router.Get("/v1/logged", s.handleGetLogged)
	s.router.Get("/v1/logging", s.handleGetLogging)
	s.router.Get("/v1/active", s.handleGetActive)
	s.router.Post("/v1/active", s.handleSetActive)
	s.router.Delete("/v1/accounts/{uuid}", s.handleDeleteAccount)
	s.router.Post("/v1/download_json", s.handleDownloadJSON)
}

// securityMiddleware enforces loopback-only access and a shared-secret
// bearer token, per the teacher's own securityMiddleware.
func (s *ControlServer) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		userAgent := r.UserAgent()
		action := r.Method + " " + r.URL.Path

		if sourceIP != "127.0.0.1" && sourceIP != "::1" {
			s.audit.Log(sourceIP, userAgent, action, http.StatusForbidden, "external access denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		token := r.Header.Get("X-Launcher-Token")
		if expected := s.cfg.GetControlServerToken(); token != expected {
			s.audit.Log(sourceIP, userAgent, action, http.StatusUnauthorized, "invalid token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.audit.Log(sourceIP, userAgent, action, http.StatusOK, "authorized")
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Index int `json:"index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *ControlServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := s.service.Login(r.Context(), req.Index)
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *ControlServer) handleLoginAbort(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.service.LoginAbort(req.Index))
}

func (s *ControlServer) handleGetLogged(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetLogged())
}

func (s *ControlServer) handleGetLogging(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetLogging())
}

func (s *ControlServer) handleGetActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"uuid": s.service.GetActive()})
}

type setActiveRequest struct {
	UUID string `json:"uuid"`
}

func (s *ControlServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.service.SetActive(req.UUID); err != nil {
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ControlServer) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	s.service.DeleteAccount(chi.URLParam(r, "uuid"))
	w.WriteHeader(http.StatusOK)
}

func (s *ControlServer) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	versionID := r.URL.Query().Get("version_id")
	if versionID == "" {
		http.Error(w, "version_id is required", http.StatusBadRequest)
		return
	}

	resolved, err := s.service.DownloadJSON(r.Context(), versionID)
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
