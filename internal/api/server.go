package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/pleasantbot/pleasantdash/internal/config"
	"github.com/pleasantbot/pleasantdash/internal/health"
	"github.com/pleasantbot/pleasantdash/internal/metrics"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Server is the dashboard: the embedded page, its JSON API and the
// health and metrics endpoints.
type Server struct {
	sessions    *sessions
	healthCheck *health.Checker
	metrics     *metrics.Collector
	httpServer  *http.Server
	startTime   time.Time

	cfgMu sync.RWMutex
	cfg   config.Config
}

// NewServer creates a new dashboard server. hc and m may be nil.
func NewServer(cfg *config.Config, hc *health.Checker, m *metrics.Collector) *Server {
	return &Server{
		sessions:    newSessions(cfg.Bot, m, hc),
		healthCheck: hc,
		metrics:     m,
		startTime:   time.Now(),
		cfg:         *cfg,
	}
}

// UpdateConfig applies a reloaded configuration, including the health
// check settings. The listen address is not changed on a running server.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	listen := s.cfg.Listen
	s.cfg = *cfg
	s.cfg.Listen.Port = listen.Port
	s.cfg.Listen.Bind = listen.Bind
	s.cfg.Listen.TLSCert = listen.TLSCert
	s.cfg.Listen.TLSKey = listen.TLSKey
	s.cfgMu.Unlock()

	s.sessions.update(cfg.Bot)
	if s.healthCheck != nil {
		s.healthCheck.UpdateConfig(cfg.HealthCheck)
	}
	slog.Info("dashboard configuration updated")
}

func (s *Server) config() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// authMiddleware checks for a valid API key on /api and the status routes.
// The page itself, login, health, ready and metrics stay open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !strings.HasPrefix(path, "/api/") && path != "/status" && path != "/config" {
			next.ServeHTTP(w, r)
			return
		}

		lc := s.config().Listen
		if lc.APIKey == "" && lc.APIKeyHash == "" {
			// No API key configured, allow all requests
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || !validKey(lc, strings.TrimPrefix(auth, "Bearer ")) {
			writeError(w, http.StatusUnauthorized, "unauthorized: invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func validKey(lc config.ListenConfig, key string) bool {
	if key == "" {
		return false
	}
	if lc.APIKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(lc.APIKeyHash), []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(lc.APIKey), []byte(key)) == 1
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// View state
	r.HandleFunc("/api/commands", s.getCommands).Methods("GET")
	r.HandleFunc("/api/commands", s.addCommand).Methods("POST")
	r.HandleFunc("/api/commands/delete", s.deleteCommands).Methods("POST")
	r.HandleFunc("/api/commands/selection", s.getSelection).Methods("GET")
	r.HandleFunc("/api/commands/selection", s.updateSelection).Methods("POST")
	r.HandleFunc("/api/commands/selection/delete", s.deleteSelected).Methods("POST")
	r.HandleFunc("/api/quotes", s.getQuotes).Methods("GET")
	r.HandleFunc("/api/dashboard", s.getDashboard).Methods("GET")

	// OAuth
	r.HandleFunc("/api/auth", s.getAuth).Methods("GET")
	r.HandleFunc("/api/auth/token", s.postToken).Methods("POST")
	r.HandleFunc("/api/auth/login-url", s.getLoginURL).Methods("GET")
	r.HandleFunc("/login", s.login).Methods("GET")

	// Server status & config
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/config", s.configHandler).Methods("GET")

	// Health & readiness
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	// Prometheus metrics
	if s.metrics != nil && s.metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Page routes, client-side switched
	for _, p := range pagePaths {
		r.HandleFunc(p, s.dashboardHandler).Methods("GET")
	}

	// Wrap with security headers, then auth middleware
	return s.securityHeaders(s.authMiddleware(r))
}

// Start starts the HTTP server in the background.
func (s *Server) Start() error {
	lc := s.config().Listen
	addr := lc.Addr()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if lc.APIKey == "" && lc.APIKeyHash == "" {
		slog.Warn("API key not configured, dashboard API is unauthenticated")
	}
	slog.Info("dashboard listening", "addr", addr, "tls", lc.TLSEnabled())

	go func() {
		var err error
		if lc.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(lc.TLSCert, lc.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("dashboard server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Health Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": boolToStatus(true)})
		return
	}
	allHealthy := s.healthCheck.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":  boolToStatus(allHealthy),
		"targets": s.healthCheck.GetAllStatuses(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck == nil || s.healthCheck.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Status & Config Handlers ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	urls := s.sessions.urls()
	sort.Strings(urls)

	result := map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"bot_sessions":   s.sessions.count(),
		"bot_targets":    urls,
	}
	if u, err := s.sessions.baseURL(r); err == nil {
		result["bot_url"] = u
	}
	if s.healthCheck != nil {
		result["health_targets"] = s.healthCheck.TargetCount()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config().Redacted())
}

// securityHeaders adds security-related HTTP headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
