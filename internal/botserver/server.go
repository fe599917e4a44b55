// Package botserver serves the bot API the dashboard consumes, backed by the
// bot's SQLite database. It answers the same routes and bodies the bot does.
package botserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
	"github.com/pleasantbot/pleasantdash/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// OAuthSettingKey is where the chat token is kept, with its "oauth:" prefix.
const OAuthSettingKey = "oauth"

// Store is the persistence the bot API reads and writes.
type Store interface {
	ListCommands(ctx context.Context) (map[string]botapi.Command, error)
	UpsertCommand(ctx context.Context, name, response string, perm botapi.Permission) error
	DeleteCommand(ctx context.Context, name string) (bool, error)
	ListQuotes(ctx context.Context) (map[int]botapi.Quote, error)
	ListBans(ctx context.Context) ([]botapi.BanRecord, error)
	Stats(ctx context.Context) (botapi.Stats, error)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Server is the bot's HTTP API.
type Server struct {
	store      Store
	handler    http.Handler
	httpServer *http.Server
}

// New creates a server over st.
func New(st Store) *Server {
	s := &Server{store: st}

	r := mux.NewRouter()
	r.HandleFunc("/"+botapi.EndpointGetCommands, s.getCommands).Methods("GET")
	r.HandleFunc("/"+botapi.EndpointGetQuotes, s.getQuotes).Methods("GET")
	r.HandleFunc("/"+botapi.EndpointBanHistory, s.getBanHistory).Methods("GET")
	r.HandleFunc("/"+botapi.EndpointStats, s.getStats).Methods("GET")
	r.HandleFunc("/"+botapi.EndpointCheckAuth, s.checkAuth).Methods("GET")

	r.HandleFunc("/"+botapi.EndpointAddCommand, s.addCommand).Methods("POST")
	r.HandleFunc("/"+botapi.EndpointDeleteCommand, s.deleteCommands).Methods("POST")
	r.HandleFunc("/"+botapi.EndpointAddOAuth, s.addOAuth).Methods("POST")

	// Preflight for the dashboard page, which lives on another port.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.handler = cors(r)
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("bot API listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("bot API server error", "err", err)
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

// cors allows any origin, as the bot always has.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		next.ServeHTTP(w, r)
	})
}

// --- GET handlers ---

func (s *Server) getCommands(w http.ResponseWriter, r *http.Request) {
	coms, err := s.store.ListCommands(r.Context())
	if err != nil {
		slog.Error("listing commands", "err", err)
		writeStatus(w, http.StatusInternalServerError, "Error reading commands")
		return
	}
	writeJSON(w, http.StatusOK, coms)
}

func (s *Server) getQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.store.ListQuotes(r.Context())
	if err != nil {
		slog.Error("listing quotes", "err", err)
		writeStatus(w, http.StatusInternalServerError, "Error reading quotes")
		return
	}
	out := make(map[string]botapi.Quote, len(quotes))
	for id, q := range quotes {
		out[strconv.Itoa(id)] = q
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBanHistory(w http.ResponseWriter, r *http.Request) {
	bans, err := s.store.ListBans(r.Context())
	if err != nil {
		slog.Error("listing ban history", "err", err)
		writeStatus(w, http.StatusInternalServerError, "Error reading ban history")
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		slog.Error("computing stats", "err", err)
		writeStatus(w, http.StatusInternalServerError, "Error computing stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) {
	token, err := s.store.GetSetting(r.Context(), OAuthSettingKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("reading oauth token", "err", err)
	}
	writeJSON(w, http.StatusOK, err == nil && token != "")
}

// --- POST handlers ---

func (s *Server) addCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req botapi.AddCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "Error decoding command JSON")
		return
	}

	name := strings.TrimSpace(req.CommandName)
	if name == "" {
		writeStatus(w, http.StatusBadRequest, "Command name is required")
		return
	}
	perm, err := botapi.ParsePermission(string(req.Perm))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "Invalid permission")
		return
	}

	if err := s.store.UpsertCommand(r.Context(), name, req.Response, perm); err != nil {
		slog.Error("adding command", "command", name, "err", err)
		writeStatus(w, http.StatusBadRequest, "Error adding command to DB")
		return
	}

	slog.Info("command added", "command", name, "perm", perm)
	writeStatus(w, http.StatusOK, "Command successfully added")
}

func (s *Server) deleteCommands(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		writeStatus(w, http.StatusBadRequest, "Error binding JSON in delcom handler")
		return
	}

	// Every name is attempted even after a miss.
	deleteFailed := false
	for _, name := range names {
		found, err := s.store.DeleteCommand(r.Context(), name)
		if err != nil {
			slog.Error("deleting command", "command", name, "err", err)
		}
		if !found {
			deleteFailed = true
		}
	}

	if deleteFailed {
		writeStatus(w, http.StatusBadRequest, "Couldn't delete all commands")
		return
	}
	slog.Info("commands deleted", "commands", names)
	writeStatus(w, http.StatusOK, "Commands deleted")
}

func (s *Server) addOAuth(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var token string
	if err := json.NewDecoder(r.Body).Decode(&token); err != nil || token == "" {
		writeStatus(w, http.StatusBadRequest, "Error receiving new oauth token.")
		return
	}

	if err := s.store.SetSetting(r.Context(), OAuthSettingKey, "oauth:"+token); err != nil {
		slog.Error("storing oauth token", "err", err)
		writeStatus(w, http.StatusInternalServerError, "Error storing oauth token.")
		return
	}

	slog.Info("new oauth token set")
	writeStatus(w, http.StatusOK, "New oauth set.")
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"Status": message})
}
