// Package server exposes the bridge over a websocket together with health,
// metrics and session endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/tgsearch/internal/bridge"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/metrics"
	"github.com/user/tgsearch/internal/session"
)

// Server is the HTTP surface of a running core.
type Server struct {
	deps     *core.Deps
	sessions *session.Store
	queue    *bridge.Queue
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer wires the routes. queue must be started by the caller.
func NewServer(deps *core.Deps, sessions *session.Store, queue *bridge.Queue, logger *slog.Logger) *Server {
	s := &Server{
		deps:     deps,
		sessions: sessions,
		queue:    queue,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleAPISession)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":   "ok",
		"database": s.deps.Gateway.Ready(),
	}
	if s.deps.Client != nil {
		status["connected"] = s.deps.Client.Connected()
	}
	writeJSON(w, http.StatusOK, status)
}

type sessionResponse struct {
	ID        string `json:"id"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
	Username  string `json:"username,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List()
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	active, err := s.sessions.ActiveID()
	if err != nil {
		s.logger.Error("load active session failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp := sessionResponse{
			ID:        sess.ID,
			Active:    sess.ID == active,
			Connected: sess.Connected,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
			UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
		}
		if sess.Me != nil {
			resp.Username = sess.Me.Username
		}
		result = append(result, resp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
