package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	syncengine "github.com/higorocha/dibau-app-leiturista-sub000/internal/sync"
)

// Server exposes the engine over a small local HTTP API: status for UI
// polling, manual sync triggers, and a websocket pushing live progress.
type Server struct {
	engine *syncengine.Engine
	hub    *Hub
	log    *zap.Logger
	http   *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server only binds locally; cross-origin browser access is expected
	// from the packaged UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a Server listening on addr.
func New(addr string, engine *syncengine.Engine, hub *Hub, log *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		hub:    hub,
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/api/status", s.handleStatus)
	r.Post("/api/sync/upload", s.handleUpload)
	r.Post("/api/sync/pull", s.handlePull)
	r.Get("/api/ws", s.handleWebSocket)

	s.http = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info("status server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.UploadAll(r.Context())
	if errors.Is(err, syncengine.ErrSyncInFlight) {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.hub.Broadcast(EventUpload, report)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	opts := syncengine.PullOptions{
		Force: r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true",
	}
	for _, key := range r.URL.Query()["period"] {
		p, err := models.ParsePeriod(key)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Periods = append(opts.Periods, p)
	}

	report, err := s.engine.Pull(r.Context(), opts)
	switch {
	case errors.Is(err, syncengine.ErrSyncInFlight):
		s.writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, syncengine.ErrUploadsPending):
		s.writeError(w, http.StatusPreconditionFailed, err)
		return
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.hub.Broadcast(EventPull, report)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := s.hub.newClient(conn)
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
