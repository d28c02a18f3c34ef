package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexusim/nexusim/internal/core/observability/log"
	"github.com/nexusim/nexusim/internal/core/scheduler"
	"github.com/nexusim/nexusim/internal/core/supervisor"
)

// Config holds the observability server configuration.
type Config struct {
	ListenAddr string
	// StreamInterval is the cadence of websocket stats pushes.
	StreamInterval time.Duration
}

// Server exposes the host's observability surface: stats polling, live
// stats streaming and clock control. It consumes only the public core
// surface and owns no simulation state.
type Server struct {
	cfg    Config
	logger log.Log
	sched  *scheduler.Scheduler
	sup    *supervisor.Supervisor

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// StatsPayload is the JSON document served by /stats and streamed on /ws.
type StatsPayload struct {
	Scheduler scheduler.Stats  `json:"scheduler"`
	Entities  supervisor.Stats `json:"entities"`
}

type controlRequest struct {
	Action   string `json:"action"`
	TickRate int    `json:"tick_rate,omitempty"`
}

func New(cfg Config, sched *scheduler.Scheduler, sup *supervisor.Supervisor, logger log.Log) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		sched:  sched,
		sup:    sup,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", log.Error(err))
		}
	}()

	s.logger.Info("observability server listening", log.String("addr", s.cfg.ListenAddr))
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) snapshot() StatsPayload {
	return StatsPayload{
		Scheduler: s.sched.GetStats(),
		Entities:  s.sup.Stats(),
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("%v: %v", ErrInvalidBody, err), http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "start":
		err = s.sched.Start()
	case "stop":
		err = s.sched.Stop()
	case "set_tick_rate":
		err = s.sched.SetTickRate(req.TickRate)
	default:
		http.Error(w, fmt.Sprintf("%v: %q", ErrUnknownAction, req.Action), http.StatusBadRequest)
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, scheduler.ErrAlreadyStopped):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scheduler.ErrInvalidTickRate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// Reader goroutine: its only job is to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	// First frame immediately, then one per interval.
	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
