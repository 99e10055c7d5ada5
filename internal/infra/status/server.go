package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"farmguard/internal/domain"
)

const commandQueueSize = 10

// Server exposes the agent's health and status on the local network and
// accepts command tokens that are dispatched like backend commands.
type Server struct {
	addr        string
	server      *http.Server
	commands    chan string
	snapshot    func() domain.AgentStatus
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	rateLimiter *RateLimiter
	authToken   string
}

func NewServer(addr, authToken string, snapshot func() domain.AgentStatus, logger *slog.Logger) *Server {
	s := &Server{
		addr:        addr,
		commands:    make(chan string, commandQueueSize),
		snapshot:    snapshot,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute),
		authToken:   authToken,
	}
	s.mux.HandleFunc("POST /command", s.rateLimiter.Middleware(s.handleCommand))
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("status server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// NextCommand returns a queued command without blocking, or "" when the
// queue is empty.
func (s *Server) NextCommand(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case cmd := <-s.commands:
		return cmd, nil
	default:
		return "", nil
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token == s.authToken
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("unauthorized command request", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	raw := strings.TrimSpace(string(data))
	cmd, ok := domain.ParseCommand(raw)
	if !ok {
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	select {
	case s.commands <- cmd.Raw:
		s.logger.Info("command queued via HTTP", "command", cmd.Raw)
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "command": cmd.Raw})
	default:
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.snapshot()

	code := http.StatusOK
	state := "ok"
	if !status.Running {
		code = http.StatusServiceUnavailable
		state = "not_ready"
	}

	writeJSON(w, code, map[string]any{
		"status":     state,
		"running":    status.Running,
		"camera":     status.Camera,
		"queue_size": len(s.commands),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
