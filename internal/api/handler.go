package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devricklin/discord-relay/internal/biz/repo"
	"github.com/devricklin/discord-relay/internal/service"
)

const (
	defaultRepliesLimit = 20
	maxRepliesLimit     = 200
)

// StatusProvider reports the relay state
type StatusProvider interface {
	Status() service.Status
}

// Server provides the local status HTTP API
type Server struct {
	status  StatusProvider
	journal repo.JournalRepo // optional
	addr    string
	router  chi.Router
	server  *http.Server
	logger  *slog.Logger
}

// NewServer creates a new API server
func NewServer(status StatusProvider, journal repo.JournalRepo, addr string) *Server {
	s := &Server{
		status:  status,
		journal: journal,
		addr:    addr,
		logger:  slog.With("component", "api"),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/replies", s.handleReplies)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves until Stop. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("status API listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API stopped", "err", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.status.Status())
}

// Reply is one journaled reply attempt
type Reply struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	ChannelID   string    `json:"channel_id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name,omitempty"`
	Prompt      string    `json:"prompt"`
	Reply       string    `json:"reply,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("reply journal disabled"))
		return
	}

	limit := defaultRepliesLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRepliesLimit)
	}

	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	replies := make([]Reply, len(records))
	for i, rec := range records {
		replies[i] = Reply{
			ID:          rec.ID,
			MessageID:   rec.MessageID,
			ChannelID:   rec.ChannelID,
			AuthorID:    rec.AuthorID,
			AuthorName:  rec.AuthorName,
			Prompt:      rec.Prompt,
			Reply:       rec.Reply,
			Outcome:     string(rec.Outcome),
			Error:       rec.Error,
			ReceivedAt:  rec.ReceivedAt,
			CompletedAt: rec.CompletedAt,
		}
	}

	s.writeJSON(w, map[string]interface{}{
		"replies": replies,
		"count":   len(replies),
	})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
