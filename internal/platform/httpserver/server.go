package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	pollservice "livepoll/contexts/live-polling/poll-service"
	"livepoll/internal/platform/session"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "livepoll/internal/platform/httpserver/docs"
)

const readHeaderTimeout = 10 * time.Second

type Options struct {
	Addr string
	// AllowedOrigin is the CORS and websocket origin allowlist entry. "*"
	// accepts any origin.
	AllowedOrigin string
}

type Server struct {
	mux           *http.ServeMux
	handler       http.Handler
	httpServer    *http.Server
	logger        *slog.Logger
	addr          string
	allowedOrigin string
	polls         pollservice.Module
	sessions      *session.Manager
}

func New(
	polls pollservice.Module,
	sessions *session.Manager,
	logger *slog.Logger,
	opts Options,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	s := &Server{
		mux:           http.NewServeMux(),
		logger:        logger,
		addr:          opts.Addr,
		allowedOrigin: opts.AllowedOrigin,
		polls:         polls,
		sessions:      sessions,
	}
	s.registerRoutes()
	s.handler = s.withRequestLogging(s.withCORS(s.mux))
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler exposes the fully wrapped router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open result
// streams are hijacked connections and end when the bus closes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /polls/{pollId}", s.handleGetPoll)
	s.mux.HandleFunc("POST /polls/{pollId}/vote", s.handleCastVote)
	s.mux.HandleFunc("GET /polls/{pollId}/result", s.handlePollResults)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
