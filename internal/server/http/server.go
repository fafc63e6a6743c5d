package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/uemerson/tokenrelay/internal/pubsub"
	"github.com/uemerson/tokenrelay/internal/queue"
	"github.com/uemerson/tokenrelay/internal/relay"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

// HealthFunc reports broker connectivity for the health endpoint.
type HealthFunc func(ctx context.Context) error

// Server exposes the submit-and-stream operation over HTTP/SSE.
type Server struct {
	relay  *relay.Service
	health HealthFunc
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

// New builds the server and its routes.
func New(relaySvc *relay.Service, health HealthFunc, logger logpkg.Logger) *Server {
	s := &Server{
		relay:  relaySvc,
		health: health,
		logger: logger.With(logpkg.Component("http")),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Post("/ask", s.handleAsk)
	r.Get("/v1/healthz", s.handleHealth)
	s.srv = &http.Server{Handler: r}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener; open stream sessions are simply dropped and the
// broker retains their unacked jobs.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type askReq struct {
	Query string `json:"query"`
	UUID  string `json:"uuid"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sink := newSSESink(w)
	st, err := s.relay.SubmitAndStream(r.Context(), relay.Request{Query: req.Query, CorrelationID: req.UUID}, sink)
	if err != nil {
		// Nothing was streamed; the error can still use a status code.
		switch {
		case errors.Is(err, relay.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, queue.ErrQueueUnavailable), errors.Is(err, pubsub.ErrChannelUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.logger.Debug("stream finished", logpkg.Str("state", st.String()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
