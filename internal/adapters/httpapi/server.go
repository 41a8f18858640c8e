// Package httpapi exposes the chat session engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tunegrab/internal/core/domain"
	"tunegrab/internal/core/ports"
)

const maxBodyBytes = 16 << 10

// Server routes owner events to a ChatHandler and serves queued replies.
type Server struct {
	router  *chi.Mux
	httpSrv *http.Server
	handler ports.ChatHandler
	outbox  *Outbox
	logger  zerolog.Logger
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type queryRequest struct {
	Text string `json:"text"`
}

type callbackRequest struct {
	Token string `json:"token"`
}

// New creates a Server. Replies sent by handler must go to outbox.
func New(handler ports.ChatHandler, outbox *Outbox, logger zerolog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		handler: handler,
		outbox:  outbox,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/owners/{owner}", func(r chi.Router) {
		r.Post("/start", s.start)
		r.Post("/query", s.query)
		r.Post("/callback", s.callback)
		r.Get("/messages", s.messages)
		r.Get("/job", s.job)
	})
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if err := s.handler.OnStart(r.Context(), owner); err != nil {
		s.internalError(w, owner, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.handler.OnQuery(r.Context(), owner, req.Text); err != nil {
		s.internalError(w, owner, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	var req callbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.handler.OnCallback(r.Context(), owner, req.Token); err != nil {
		s.internalError(w, owner, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.outbox.Drain(owner))
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	evt, found := s.outbox.LastJob(owner)
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no job for owner")
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (s *Server) internalError(w http.ResponseWriter, owner domain.OwnerID, err error) {
	s.logger.Error().Err(err).Str("owner", string(owner)).Msg("failed to handle owner event")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to handle request")
}

func ownerParam(w http.ResponseWriter, r *http.Request) (domain.OwnerID, bool) {
	owner := strings.TrimSpace(chi.URLParam(r, "owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "INVALID_OWNER", "owner is required")
		return "", false
	}
	return domain.OwnerID(owner), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
