package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/config"
	"github.com/JakeFAU/acra-collector/internal/dispatcher"
	"github.com/JakeFAU/acra-collector/internal/id/uuid"
	"github.com/JakeFAU/acra-collector/internal/ingest"
	"github.com/JakeFAU/acra-collector/internal/logging"
	"github.com/JakeFAU/acra-collector/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Server wires HTTP handlers to the dispatcher.
type Server struct {
	router     chi.Router
	dispatcher *dispatcher.Dispatcher
	idGen      ingest.IDGenerator
	clock      ingest.Clock
	cfg        config.Config
	logger     *zap.Logger
	draining   atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	dispatcher *dispatcher.Dispatcher,
	idGen ingest.IDGenerator,
	clock ingest.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = "/report"
	}
	s := &Server{
		dispatcher: dispatcher,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Post(cfg.ReportPath, s.submitReport)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetDraining flips /readyz to 503 so load balancers stop routing here
// while in-flight reports finish.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.draining.Load() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"workers": fmt.Sprint(s.dispatcher.Size()),
	})
}

// submitReport hands the body to a worker and waits for the outcome. Once
// the job is admitted the handler waits for it even if the client goes
// away, so the body stays readable until the pipeline is done with it.
func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := ingest.NewJob(context.WithoutCancel(ctx), r.Body, s.clock.Now())

	if err := s.dispatcher.Submit(ctx, job); err != nil {
		s.logger.Error("report not admitted", logging.RequestField(ctx), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := <-job.Done(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if !uuid.Valid(reqID) {
			id, err := s.idGen.NewID()
			if err != nil {
				s.logger.Error("generate request id", zap.Error(err))
			}
			reqID = id
		}
		ctx := logging.WithRequestID(r.Context(), reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			logging.RequestField(r.Context()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					logging.RequestField(r.Context()),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}
