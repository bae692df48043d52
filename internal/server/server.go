// Package server exposes the diagnostic engine over HTTP for the rendering
// surface.
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"mei-diagnostic/internal/domain"
	"mei-diagnostic/internal/usecase"
)

const diagnosticsPrefix = "/diagnostics/"

// Diagnoser is the part of the engine the HTTP surface needs.
type Diagnoser interface {
	Run(ctx context.Context, entityID string, opts ...usecase.RunOption) (*domain.RunReport, error)
	Current(entityID string) *domain.DiagnosticSnapshot
	Warm(ctx context.Context, entityID string) (*domain.DiagnosticSnapshot, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Server routes requests to the engine.
type Server struct {
	engine Diagnoser
	logger *zap.Logger
	srv    *fasthttp.Server

	// base is cancelled on Shutdown so in-flight runs stop fetching.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a server around engine.
func New(engine Diagnoser, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{engine: engine, logger: logger, base: base, cancel: cancel}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "meidiag",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return s
}

// ListenAndServe blocks serving addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http surface listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.srv.ShutdownWithContext(ctx)
}

// Handle is the fasthttp request handler.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case strings.HasPrefix(path, diagnosticsPrefix):
		entityID := strings.TrimPrefix(path, diagnosticsPrefix)
		switch {
		case ctx.IsPost():
			s.runDiagnostic(ctx, entityID)
		case ctx.IsGet():
			s.showSnapshot(ctx, entityID)
		default:
			writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) runDiagnostic(ctx *fasthttp.RequestCtx, entityID string) {
	report, err := s.engine.Run(s.base, entityID)
	status := statusFor(err)
	s.logger.Info("diagnostic request",
		zap.String("entity_id", usecase.NormalizeEntityID(entityID)),
		zap.Int("status", status),
		zap.Error(err))
	if report == nil {
		msg := "diagnostic produced no report"
		if err != nil {
			msg = err.Error()
		} else {
			status = fasthttp.StatusInternalServerError
		}
		writeError(ctx, status, msg)
		return
	}
	writeJSON(ctx, status, report)
}

func (s *Server) showSnapshot(ctx *fasthttp.RequestCtx, entityID string) {
	if !usecase.ValidEntityID(entityID) {
		writeError(ctx, fasthttp.StatusBadRequest, domain.ErrInvalidEntityID.Error())
		return
	}
	snapshot := s.engine.Current(entityID)
	if snapshot == nil {
		var err error
		snapshot, err = s.engine.Warm(s.base, entityID)
		if err != nil {
			s.logger.Warn("could not load snapshot", zap.Error(err))
			writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
	}
	if snapshot == nil {
		writeError(ctx, fasthttp.StatusNotFound, domain.ErrSnapshotNotFound.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, snapshot)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return fasthttp.StatusOK
	case errors.Is(err, domain.ErrInvalidEntityID):
		return fasthttp.StatusBadRequest
	case usecase.IsUpstreamFailure(err):
		return fasthttp.StatusBadGateway
	case errors.Is(err, domain.ErrUnrecognizedShape):
		return fasthttp.StatusUnprocessableEntity
	default:
		return fasthttp.StatusInternalServerError
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "could not encode response")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	body, _ := json.Marshal(ErrorResponse{Status: status, Message: message})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
