// Package httpapi exposes the scanner's control surface over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/business/scanner/app"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const maxBody = 64 << 10

// Control is what the API drives.
type Control interface {
	GetStatus() app.Status
	Scan(ctx context.Context) (app.CycleReport, error)
	UpdateConfig(ctx context.Context, u risk.Update) (risk.Configuration, error)
	Config() risk.Configuration
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool)
}

// ScanResponse is the POST /scan body.
type ScanResponse struct {
	Candidates []detection.Candidate `json:"candidates"`
	Report     app.CycleReport       `json:"report"`
}

// ConfigResponse carries the configuration in effect after PATCH /config,
// the prior one when the update was rejected.
type ConfigResponse struct {
	Config risk.Configuration `json:"config"`
	Error  any                `json:"error,omitempty"`
}

// Server serves the control API.
type Server struct {
	port    int
	control Control
	log     logger.LoggerInterface
	server  *http.Server
}

func NewServer(port int, control Control, log logger.LoggerInterface) *Server {
	return &Server{port: port, control: control, log: log}
}

// Handler exposes the routes without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("PATCH /config", s.handlePatchConfig)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /pause", s.handlePause(true))
	mux.HandleFunc("POST /resume", s.handlePause(false))
	return otelhttp.NewHandler(mux, "control-api")
}

// Start listens in the background.
func (s *Server) Start(ctx context.Context) {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn(ctx, "control api stopped", "port", s.port, "error", err)
		}
	}()
	s.log.Info(ctx, "control api listening", "port", s.port)
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.control.GetStatus())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	report, err := s.control.Scan(r.Context())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{Candidates: report.Candidates, Report: report})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{Config: s.control.Config()})
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var u risk.Update
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		s.writeError(r.Context(), w, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("malformed risk config update")))
		return
	}

	cfg, err := s.control.UpdateConfig(r.Context(), u)
	if err != nil {
		var body any = err.Error()
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			body = appErr.Body()
		}
		writeJSON(w, apperror.StatusOf(err), ConfigResponse{Config: cfg, Error: body})
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{Config: cfg})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.control.GetStatus().Running})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Stop(r.Context()); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.control.GetStatus().Running})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.control.SetPaused(r.Context(), paused)
		writeJSON(w, http.StatusOK, map[string]bool{"paused": s.control.GetStatus().Paused})
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := apperror.Wrap(err, apperror.CodeInternalError, "")
	if appErr.StatusCode >= http.StatusInternalServerError {
		s.log.Error(ctx, "control api request failed", "code", appErr.Code, "error", err)
	}
	writeJSON(w, appErr.StatusCode, appErr.ToResponse())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
