// Package localapi serves the agent's enforcement gate over loopback
// HTTP for processes that cannot link the Go SDK.
package localapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Agent is the part of session.Agent the API exposes.
type Agent interface {
	Enforce(actionType string, params map[string]float64) (enforce.Decision, error)
	Check(params map[string]float64) ([]model.Check, []model.Violation)
	Boundaries() []boundary.Boundary
	Status() session.Status
}

// EnforceRequest is the body of POST /v1/enforce.
// A null parameter value is refused rather than read as zero.
type EnforceRequest struct {
	ActionType string              `json:"action_type"`
	Parameters map[string]*float64 `json:"parameters"`
}

// EnforceResponse is returned by POST /v1/enforce.
type EnforceResponse struct {
	Allowed    bool              `json:"allowed"`
	ActionID   string            `json:"action_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Violations []model.Violation `json:"violations"`
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Parameters map[string]*float64 `json:"parameters"`
}

// CheckResponse is returned by POST /v1/check.
type CheckResponse struct {
	Allowed    bool              `json:"allowed"`
	Checks     []model.Check     `json:"checks"`
	Violations []model.Violation `json:"violations"`
}

// Server is the loopback enforcement API.
type Server struct {
	agent  Agent
	logger *slog.Logger
	srv    *http.Server
}

// New creates a Server bound to addr.
func New(addr string, agent Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{agent: agent, logger: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/enforce", s.handleEnforce)
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("GET /v1/boundaries", s.handleBoundaries)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("localapi: listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("local enforcement API listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "action_type is required")
		return
	}
	params, err := readings(req.Parameters)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.agent.Enforce(req.ActionType, params)
	if errors.Is(err, enforce.ErrQuarantined) {
		writeJSON(w, http.StatusServiceUnavailable, EnforceResponse{
			Reason:     err.Error(),
			Violations: []model.Violation{},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := EnforceResponse{Allowed: d.Allowed, ActionID: d.ActionID, Violations: d.Violations}
	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusConflict
		resp.Reason = d.Violations[0].Message
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}
	params, err := readings(req.Parameters)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	checks, violations := s.agent.Check(params)
	writeJSON(w, http.StatusOK, CheckResponse{
		Allowed:    len(violations) == 0,
		Checks:     checks,
		Violations: violations,
	})
}

func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"boundaries": s.agent.Boundaries()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// readings dereferences submitted values, refusing nulls.
func readings(in map[string]*float64) (map[string]float64, error) {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if v == nil {
			return nil, fmt.Errorf("parameter %s is null", k)
		}
		out[k] = *v
	}
	return out, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
