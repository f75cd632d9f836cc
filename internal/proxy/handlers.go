package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/gateway"
	"github.com/raaihank/llm-privacy-gateway/internal/privacy"
)

type maskRequest struct {
	Text    string `json:"text"`
	Backend string `json:"backend,omitempty"`
}

type unmaskRequest struct {
	Text    string           `json:"text"`
	Mapping *privacy.Mapping `json:"mapping"`
}

type unmaskResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.gateway.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":             "llm-privacy-gateway",
		"version":          Version,
		"default_backend":  s.config.Privacy.DefaultBackend,
		"detectors":        s.config.Privacy.Pattern.Detectors,
		"uptime":           stats.Uptime,
		"total_requests":   stats.TotalRequests,
		"total_detections": stats.TotalDetections,
	})
}

// handleStatus probes the model backend and the completion service
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Status(r.Context()))
}

func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req maskRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.gateway.Mask(r.Context(), req.Text, req.Backend)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUnmask(w http.ResponseWriter, r *http.Request) {
	var req unmaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, unmaskResponse{Text: s.gateway.Unmask(req.Text, req.Mapping)})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req maskRequest
	if !s.decode(w, r, &req) {
		return
	}
	backend := req.Backend
	if backend == "" {
		backend = gateway.BackendModel
	}

	detected, err := s.gateway.Detect(r.Context(), req.Text, backend)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detected)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.gateway.Process(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body, answering 400 (or 413) itself on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{
			Error:     "invalid request body: " + err.Error(),
			RequestID: gateway.RequestIDFromContext(r.Context()),
		})
		return false
	}
	return true
}

// writeError maps gateway errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gateway.ErrUnknownBackend):
		status = http.StatusBadRequest
	case errors.Is(err, privacy.ErrBackendUnreachable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	requestID := gateway.RequestIDFromContext(r.Context())
	s.logger.WithRequestID(requestID).Warn("Request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status_code", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
