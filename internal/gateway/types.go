package gateway

import (
	"context"
	"errors"

	"github.com/raaihank/llm-privacy-gateway/internal/privacy"
	"github.com/raaihank/llm-privacy-gateway/internal/websocket"
)

// NoPIIReply is returned in place of a completion when nothing was masked
const NoPIIReply = "No PII detected - nothing to demonstrate"

// Backend names accepted by Mask and Process
const (
	BackendPattern = "pattern"
	BackendModel   = "model"
)

// ErrUnknownBackend is returned for a backend name other than pattern or model
var ErrUnknownBackend = errors.New("gateway: unknown backend")

// ModelDetector is the model-assisted masker as the gateway uses it
type ModelDetector interface {
	privacy.Backend
	Detect(ctx context.Context, text string) (privacy.DetectionResult, error)
	Status(ctx context.Context) privacy.Status
	Model() string
}

// EventSink receives detection summaries for the dashboard
type EventSink interface {
	PublishDetection(ev websocket.DetectionEvent)
}

// Request is one round trip through the gateway
type Request struct {
	Input    string `json:"input"`
	UseModel bool   `json:"use_local_llm"`
	CallLLM  *bool  `json:"call_openai,omitempty"`
}

// callLLM defaults to true when the caller leaves it unset
func (r Request) callLLM() bool {
	return r.CallLLM == nil || *r.CallLLM
}

// DetectedPII is one detected value tagged with its category label
type DetectedPII struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Response mirrors the masking demo result shape
type Response struct {
	OriginalInput      string           `json:"original_input"`
	DetectedPII        []DetectedPII    `json:"detected_pii"`
	MaskedInput        string           `json:"masked_input"`
	Mapping            *privacy.Mapping `json:"mapping"`
	AIResponseMasked   string           `json:"ai_response_masked"`
	AIResponseUnmasked string           `json:"ai_response_unmasked"`
	Error              *string          `json:"error"`
}

// StatusReport describes every collaborator the gateway depends on
type StatusReport struct {
	Model                string `json:"model_name"`
	BackendReachable     bool   `json:"ollama_running"`
	ModelAvailable       bool   `json:"model_available"`
	CompletionConfigured bool   `json:"openai_available"`
	DefaultBackend       string `json:"default_backend"`
	ActiveRules          int    `json:"active_rules"`
}

// Stats are process-lifetime counters
type Stats struct {
	Uptime          string `json:"uptime"`
	TotalRequests   int64  `json:"total_requests"`
	TotalDetections int64  `json:"total_detections"`
}

type requestIDKey struct{}

// ContextWithRequestID tags ctx with a request ID for logs and events
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// detectedList flattens a detection in category order, skipping empty values
func detectedList(detected privacy.DetectionResult) []DetectedPII {
	list := make([]DetectedPII, 0, detected.Total())
	for _, c := range privacy.Categories {
		for _, v := range detected[c] {
			if v == "" {
				continue
			}
			list = append(list, DetectedPII{Type: c.Label(), Value: v})
		}
	}
	return list
}
