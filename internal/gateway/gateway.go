// Package gateway runs the mask, complete and unmask round trip shared by
// the HTTP server and the CLI.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/completion"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/metrics"
	"github.com/raaihank/llm-privacy-gateway/internal/privacy"
	"github.com/raaihank/llm-privacy-gateway/internal/websocket"
)

// Options wires the gateway's collaborators. Metrics and Events may be nil.
type Options struct {
	Pattern        *privacy.PatternMasker
	Model          ModelDetector
	Completer      completion.Completer
	Metrics        *metrics.GatewayMetrics
	Events         EventSink
	Logger         *logger.Logger
	DefaultBackend string
}

// Gateway orchestrates masking backends and the completion service
type Gateway struct {
	pattern        *privacy.PatternMasker
	model          ModelDetector
	completer      completion.Completer
	metrics        *metrics.GatewayMetrics
	events         EventSink
	logger         *logger.Logger
	defaultBackend string
	started        time.Time

	requests   atomic.Int64
	detections atomic.Int64
}

// New creates a gateway
func New(opts Options) *Gateway {
	backend := opts.DefaultBackend
	if backend == "" {
		backend = BackendPattern
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Gateway{
		pattern:        opts.Pattern,
		model:          opts.Model,
		completer:      opts.Completer,
		metrics:        opts.Metrics,
		events:         opts.Events,
		logger:         log.WithComponent("gateway"),
		defaultBackend: backend,
		started:        time.Now(),
	}
}

// Backend resolves a backend name; empty selects the configured default
func (g *Gateway) Backend(name string) (privacy.Backend, error) {
	if name == "" {
		name = g.defaultBackend
	}
	switch name {
	case BackendPattern:
		if g.pattern != nil {
			return g.pattern, nil
		}
	case BackendModel:
		if g.model != nil {
			return g.model, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return nil, fmt.Errorf("%w: %q is not configured", ErrUnknownBackend, name)
}

// Mask detects and masks text with the named backend
func (g *Gateway) Mask(ctx context.Context, text, backendName string) (*privacy.Result, error) {
	backend, err := g.Backend(backendName)
	if err != nil {
		return nil, err
	}
	g.requests.Add(1)

	start := time.Now()
	res, err := backend.DetectAndMask(ctx, text)
	elapsed := time.Since(start)

	log := g.logger.WithRequestID(RequestIDFromContext(ctx))
	if err != nil {
		g.metrics.ObserveMask(backend.Name(), maskStatus(err), elapsed.Seconds())
		log.Warn("Masking failed",
			zap.String("backend", backend.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	g.metrics.ObserveMask(backend.Name(), "ok", elapsed.Seconds())
	g.record(ctx, "mask", backend.Name(), res.Detected, elapsed)

	log.Info("Text masked",
		zap.String("backend", backend.Name()),
		zap.Int("placeholders", res.Mapping.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// Unmask restores original values
func (g *Gateway) Unmask(text string, mapping *privacy.Mapping) string {
	g.metrics.ObserveUnmask()
	return privacy.Unmask(text, mapping)
}

// Detect returns the detection result without masking. The model backend
// is asked directly; the pattern backend reports what it would mask.
func (g *Gateway) Detect(ctx context.Context, text, backendName string) (privacy.DetectionResult, error) {
	backend, err := g.Backend(backendName)
	if err != nil {
		return nil, err
	}
	g.requests.Add(1)

	start := time.Now()
	var detected privacy.DetectionResult
	if backend.Name() == BackendModel {
		detected, err = g.model.Detect(ctx, text)
	} else {
		var res *privacy.Result
		if res, err = backend.DetectAndMask(ctx, text); err == nil {
			detected = res.Detected
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		g.metrics.ObserveMask(backend.Name(), maskStatus(err), elapsed.Seconds())
		return nil, err
	}
	g.metrics.ObserveMask(backend.Name(), "ok", elapsed.Seconds())
	g.record(ctx, "detect", backend.Name(), detected, elapsed)
	return detected, nil
}

// Process masks the input, optionally sends it to the completion service
// and unmasks the reply. Backend failures are returned; completion
// failures are reported in Response.Error.
func (g *Gateway) Process(ctx context.Context, req Request) (*Response, error) {
	backendName := BackendPattern
	if req.UseModel {
		backendName = BackendModel
	}

	res, err := g.Mask(ctx, req.Input, backendName)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		OriginalInput: req.Input,
		DetectedPII:   detectedList(res.Detected),
		MaskedInput:   res.MaskedText,
		Mapping:       res.Mapping,
	}
	if resp.Mapping == nil {
		resp.Mapping = privacy.NewMapping()
	}

	if !req.callLLM() {
		return resp, nil
	}

	if resp.Mapping.Len() == 0 {
		resp.AIResponseMasked = NoPIIReply
		resp.AIResponseUnmasked = NoPIIReply
		return resp, nil
	}

	if g.completer == nil || !g.completer.Configured() {
		g.metrics.ObserveCompletion("not_configured")
		resp.Error = errorString(completion.ErrNotConfigured)
		return resp, nil
	}

	reply, err := g.completer.Complete(ctx, resp.MaskedInput)
	if err != nil {
		g.metrics.ObserveCompletion("error")
		g.logger.WithRequestID(RequestIDFromContext(ctx)).Warn("Completion failed", zap.Error(err))
		resp.Error = errorString(err)
		return resp, nil
	}
	g.metrics.ObserveCompletion("ok")

	resp.AIResponseMasked = reply
	resp.AIResponseUnmasked = g.Unmask(reply, resp.Mapping)
	return resp, nil
}

// Status probes the model backend and reports completer availability.
// It never fails; an unreachable backend reads as false.
func (g *Gateway) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		Model:          "unknown",
		DefaultBackend: g.defaultBackend,
	}
	if g.model != nil {
		st := g.model.Status(ctx)
		report.Model = g.model.Model()
		report.BackendReachable = st.BackendReachable
		report.ModelAvailable = st.ModelAvailable
	}
	if g.completer != nil {
		report.CompletionConfigured = g.completer.Configured()
	}
	if g.pattern != nil {
		report.ActiveRules = len(g.pattern.GetEnabledRules())
	}
	return report
}

// Stats returns lifetime counters
func (g *Gateway) Stats() Stats {
	return Stats{
		Uptime:          time.Since(g.started).Round(time.Second).String(),
		TotalRequests:   g.requests.Load(),
		TotalDetections: g.detections.Load(),
	}
}

// record publishes counts only; values stay in the response
func (g *Gateway) record(ctx context.Context, op, backend string, detected privacy.DetectionResult, elapsed time.Duration) {
	total := detected.Total()
	g.detections.Add(int64(total))

	counts := make(map[string]int)
	for c, n := range detected.Counts() {
		counts[string(c)] = n
	}
	g.metrics.ObservePlaceholders(counts)

	if g.events == nil {
		return
	}
	g.events.PublishDetection(websocket.DetectionEvent{
		RequestID:     RequestIDFromContext(ctx),
		Operation:     op,
		Backend:       backend,
		Counts:        counts,
		TotalFindings: total,
		ProcessingMS:  float64(elapsed.Microseconds()) / 1000,
	})
}

func maskStatus(err error) string {
	switch {
	case errors.Is(err, privacy.ErrBackendUnreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func errorString(err error) *string {
	s := err.Error()
	return &s
}
