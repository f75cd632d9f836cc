package gateway

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/cache"
	"github.com/raaihank/llm-privacy-gateway/internal/completion"
	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/metrics"
	"github.com/raaihank/llm-privacy-gateway/internal/ollama"
	"github.com/raaihank/llm-privacy-gateway/internal/privacy"
)

// Components is a gateway built from configuration along with the parts
// callers may need to reconfigure or release.
type Components struct {
	Gateway *Gateway
	Pattern *privacy.PatternMasker
	Model   *privacy.ModelMasker
	Cache   cache.Store
}

// Build wires the maskers, detection cache and completion client described
// by cfg. Metrics and events may be nil.
func Build(cfg *config.Config, log *logger.Logger, m *metrics.GatewayMetrics, events EventSink) (*Components, error) {
	pattern, err := privacy.NewPatternMasker(cfg.Privacy.Pattern, log.WithComponent("privacy"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern masker: %w", err)
	}

	store, err := cache.New(cfg.Cache, log.WithComponent("cache").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection cache: %w", err)
	}

	client := ollama.New(ollama.Options{
		BaseURL:          cfg.Ollama.URL,
		Model:            cfg.Ollama.Model,
		Temperature:      cfg.Ollama.Temperature,
		NumPredict:       cfg.Ollama.NumPredict,
		ProbeTimeout:     cfg.Ollama.ProbeTimeout,
		InferenceTimeout: cfg.Ollama.InferenceTimeout,
	})

	var modelOpts []privacy.ModelOption
	if store != nil {
		modelOpts = append(modelOpts, privacy.WithDetectionStore(store))
	}
	model := privacy.NewModelMasker(client, log.WithComponent("privacy"), modelOpts...)

	opts := Options{
		Pattern:        pattern,
		Model:          model,
		Completer:      completion.New(cfg.Completion, log),
		Metrics:        m,
		Logger:         log,
		DefaultBackend: cfg.Privacy.DefaultBackend,
	}
	if events != nil {
		opts.Events = events
	}

	log.Debug("Gateway components ready",
		zap.String("ollama_url", client.BaseURL()),
		zap.String("ollama_model", client.Model()),
		zap.Bool("detection_cache", store != nil),
		zap.Int("active_rules", len(pattern.GetEnabledRules())),
	)

	return &Components{
		Gateway: New(opts),
		Pattern: pattern,
		Model:   model,
		Cache:   store,
	}, nil
}

// Close releases the detection cache
func (c *Components) Close() error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Close()
}
