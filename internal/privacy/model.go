package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/ollama"
	"go.uber.org/zap"
)

const detectionSystemPrompt = `You are a PII (Personally Identifiable Information) detector.
Your job is to identify sensitive data in text and return it in a structured JSON format.

Detect these types of PII:
- credit_card: Credit/debit card numbers
- ssn: Social Security Numbers
- email: Email addresses
- phone: Phone numbers
- name: Person names (full names or first+last names)
- address: Physical addresses
- date_of_birth: Birth dates
- account_number: Bank account or other account numbers

Return ONLY valid JSON in this exact format (no other text):
{
    "credit_card": ["list of detected credit card numbers"],
    "ssn": ["list of detected SSN"],
    "email": ["list of detected emails"],
    "phone": ["list of detected phone numbers"],
    "name": ["list of detected person names"],
    "address": ["list of detected addresses"],
    "date_of_birth": ["list of detected birth dates"],
    "account_number": ["list of detected account numbers"]
}

If no PII is found for a category, use an empty list [].
Copy every value exactly as it appears in the text.
Only include actual PII found in the text, not placeholders or examples.`

const detectionPromptTemplate = `Analyze this text and identify all PII (Personally Identifiable Information).
Return ONLY the JSON result, no explanation.

Text to analyze:
---
%s
---

JSON result:`

// ModelBackend is the text-generation endpoint used for detection
type ModelBackend interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Models(ctx context.Context) ([]string, error)
	Model() string
}

// DetectionStore caches encoded detection results by key
type DetectionStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// ModelMasker asks a language model for a PII inventory and then applies
// the shared substitution engine. It is safe for concurrent use.
type ModelMasker struct {
	backend ModelBackend
	store   DetectionStore
	logger  *logger.Logger
}

// ModelOption configures a ModelMasker
type ModelOption func(*ModelMasker)

// WithDetectionStore enables caching of detection results
func WithDetectionStore(store DetectionStore) ModelOption {
	return func(m *ModelMasker) {
		m.store = store
	}
}

// NewModelMasker creates a model-assisted masker
func NewModelMasker(backend ModelBackend, log *logger.Logger, opts ...ModelOption) *ModelMasker {
	m := &ModelMasker{
		backend: backend,
		logger:  log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name identifies the backend
func (m *ModelMasker) Name() string { return "model" }

// Model returns the configured model identifier
func (m *ModelMasker) Model() string { return m.backend.Model() }

// Detect issues one inference call and decodes the reply. A reply that
// cannot be decoded yields an all-empty result; only transport failures
// are returned, wrapped in ErrBackendUnreachable.
func (m *ModelMasker) Detect(ctx context.Context, text string) (DetectionResult, error) {
	key := m.cacheKey(text)
	if cached, ok := m.lookup(ctx, key); ok {
		return cached, nil
	}

	start := time.Now()
	reply, err := m.backend.Generate(ctx, detectionSystemPrompt, fmt.Sprintf(detectionPromptTemplate, text))
	if err != nil {
		if errors.Is(err, ollama.ErrMalformedResponse) {
			m.logger.Warn("Detection reply envelope malformed, treating as no PII", zap.Error(err))
			return NewDetectionResult(), nil
		}
		m.logger.Error("Detection backend call failed",
			zap.String("model", m.backend.Model()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
	}

	detected, tier := DecodeDetection(reply)
	m.logger.Debug("Detection reply decoded",
		zap.String("tier", tier.String()),
		zap.Int("values", detected.Total()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if tier != TierEmpty {
		m.remember(ctx, key, detected)
	}
	return detected, nil
}

// MaskFromDetection substitutes placeholders for a pre-computed detection
func (m *ModelMasker) MaskFromDetection(text string, detected DetectionResult) (string, *Mapping) {
	return Substitute(text, detected)
}

// DetectAndMask runs Detect once and masks with its result
func (m *ModelMasker) DetectAndMask(ctx context.Context, text string) (*Result, error) {
	detected, err := m.Detect(ctx, text)
	if err != nil {
		return nil, err
	}
	masked, mapping := m.MaskFromDetection(text, detected)
	return &Result{
		Detected:   detected,
		MaskedText: masked,
		Mapping:    mapping,
	}, nil
}

// Unmask restores the values recorded in mapping
func (m *ModelMasker) Unmask(text string, mapping *Mapping) string {
	return Unmask(text, mapping)
}

// Status probes the backend. Any failure reads as unavailable.
func (m *ModelMasker) Status(ctx context.Context) Status {
	models, err := m.backend.Models(ctx)
	if err != nil {
		m.logger.Debug("Model backend probe failed", zap.Error(err))
		return Status{}
	}

	status := Status{BackendReachable: true}
	want := m.backend.Model()
	for _, name := range models {
		if strings.HasPrefix(name, want) {
			status.ModelAvailable = true
			break
		}
	}
	return status
}

func (m *ModelMasker) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(m.backend.Model() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (m *ModelMasker) lookup(ctx context.Context, key string) (DetectionResult, bool) {
	if m.store == nil {
		return nil, false
	}
	raw, ok := m.store.Get(ctx, key)
	if !ok {
		return nil, false
	}
	detected, tier := DecodeDetection(string(raw))
	if tier == TierEmpty {
		return nil, false
	}
	m.logger.Debug("Detection cache hit", zap.Int("values", detected.Total()))
	return detected, true
}

func (m *ModelMasker) remember(ctx context.Context, key string, detected DetectionResult) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(detected)
	if err != nil {
		return
	}
	m.store.Set(ctx, key, raw)
}
