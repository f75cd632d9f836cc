package privacy

import (
	"context"
	"fmt"
	"sync"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"go.uber.org/zap"
)

// PatternMasker detects PII with an ordered list of regular expressions and
// replaces matches with placeholders. It keeps no per-call state and is
// safe for concurrent use.
type PatternMasker struct {
	mu      sync.RWMutex
	rules   []DetectionRule
	enabled map[string]bool
	logger  *logger.Logger
}

// NewPatternMasker creates a pattern masker from the privacy configuration
func NewPatternMasker(cfg config.PatternConfig, log *logger.Logger) (*PatternMasker, error) {
	m := &PatternMasker{
		rules:   GetDefaultRules(PatternOptions{SkipPhoneAfterSSN: cfg.SkipPhoneAfterSSN}),
		enabled: make(map[string]bool),
		logger:  log,
	}

	if err := m.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Pattern masker initialized",
		zap.Int("total_rules", len(m.rules)),
		zap.Int("enabled_rules", m.countEnabledRules()),
	)

	return m, nil
}

// Name identifies the backend
func (m *PatternMasker) Name() string { return "pattern" }

// Reconfigure swaps the rule set and enabled detectors, e.g. after a config reload
func (m *PatternMasker) Reconfigure(cfg config.PatternConfig) error {
	rules := GetDefaultRules(PatternOptions{SkipPhoneAfterSSN: cfg.SkipPhoneAfterSSN})
	enabled, err := enabledRules(rules, cfg.Detectors)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.rules = rules
	m.enabled = enabled
	m.mu.Unlock()

	m.logger.Info("Pattern masker reconfigured", zap.Int("enabled_rules", m.countEnabledRules()))
	return nil
}

// configureDetectors enables rules by category name; "all" enables everything
func (m *PatternMasker) configureDetectors(detectors []string) error {
	enabled, err := enabledRules(m.rules, detectors)
	if err != nil {
		return err
	}
	m.enabled = enabled
	return nil
}

func enabledRules(rules []DetectionRule, detectors []string) (map[string]bool, error) {
	enabled := make(map[string]bool, len(rules))
	for _, rule := range rules {
		enabled[rule.Name] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range rules {
				enabled[rule.Name] = true
			}
			continue
		}

		c, ok := ParseCategory(detector)
		found := false
		for _, rule := range rules {
			if rule.Name == detector || (ok && rule.Category == c) {
				enabled[rule.Name] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return enabled, nil
}

// Mask replaces detected PII with placeholders. Each call starts a fresh
// session; the returned mapping is owned by the caller.
func (m *PatternMasker) Mask(text string) (string, *Mapping) {
	session := NewSession()
	if text == "" {
		return text, session.Mapping()
	}

	m.mu.RLock()
	rules, enabled := m.rules, m.enabled
	m.mu.RUnlock()

	masked := text
	for _, rule := range rules {
		if !enabled[rule.Name] {
			continue
		}

		var hits int
		masked, hits = rule.apply(masked, session)
		if hits > 0 {
			m.logger.Debug("PII detected and masked",
				zap.String("rule", rule.Name),
				zap.String("category", string(rule.Category)),
				zap.Int("count", hits),
			)
		}
	}

	return masked, session.Mapping()
}

// DetectAndMask masks text and reports what was found grouped by category
func (m *PatternMasker) DetectAndMask(_ context.Context, text string) (*Result, error) {
	masked, mapping := m.Mask(text)
	return &Result{
		Detected:   mapping.Detected(),
		MaskedText: masked,
		Mapping:    mapping,
	}, nil
}

// Unmask restores the values recorded in mapping
func (m *PatternMasker) Unmask(text string, mapping *Mapping) string {
	return Unmask(text, mapping)
}

// countEnabledRules returns the number of enabled detection rules
func (m *PatternMasker) countEnabledRules() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, enabled := range m.enabled {
		if enabled {
			count++
		}
	}
	return count
}

// GetEnabledRules returns the enabled rule names in scan order
func (m *PatternMasker) GetEnabledRules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, rule := range m.rules {
		if m.enabled[rule.Name] {
			names = append(names, rule.Name)
		}
	}
	return names
}

// EnableRule enables a specific detection rule
func (m *PatternMasker) EnableRule(ruleName string) error {
	if err := m.setRule(ruleName, true); err != nil {
		return err
	}
	m.logger.Info("Detection rule enabled", zap.String("rule", ruleName))
	return nil
}

// DisableRule disables a specific detection rule
func (m *PatternMasker) DisableRule(ruleName string) error {
	if err := m.setRule(ruleName, false); err != nil {
		return err
	}
	m.logger.Info("Detection rule disabled", zap.String("rule", ruleName))
	return nil
}

// setRule swaps in a new enabled set. Mask reads the set outside the lock,
// so it must never be mutated in place.
func (m *PatternMasker) setRule(ruleName string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.enabled[ruleName]; !exists {
		return fmt.Errorf("unknown rule: %s", ruleName)
	}
	next := make(map[string]bool, len(m.enabled))
	for name, v := range m.enabled {
		next[name] = v
	}
	next[ruleName] = on
	m.enabled = next
	return nil
}
