package privacy

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
)

func newTestPatternMasker(t *testing.T, cfg config.PatternConfig) *PatternMasker {
	t.Helper()
	if cfg.Detectors == nil {
		cfg.Detectors = []string{"all"}
	}
	m, err := NewPatternMasker(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create pattern masker: %v", err)
	}
	return m
}

func TestPatternMask(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{})

	tests := []struct {
		name   string
		input  string
		masked string
		values map[string]string
	}{
		{
			name:   "card and ssn keep separate categories",
			input:  "card 4532-1234-5678-9012 and ssn 123-45-6789",
			masked: "card [CREDIT_CARD_1] and ssn [SSN_1]",
			values: map[string]string{"[CREDIT_CARD_1]": "4532-1234-5678-9012", "[SSN_1]": "123-45-6789"},
		},
		{
			name:   "ssn is not re-read as phone",
			input:  "SSN 123-45-6789, call 555-123-4567",
			masked: "SSN [SSN_1], call [PHONE_1]",
			values: map[string]string{"[SSN_1]": "123-45-6789", "[PHONE_1]": "555-123-4567"},
		},
		{
			name:   "name after lead-in",
			input:  "my name is John Smith",
			masked: "my name is [NAME_1]",
			values: map[string]string{"[NAME_1]": "John Smith"},
		},
		{
			name:   "contraction lead-in",
			input:  "Hi, I'm Alice and I like tea",
			masked: "Hi, I'm [NAME_1] and I like tea",
			values: map[string]string{"[NAME_1]": "Alice"},
		},
		{
			name:   "label lead-in",
			input:  "Name: Jane Doe",
			masked: "Name: [NAME_1]",
			values: map[string]string{"[NAME_1]": "Jane Doe"},
		},
		{
			name:   "email",
			input:  "write to john.doe+tag@example.co.uk today",
			masked: "write to [EMAIL_1] today",
			values: map[string]string{"[EMAIL_1]": "john.doe+tag@example.co.uk"},
		},
		{
			name:   "parenthesized area code",
			input:  "call (555) 123-4567",
			masked: "call [PHONE_1]",
			values: map[string]string{"[PHONE_1]": "(555) 123-4567"},
		},
		{
			name:   "undelimited card",
			input:  "pay with 4532123456789012",
			masked: "pay with [CREDIT_CARD_1]",
			values: map[string]string{"[CREDIT_CARD_1]": "4532123456789012"},
		},
		{
			name:   "numbering follows scan order",
			input:  "emails a@x.com, b@y.com",
			masked: "emails [EMAIL_1], [EMAIL_2]",
			values: map[string]string{"[EMAIL_1]": "a@x.com", "[EMAIL_2]": "b@y.com"},
		},
		{
			name:   "no pii",
			input:  "What's the weather like in Paris?",
			masked: "What's the weather like in Paris?",
			values: map[string]string{},
		},
		{
			name:   "lowercase words are not names",
			input:  "I am going home, Tim said",
			masked: "I am going home, Tim said",
			values: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked, mapping := m.Mask(tt.input)
			if masked != tt.masked {
				t.Errorf("Mask(%q) = %q, want %q", tt.input, masked, tt.masked)
			}
			if mapping.Len() != len(tt.values) {
				t.Errorf("expected %d mapping entries, got %d: %v", len(tt.values), mapping.Len(), mapping.Map())
			}
			for ph, want := range tt.values {
				if got, ok := mapping.Get(ph); !ok || got != want {
					t.Errorf("mapping[%s] = %q, want %q", ph, got, want)
				}
			}
			if restored := m.Unmask(masked, mapping); restored != tt.input {
				t.Errorf("round trip failed: %q != %q", restored, tt.input)
			}
		})
	}
}

func TestPatternMaskEmptyInput(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{})
	masked, mapping := m.Mask("")
	if masked != "" {
		t.Errorf("expected empty output, got %q", masked)
	}
	if mapping == nil || mapping.Len() != 0 {
		t.Errorf("expected empty mapping, got %v", mapping)
	}
}

func TestPatternMaskFreshNumbering(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{})

	for i := 0; i < 3; i++ {
		masked, _ := m.Mask("mail me at a@x.com")
		if masked != "mail me at [EMAIL_1]" {
			t.Fatalf("call %d: counters leaked between calls: %q", i, masked)
		}
	}
}

func TestPatternMaskSkipPhoneAfterSSN(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{SkipPhoneAfterSSN: true})

	masked, mapping := m.Mask("SSN 123-45-6789, call 555-123-4567")
	if masked != "SSN [SSN_1], call 555-123-4567" {
		t.Errorf("unexpected masked text %q", masked)
	}
	if mapping.Len() != 1 {
		t.Errorf("expected only the SSN in the mapping, got %v", mapping.Map())
	}

	masked, _ = m.Mask("call 555-123-4567 about SSN 123-45-6789")
	if masked != "call [PHONE_1] about SSN [SSN_1]" {
		t.Errorf("phone before the SSN should still be masked, got %q", masked)
	}
}

func TestPatternMaskDetectors(t *testing.T) {
	t.Run("category subset", func(t *testing.T) {
		m := newTestPatternMasker(t, config.PatternConfig{Detectors: []string{"email"}})
		masked, _ := m.Mask("ssn 123-45-6789 mail a@x.com")
		if masked != "ssn 123-45-6789 mail [EMAIL_1]" {
			t.Errorf("unexpected masked text %q", masked)
		}
	})

	t.Run("name category enables every lead-in", func(t *testing.T) {
		m := newTestPatternMasker(t, config.PatternConfig{Detectors: []string{"names"}})
		if got := len(m.GetEnabledRules()); got != 4 {
			t.Errorf("expected 4 name rules, got %d", got)
		}
	})

	t.Run("unknown detector", func(t *testing.T) {
		if _, err := NewPatternMasker(config.PatternConfig{Detectors: []string{"passport"}}, logger.NewNop()); err == nil {
			t.Error("expected error for unknown detector")
		}
	})

	t.Run("toggle rule", func(t *testing.T) {
		m := newTestPatternMasker(t, config.PatternConfig{})
		if err := m.DisableRule("phone"); err != nil {
			t.Fatalf("DisableRule: %v", err)
		}
		if masked, _ := m.Mask("call 555-123-4567"); masked != "call 555-123-4567" {
			t.Errorf("disabled rule still applied: %q", masked)
		}
		if err := m.EnableRule("phone"); err != nil {
			t.Fatalf("EnableRule: %v", err)
		}
		if masked, _ := m.Mask("call 555-123-4567"); masked != "call [PHONE_1]" {
			t.Errorf("enabled rule not applied: %q", masked)
		}
		if err := m.EnableRule("passport"); err == nil {
			t.Error("expected error for unknown rule")
		}
	})

	t.Run("reconfigure", func(t *testing.T) {
		m := newTestPatternMasker(t, config.PatternConfig{})
		if err := m.Reconfigure(config.PatternConfig{Detectors: []string{"ssn"}}); err != nil {
			t.Fatalf("Reconfigure: %v", err)
		}
		if got := m.GetEnabledRules(); len(got) != 1 || got[0] != "ssn" {
			t.Errorf("unexpected enabled rules %v", got)
		}
		if err := m.Reconfigure(config.PatternConfig{Detectors: []string{"bogus"}}); err == nil {
			t.Error("expected error for bad detector list")
		}
		if got := m.GetEnabledRules(); len(got) != 1 {
			t.Errorf("failed reconfigure must keep the previous rules, got %v", got)
		}
	})
}

func TestPatternDetectAndMask(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{})
	res, err := m.DetectAndMask(context.Background(), "SSN 123-45-6789, call 555-123-4567, a@x.com")
	if err != nil {
		t.Fatalf("DetectAndMask: %v", err)
	}
	if got := res.Detected[CategorySSN]; len(got) != 1 || got[0] != "123-45-6789" {
		t.Errorf("unexpected ssn detection %v", got)
	}
	if got := res.Detected[CategoryPhone]; len(got) != 1 || got[0] != "555-123-4567" {
		t.Errorf("unexpected phone detection %v", got)
	}
	if len(res.Detected) != len(Categories) {
		t.Errorf("every category should be present, got %d keys", len(res.Detected))
	}
}

func TestPatternMaskConcurrent(t *testing.T) {
	m := newTestPatternMasker(t, config.PatternConfig{})

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("user%d@example.com called 555-123-%04d", i, i)
			masked, mapping := m.Mask(input)
			if masked != "[EMAIL_1] called [PHONE_1]" {
				errs <- fmt.Errorf("goroutine %d: masked %q", i, masked)
				return
			}
			if restored := m.Unmask(masked, mapping); restored != input {
				errs <- fmt.Errorf("goroutine %d: restored %q", i, restored)
			}
		}(i)
	}

	// Toggle rules while masking runs
	_ = m.DisableRule("name_label")
	_ = m.EnableRule("name_label")

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
