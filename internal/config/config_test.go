package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	testChdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Privacy.DefaultBackend != "pattern" {
		t.Errorf("unexpected backend %s", cfg.Privacy.DefaultBackend)
	}
	if cfg.Ollama.Model != "llama3.1:8b" || cfg.Ollama.InferenceTimeout != 120*time.Second {
		t.Errorf("unexpected ollama defaults %+v", cfg.Ollama)
	}
	if cfg.Completion.MaxTokens != 300 || cfg.Completion.Model != "gpt-4o-mini" {
		t.Errorf("unexpected completion defaults %+v", cfg.Completion)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
privacy:
  default_backend: model
  pattern:
    detectors: [ssn, email]
    skip_phone_after_ssn: true
ollama:
  model: mistral:7b
  inference_timeout: 30s
cache:
  enabled: true
  backend: redis
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Privacy.DefaultBackend != "model" || !cfg.Privacy.Pattern.SkipPhoneAfterSSN {
		t.Errorf("unexpected privacy config %+v", cfg.Privacy)
	}
	if len(cfg.Privacy.Pattern.Detectors) != 2 {
		t.Errorf("unexpected detectors %v", cfg.Privacy.Pattern.Detectors)
	}
	if cfg.Ollama.Model != "mistral:7b" || cfg.Ollama.InferenceTimeout != 30*time.Second {
		t.Errorf("unexpected ollama config %+v", cfg.Ollama)
	}
	// Unset keys keep their defaults
	if cfg.Ollama.URL != "http://localhost:11434" || cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("defaults lost: %s %s", cfg.Ollama.URL, cfg.Cache.TTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("GATEWAY_SERVER_PORT", "7070")
	t.Setenv("OLLAMA_MODEL", "phi3:mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GATEWAY_PRIVACY_PATTERN_DETECTORS", "ssn,phone")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Ollama.Model != "phi3:mini" {
		t.Errorf("legacy OLLAMA_MODEL not applied: %s", cfg.Ollama.Model)
	}
	if cfg.Completion.APIKey != "sk-test" {
		t.Error("legacy OPENAI_API_KEY not applied")
	}
	if len(cfg.Privacy.Pattern.Detectors) != 2 || cfg.Privacy.Pattern.Detectors[1] != "phone" {
		t.Errorf("unexpected detectors %v", cfg.Privacy.Pattern.Detectors)
	}

	t.Setenv("GATEWAY_OLLAMA_MODEL", "qwen2:7b")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.Model != "qwen2:7b" {
		t.Errorf("prefixed variable should win over the legacy name, got %s", cfg.Ollama.Model)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OLLAMA_URL=http://ollama:11434\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("OLLAMA_URL") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.URL != "http://ollama:11434" {
		t.Errorf(".env value not applied: %s", cfg.Ollama.URL)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "privacy:\n  default_backend: magic\n")
		if _, err := Load(path); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"backend", func(c *Config) { c.Privacy.DefaultBackend = "regex" }},
		{"detectors", func(c *Config) { c.Privacy.Pattern.Detectors = nil }},
		{"ollama model", func(c *Config) { c.Ollama.Model = "" }},
		{"ollama timeout", func(c *Config) { c.Ollama.ProbeTimeout = 0 }},
		{"cache backend", func(c *Config) { c.Cache.Backend = "disk" }},
		{"rate limit", func(c *Config) { c.Security.RateLimit.RequestsPerMin = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	if err := validateConfig(GetDefaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
