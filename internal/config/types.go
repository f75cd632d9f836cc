package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Privacy    PrivacyConfig    `yaml:"privacy" mapstructure:"privacy"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Security   SecurityConfig   `yaml:"security" mapstructure:"security"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// PrivacyConfig contains masking configuration
type PrivacyConfig struct {
	// DefaultBackend is "pattern" or "model"
	DefaultBackend string        `yaml:"default_backend" mapstructure:"default_backend"`
	Pattern        PatternConfig `yaml:"pattern" mapstructure:"pattern"`
}

// PatternConfig configures the regex masker
type PatternConfig struct {
	Detectors         []string `yaml:"detectors" mapstructure:"detectors"`
	SkipPhoneAfterSSN bool     `yaml:"skip_phone_after_ssn" mapstructure:"skip_phone_after_ssn"`
}

// OllamaConfig configures the local model used for detection
type OllamaConfig struct {
	URL              string        `yaml:"url" mapstructure:"url"`
	Model            string        `yaml:"model" mapstructure:"model"`
	Temperature      float64       `yaml:"temperature" mapstructure:"temperature"`
	NumPredict       int           `yaml:"num_predict" mapstructure:"num_predict"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	InferenceTimeout time.Duration `yaml:"inference_timeout" mapstructure:"inference_timeout"`
}

// CompletionConfig configures the external text-completion service
type CompletionConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig configures the detection result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" mapstructure:"backend"` // memory or redis
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxItems  int           `yaml:"max_items" mapstructure:"max_items"`
}

// SecurityConfig contains request guardrails
type SecurityConfig struct {
	RateLimit struct {
		Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int  `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains dashboard event stream configuration
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Path           string        `yaml:"path" mapstructure:"path"`
	Username       string        `yaml:"username" mapstructure:"username"`
	Password       string        `yaml:"password" mapstructure:"password"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events         struct {
		BroadcastDetections  bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second, // model detection can take up to two minutes
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Privacy: PrivacyConfig{
			DefaultBackend: "pattern",
			Pattern: PatternConfig{
				Detectors:         []string{"all"},
				SkipPhoneAfterSSN: false,
			},
		},
		Ollama: OllamaConfig{
			URL:              "http://localhost:11434",
			Model:            "llama3.1:8b",
			Temperature:      0.1,
			NumPredict:       2000,
			ProbeTimeout:     5 * time.Second,
			InferenceTimeout: 120 * time.Second,
		},
		Completion: CompletionConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   300,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Backend:   "memory",
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "privacy-gateway:detect:",
			TTL:       10 * time.Minute,
			MaxItems:  1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxConnections: 100,
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}

	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.RequestsPerMin = 120
	cfg.Security.RateLimit.Burst = 20

	cfg.Logging.File.Path = "logs/gateway.log"

	cfg.WebSocket.Events.BroadcastDetections = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
