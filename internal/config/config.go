package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. GATEWAY_SERVER_PORT
const EnvPrefix = "GATEWAY"

// envKeys lists the settings that can be overridden from the environment
var envKeys = []string{
	"server.port",
	"server.read_timeout",
	"server.write_timeout",
	"server.idle_timeout",
	"server.max_body_bytes",
	"privacy.default_backend",
	"privacy.pattern.detectors",
	"privacy.pattern.skip_phone_after_ssn",
	"ollama.url",
	"ollama.model",
	"ollama.temperature",
	"ollama.num_predict",
	"ollama.probe_timeout",
	"ollama.inference_timeout",
	"completion.api_key",
	"completion.base_url",
	"completion.model",
	"completion.max_tokens",
	"completion.temperature",
	"completion.timeout",
	"cache.enabled",
	"cache.backend",
	"cache.redis_url",
	"cache.key_prefix",
	"cache.ttl",
	"cache.max_items",
	"security.rate_limit.enabled",
	"security.rate_limit.requests_per_min",
	"security.rate_limit.burst",
	"logging.level",
	"logging.format",
	"logging.file.enabled",
	"logging.file.path",
	"websocket.enabled",
	"websocket.username",
	"websocket.password",
	"metrics.enabled",
	"metrics.path",
}

// legacyEnv maps the plain variable names read from .env files to settings.
// They rank below the prefixed form.
var legacyEnv = map[string]string{
	"ollama.model":       "OLLAMA_MODEL",
	"ollama.url":         "OLLAMA_URL",
	"completion.api_key": "OPENAI_API_KEY",
	"cache.redis_url":    "REDIS_URL",
}

// Loader reads configuration and keeps the viper instance for watching
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader creates a loader with the standard search paths
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName("gateway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/llm-privacy-gateway/")
	v.AddConfigPath("$HOME/.llm-privacy-gateway/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load reads .env, the config file and the environment, in increasing precedence
func (l *Loader) Load(configPath string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A missing .env is the normal case
	_ = godotenv.Load()

	if err := l.bindEnv(); err != nil {
		return nil, err
	}

	if configPath != "" {
		l.v.SetConfigFile(configPath)
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// Watch reloads the configuration when the file changes and hands valid
// results to callback. Invalid edits are reported to onError and ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		callback(cfg)
	})
	l.v.WatchConfig()
}

// ConfigFile returns the file in use, empty when running on defaults
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) bindEnv() error {
	for _, key := range envKeys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := l.v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := GetDefaults()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Privacy.DefaultBackend != "pattern" && config.Privacy.DefaultBackend != "model" {
		return fmt.Errorf("invalid default backend: %s (must be pattern or model)", config.Privacy.DefaultBackend)
	}

	if len(config.Privacy.Pattern.Detectors) == 0 {
		return fmt.Errorf("at least one pattern detector must be enabled")
	}

	if config.Ollama.URL == "" || config.Ollama.Model == "" {
		return fmt.Errorf("ollama url and model are required")
	}

	if config.Ollama.ProbeTimeout <= 0 || config.Ollama.InferenceTimeout <= 0 {
		return fmt.Errorf("ollama timeouts must be positive")
	}

	if config.Cache.Backend != "memory" && config.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", config.Cache.Backend)
	}

	if config.Security.RateLimit.Enabled && config.Security.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.Security.RateLimit.RequestsPerMin)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}
