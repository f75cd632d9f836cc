package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/gateway"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/metrics"
	"github.com/raaihank/llm-privacy-gateway/internal/proxy"
	"github.com/raaihank/llm-privacy-gateway/internal/security"
	"github.com/raaihank/llm-privacy-gateway/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

const statusInterval = 10 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "Endpoint used by -health-check")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("LLM Privacy Gateway %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting LLM Privacy Gateway",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFile()),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gatewayMetrics := metrics.NewGatewayMetrics(nil)

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(websocket.HubConfigFrom(cfg.WebSocket), log.Logger)
		go hub.Run(ctx)
	}

	var events gateway.EventSink
	if hub != nil {
		events = hub
	}
	components, err := gateway.Build(cfg, log, gatewayMetrics, events)
	if err != nil {
		log.Fatal("Failed to build gateway", zap.Error(err))
	}
	defer components.Close()

	limiter := security.NewRateLimiter(&cfg.Security)
	limiter.StartCleanupRoutine(ctx)

	// Detector toggles can change without a restart
	if loader.ConfigFile() != "" {
		loader.Watch(func(next *config.Config) {
			if err := components.Pattern.Reconfigure(next.Privacy.Pattern); err != nil {
				log.Warn("Ignoring pattern configuration change", zap.Error(err))
				return
			}
			log.Info("Pattern detectors reloaded", zap.Strings("detectors", next.Privacy.Pattern.Detectors))
		}, func(err error) {
			log.Warn("Ignoring invalid configuration change", zap.Error(err))
		})
	}

	server, err := proxy.New(cfg, log, proxy.Deps{
		Gateway: components.Gateway,
		Hub:     hub,
		Metrics: gatewayMetrics,
		Limiter: limiter,
	})
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if hub != nil {
		go server.BroadcastStatus(ctx, statusInterval)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	status := components.Gateway.Status(ctx)
	log.Info("Model backend status",
		zap.String("model", status.Model),
		zap.Bool("ollama_running", status.BackendReachable),
		zap.Bool("model_available", status.ModelAvailable),
		zap.Bool("completion_configured", status.CompletionConfigured),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Model inference can hold a request for a while
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()

		if err := server.Stop(stopCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
