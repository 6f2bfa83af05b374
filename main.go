package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"speechbot/controlplane"
	"speechbot/core"
	"speechbot/factories"
)

const version = "1.0.0"

func main() {
	var (
		connectURL   string
		addr         string
		settingsPath string
	)
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of a control plane (e.g. ws://ui:8888/ws/agent)")
	flag.StringVar(&addr, "addr", "", "listen address, overrides settings (e.g. :7860)")
	flag.StringVar(&settingsPath, "settings", "", "settings file, overrides SETTINGS_PATH")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := core.ParseLevel(lvl)
		if err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Warn("ignoring LOG_LEVEL")
		} else {
			core.GetLogger().SetLevel(level)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings := loadSettings(settingsPath)
	if addr != "" {
		settings.Server.Addr = addr
	}
	settings.InjectAPIKeys(factories.APIKeysFromEnv())

	logger := core.GetLogger().With(map[string]any{"component": "main"})
	services, err := settings.BuildServices(ctx, logger)
	if err != nil {
		logger.With(map[string]any{"error": err}).Error("inference provider unavailable")
		os.Exit(1)
	}

	pipeline := factories.NewPipeline(services, settings.PipelineConfig(), core.GetLogger())
	defer pipeline.Close()
	if connectURL != "" {
		client := connectControlPlane(ctx, cancel, connectURL, pipeline, settings, services)
		if client == nil {
			os.Exit(1)
		}
		defer client.Close()
	}

	provider := settings.BuildProvider(pipeline, core.GetLogger())
	pipeline.Serve(provider, ctx)

	core.GetLogger().Info("Shutting down...")
	time.Sleep(500 * time.Millisecond)
}

// connectControlPlane registers with the control plane and keeps the
// registration alive across drops. The bot shuts down when a shutdown is
// requested; config updates rebuild the providers for sessions opened
// afterwards.
func connectControlPlane(ctx context.Context, cancel context.CancelFunc, connectURL string, pipeline *factories.Pipeline, settings factories.SettingsConfig, services *factories.Services) *controlplane.Client {
	logger := core.GetLogger().With(map[string]any{"component": "connected"})

	agentID := os.Getenv("AGENT_ID")
	hostname, _ := os.Hostname()
	if agentID == "" {
		agentID = hostname
	}

	client := controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL:     connectURL,
		AgentID:        agentID,
		Version:        version,
		Capabilities:   services.Capabilities(),
		Metadata:       map[string]string{"hostname": hostname},
		Logger:         logger,
		Reconnect:      true,
		ActiveSessions: pipeline.ActiveSessions,
	})

	client.OnShutdown = func(reason string) {
		logger.With(map[string]any{"reason": reason}).Info("shutdown requested by control plane")
		cancel()
	}

	client.OnConfigUpdate = func(raw json.RawMessage, keys map[string]string) {
		next := settings
		if len(raw) > 0 {
			parsed, err := factories.SettingsConfigFromJSON(raw)
			if err != nil {
				logger.With(map[string]any{"error": err}).Warn("ignoring invalid settings update")
				return
			}
			next = parsed
		}
		env := factories.APIKeysFromEnv()
		next.InjectAPIKeys(factories.APIKeysFromMap(keys))
		next.InjectAPIKeys(env)

		services, err := next.BuildServices(ctx, logger)
		if err != nil {
			logger.With(map[string]any{"error": err}).Warn("config update rejected, keeping current providers")
			return
		}
		pipeline.Update(services, next.PipelineConfig())
		logger.Info("config update applied to new sessions")
	}

	if err := client.Connect(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to connect to control plane")
		return nil
	}
	pipeline.WithControlPlane(client)

	go func() {
		client.Wait()
		logger.Info("control plane client ended, shutting down")
		cancel()
	}()
	return client
}

func loadSettings(path string) factories.SettingsConfig {
	logger := core.GetLogger()

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" && path == "" {
		settings, err := factories.SettingsConfigFromBase64(b64)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64, using defaults")
			return factories.DefaultSettingsConfig()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}

	if path == "" {
		path = getEnv("SETTINGS_PATH", "./settings.json")
	}
	settings, err := factories.SettingsConfigFromFile(path)
	if err != nil {
		logger.With(map[string]any{"path": path, "error": err}).Warn("failed to load settings, using defaults")
		return factories.DefaultSettingsConfig()
	}
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
