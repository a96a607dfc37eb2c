package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"voicechat/controlplane"
	"voicechat/core"
	"voicechat/factories"
	"voicechat/protocol"
	"voicechat/runner"
)

func main() {
	var (
		settingsPath string
		connectURL   string
		logDir       string
		logLevel     string
		player       string
	)
	flag.StringVar(&settingsPath, "settings", getEnv("SETTINGS_PATH", "settings.json"), "settings file (.json or .toml)")
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of a control plane (e.g. ws://localhost:8888/ws/client)")
	flag.StringVar(&logDir, "log-dir", "", "directory for per-session .jsonl logs")
	flag.StringVar(&logLevel, "log-level", "", "minimum console log level (overrides settings)")
	flag.StringVar(&player, "player", "", "audio output: speaker, websocket or none (overrides settings)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings := loadSettings(settingsPath)
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	if connectURL != "" {
		settings.ControlPlaneURL = connectURL
	}
	if player != "" {
		settings.Audio.Player = player
	}

	if err := run(ctx, settings, logDir); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Error("exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, settings factories.SettingsConfig, logDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// logs go to stderr so the conversation on stdout stays readable
	logger := core.NewConsoleLogger(os.Stderr, settings.LogLevel)
	if settings.LogFormat == "json" {
		logger = core.NewJSONLogger(os.Stderr, settings.LogLevel)
	}
	sessionID := uuid.New().String()

	if logDir != "" {
		writer, err := core.NewSessionLogWriter(logDir, sessionID)
		if err != nil {
			return err
		}
		defer writer.Close()
		logger = core.NewSessionLogger(logger, writer)
		logger.With(map[string]any{"path": writer.Path(), "session_id": sessionID}).Info("writing session log")
	}

	var client *controlplane.Client
	if settings.ControlPlaneURL != "" {
		client = newControlPlaneClient(settings.ControlPlaneURL, sessionID, logger)
		client.OnShutdown = func(reason string) {
			logger.With(map[string]any{"reason": reason}).Info("shutdown requested by control plane")
			cancel()
		}
		wsWriter := controlplane.NewWSLogWriter(client, sessionID)
		defer wsWriter.Close()
		logger = core.NewSessionLogger(logger, wsWriter)
	}
	core.SetLogger(*logger)
	logger = logger.With(map[string]any{"session_id": sessionID})

	keys := factories.APIKeysFromEnv()
	settings.Session.InjectAPIKeys(keys)

	kv, err := factories.BuildStore(settings.Store)
	if err != nil {
		return err
	}
	defer kv.Close()

	device, closeDevice, err := factories.BuildAudioDevice(settings.Audio)
	if err != nil {
		return err
	}
	defer closeDevice()

	out := newConsole(ctx, nil, os.Stdout)
	notifier := core.MultiNotifier{out}
	if client != nil {
		notifier = append(notifier, client)
	}

	r, err := settings.Session.BuildRunner(ctx, kv, device, notifier, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.With(map[string]any{"error": err}).Warn("runner close failed")
		}
	}()
	out.conv = r

	if !r.CredentialReady() && keys.OpenAI != "" {
		if err := r.SetCredential(ctx, keys.OpenAI); err != nil {
			logger.With(map[string]any{"error": err}).Warn("OPENAI_API_KEY was not accepted")
		}
	}

	if client != nil {
		wireControlPlane(client, r, out, logger)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("control plane: %w", err)
		}
		defer client.Close()
		go func() {
			select {
			case <-client.Done():
				logger.Info("control plane connection lost, shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if !r.CredentialReady() {
		out.printf("* enter your API key with /key <value>\n")
	}
	out.printf("type /help for commands\n")

	err = out.Run(os.Stdin)
	cancel()
	out.Wait()
	logger.Info("Shutting down...")
	return err
}

func newControlPlaneClient(url, sessionID string, logger *core.Logger) *controlplane.Client {
	hostname, _ := os.Hostname()
	return controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL: url,
		ClientID:   getEnv("CLIENT_ID", hostname),
		SessionID:  sessionID,
		Version:    "1.0.0",
		Metadata:   map[string]string{"hostname": hostname},
		Logger:     logger.With(map[string]any{"component": "controlplane"}),
	})
}

// wireControlPlane routes remote commands into the runner. Callbacks run on
// the client's read loop, so anything that blocks is started in the background.
func wireControlPlane(client *controlplane.Client, r *runner.Runner, out *console, logger *core.Logger) {
	client.OnSendMessage = func(text string) error {
		out.printf("remote: %s\n", text)
		if !out.send(text) {
			return errors.New("shutting down")
		}
		return nil
	}
	client.OnSetSpeech = func(enabled bool) error {
		r.SetSpeechEnabled(enabled)
		return nil
	}
	client.OnStopSpeech = func() error {
		r.StopSpeech()
		return nil
	}
	client.OnReset = r.Reset
	client.StatusFunc = func() protocol.Status {
		status := protocol.Status{
			CredentialReady: r.CredentialReady(),
			SpeechEnabled:   r.SpeechEnabled(),
			PlaybackState:   string(r.PlaybackState()),
			Messages:        len(r.Transcript()),
		}
		if err := r.LastError(); err != nil {
			status.LastError = string(core.Category(err))
		}
		return status
	}
	logger.Debug("control plane callbacks wired")
}

// loadSettings reads SETTINGS_JSON_B64 when set, else the settings file,
// falling back to defaults.
func loadSettings(path string) factories.SettingsConfig {
	logger := core.GetLogger()

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to decode SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		settings, err := factories.SettingsConfigFromJSON(data)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}

	settings, err := factories.SettingsConfigFromFile(path)
	if err != nil {
		logger.With(map[string]any{"error": err, "path": path}).Warn("using default settings")
		return factories.DefaultSettingsConfig()
	}
	logger.With(map[string]any{"path": path}).Info("loaded settings")
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
