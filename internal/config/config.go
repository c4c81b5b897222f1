package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxcam/internal/assets"
	"voxcam/internal/usecase"
)

// Config stores runtime configuration for the voice command session.
type Config struct {
	Session  SessionConfig
	Model    ModelConfig
	Engine   EngineConfig
	Audio    AudioConfig
	Commands CommandsConfig
	Launcher LauncherConfig
	MQTT     MQTTConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

type SessionConfig struct {
	Machine     usecase.MachineConfig
	InitTimeout time.Duration
	NotifyQueue int
}

type ModelConfig struct {
	Dir    string
	Layout assets.Layout
}

type EngineConfig struct {
	// Kind is "ws" for the websocket recognizer or "sim" for the scripted one.
	Kind             string
	URL              string
	Token            string
	HandshakeTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type CommandsConfig struct {
	Path string
}

type LauncherConfig struct {
	// Mode is "exec" or "mqtt".
	Mode          string
	PhotoCommand  string
	VideoCommand  string
	LaunchTimeout time.Duration
}

type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	DeviceID       string
	CaptureTimeout time.Duration
	ConnectTimeout time.Duration
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.BrokerURL != ""
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
	Path  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	defaultModelDir := filepath.Join(home, ".local", "share", "voxcam", "models")
	modelDir := strings.TrimSpace(os.Getenv("VOXCAM_MODEL_DIR"))
	if modelDir == "" {
		modelDir = firstExisting(defaultModelDir, "/usr/share/pocketsphinx/model")
	}

	commandsPath := strings.TrimSpace(os.Getenv("VOXCAM_COMMANDS_FILE"))
	if commandsPath == "" {
		commandsPath = filepath.Join(home, ".config", "voxcam", "commands.txt")
	}

	defaults := usecase.DefaultMachineConfig()
	layout := assets.DefaultLayout()

	cfg := Config{
		Session: SessionConfig{
			Machine: usecase.MachineConfig{
				Grammar:             envOrDefault("VOXCAM_GRAMMAR", defaults.Grammar),
				ConfidenceThreshold: envOrDefaultInt("VOXCAM_CONFIDENCE_THRESHOLD", defaults.ConfidenceThreshold),
				CooldownWindow:      envOrDefaultMillis("VOXCAM_COOLDOWN_MS", defaults.CooldownWindow),
				Retry: usecase.RetryPolicy{
					MaxAttempts:    envOrDefaultInt("VOXCAM_MAX_ATTEMPTS", defaults.Retry.MaxAttempts),
					InitialDelay:   envOrDefaultMillis("VOXCAM_BACKOFF_INITIAL_MS", defaults.Retry.InitialDelay),
					MaxDelay:       envOrDefaultMillis("VOXCAM_BACKOFF_MAX_MS", defaults.Retry.MaxDelay),
					TimeoutRestart: envOrDefaultMillis("VOXCAM_TIMEOUT_RESTART_MS", defaults.Retry.TimeoutRestart),
				},
				RejectRestart:  envOrDefaultMillis("VOXCAM_REJECT_RESTART_MS", defaults.RejectRestart),
				CommandRestart: envOrDefaultMillis("VOXCAM_COMMAND_RESTART_MS", defaults.CommandRestart),
				WatchdogWindow: envOrDefaultMillis("VOXCAM_WATCHDOG_MS", defaults.WatchdogWindow),
				SettleDelay:    envOrDefaultMillis("VOXCAM_SETTLE_MS", defaults.SettleDelay),
			},
			InitTimeout: envOrDefaultMillis("VOXCAM_INIT_TIMEOUT_MS", 2*time.Minute),
			NotifyQueue: envOrDefaultInt("VOXCAM_NOTIFY_QUEUE", 64),
		},
		Model: ModelConfig{
			Dir: modelDir,
			Layout: assets.Layout{
				AcousticModel: envOrDefault("VOXCAM_ACOUSTIC_MODEL", layout.AcousticModel),
				Dictionary:    envOrDefault("VOXCAM_DICTIONARY", layout.Dictionary),
				Grammar:       envOrDefault("VOXCAM_GRAMMAR_FILE", layout.Grammar),
			},
		},
		Engine: EngineConfig{
			Kind:             strings.ToLower(envOrDefault("VOXCAM_ENGINE", "ws")),
			URL:              envOrDefault("VOXCAM_ENGINE_URL", "ws://127.0.0.1:2700/v1/recognize"),
			Token:            strings.TrimSpace(os.Getenv("VOXCAM_ENGINE_TOKEN")),
			HandshakeTimeout: envOrDefaultMillis("VOXCAM_ENGINE_HANDSHAKE_MS", 10*time.Second),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("VOXCAM_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("VOXCAM_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("VOXCAM_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("VOXCAM_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("VOXCAM_CHANNELS", 1),
			ChunkSize:  envOrDefaultInt("VOXCAM_AUDIO_CHUNK_SIZE", 4096),
		},
		Commands: CommandsConfig{Path: commandsPath},
		Launcher: LauncherConfig{
			Mode:          strings.ToLower(envOrDefault("VOXCAM_LAUNCHER", "exec")),
			PhotoCommand:  strings.TrimSpace(os.Getenv("VOXCAM_PHOTO_COMMAND")),
			VideoCommand:  strings.TrimSpace(os.Getenv("VOXCAM_VIDEO_COMMAND")),
			LaunchTimeout: envOrDefaultMillis("VOXCAM_LAUNCH_TIMEOUT_MS", 10*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerURL:      strings.TrimSpace(os.Getenv("VOXCAM_MQTT_BROKER")),
			ClientID:       strings.TrimSpace(os.Getenv("VOXCAM_MQTT_CLIENT_ID")),
			Username:       strings.TrimSpace(os.Getenv("VOXCAM_MQTT_USERNAME")),
			Password:       os.Getenv("VOXCAM_MQTT_PASSWORD"),
			TopicPrefix:    envOrDefault("VOXCAM_MQTT_TOPIC_PREFIX", "voxcam"),
			DeviceID:       firstNonEmpty(os.Getenv("VOXCAM_DEVICE_ID"), hostname(), "default"),
			CaptureTimeout: envOrDefaultMillis("VOXCAM_MQTT_CAPTURE_TIMEOUT_MS", 5*time.Second),
			ConnectTimeout: envOrDefaultMillis("VOXCAM_MQTT_CONNECT_TIMEOUT_MS", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("VOXCAM_HTTP_ADDR")),
		},
		Log: LogConfig{
			Level: envOrDefault("VOXCAM_LOG_LEVEL", "info"),
			Path:  strings.TrimSpace(os.Getenv("VOXCAM_LOG_PATH")),
		},
	}

	if cfg.Session.Machine.Retry.MaxAttempts <= 0 {
		cfg.Session.Machine.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Session.Machine.Retry.MaxDelay < cfg.Session.Machine.Retry.InitialDelay {
		cfg.Session.Machine.Retry.MaxDelay = cfg.Session.Machine.Retry.InitialDelay
	}
	if cfg.Session.NotifyQueue <= 0 {
		cfg.Session.NotifyQueue = 64
	}
	if cfg.Engine.Kind != "ws" && cfg.Engine.Kind != "sim" {
		cfg.Engine.Kind = "ws"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Launcher.Mode != "exec" && cfg.Launcher.Mode != "mqtt" {
		cfg.Launcher.Mode = "exec"
	}
	if cfg.Launcher.Mode == "mqtt" && !cfg.MQTT.Enabled() {
		return Config{}, errors.New("VOXCAM_LAUNCHER=mqtt requires VOXCAM_MQTT_BROKER")
	}

	return cfg, nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// envOrDefaultMillis reads a non-negative millisecond count. Zero and
// invalid values fall back.
func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
