package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"voxcam/internal/audio"
	"voxcam/internal/commands"
	"voxcam/internal/config"
	"voxcam/internal/httpapi"
	"voxcam/internal/launcher"
	"voxcam/internal/mqtt"
	"voxcam/internal/notify"
	"voxcam/internal/ports"
	"voxcam/internal/providers/simengine"
	"voxcam/internal/providers/wsengine"
	"voxcam/internal/timer"
	"voxcam/internal/usecase"
)

// Options lets entrypoints replace parts of the graph.
type Options struct {
	Logger zerolog.Logger
	// Notifier receives every status and speech update next to the log notifier.
	Notifier ports.Notifier
	// Engine overrides the configured recognizer.
	Engine ports.RecognitionEngine
	// Launcher overrides the configured capture launcher.
	Launcher ports.CaptureLauncher
	Clock  timer.Clock
	Fs     afero.Fs
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Catalog    *commands.Catalog
	Engine     ports.RecognitionEngine
	Controller *usecase.SessionController
	Bridge     *mqtt.Bridge
	HTTP       *httpapi.Server
	logger     zerolog.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(opts Options) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, opts)
}

// BuildWith wires the graph from an already loaded configuration.
func BuildWith(cfg config.Config, opts Options) (Services, error) {
	logger := opts.Logger
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	catalog, err := commands.Load(cfg.Commands.Path)
	if err != nil {
		return Services{}, err
	}

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled() {
		bridge = mqtt.NewBridge(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			DeviceID:       cfg.MQTT.DeviceID,
			CaptureTimeout: cfg.MQTT.CaptureTimeout,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, logger)
	}

	engine := opts.Engine
	if engine == nil {
		engine, err = buildEngine(cfg, catalog, opts.Fs, logger)
		if err != nil {
			return Services{}, err
		}
	}

	captureLauncher := opts.Launcher
	switch {
	case captureLauncher != nil:
	case cfg.Launcher.Mode == "mqtt":
		if bridge == nil {
			return Services{}, errors.New("mqtt launcher requires a broker")
		}
		captureLauncher = bridge
	default:
		captureLauncher = launcher.NewExecLauncher(cfg.Launcher.PhotoCommand, cfg.Launcher.VideoCommand, logger)
	}

	notifiers := notify.Fanout{notify.NewLogNotifier(logger)}
	if bridge != nil {
		notifiers = append(notifiers, bridge.Notifier())
	}
	if opts.Notifier != nil {
		notifiers = append(notifiers, opts.Notifier)
	}

	controller := usecase.NewSessionController(
		engine,
		captureLauncher,
		notifiers,
		catalog,
		opts.Clock,
		logger,
		usecase.Config{
			Machine:       cfg.Session.Machine,
			ModelPaths:    cfg.Model.Layout.Resolve(cfg.Model.Dir),
			InitTimeout:   cfg.Session.InitTimeout,
			LaunchTimeout: cfg.Launcher.LaunchTimeout,
			NotifyQueue:   cfg.Session.NotifyQueue,
		},
	)

	services := Services{
		Config:     cfg,
		Catalog:    catalog,
		Engine:     engine,
		Controller: controller,
		Bridge:     bridge,
		logger:     logger,
	}
	if cfg.HTTP.Addr != "" {
		services.HTTP = httpapi.NewServer(cfg.HTTP.Addr, controller, logger)
	}
	return services, nil
}

func buildEngine(cfg config.Config, catalog *commands.Catalog, fs afero.Fs, logger zerolog.Logger) (ports.RecognitionEngine, error) {
	switch cfg.Engine.Kind {
	case "sim":
		return simengine.New(0, logger), nil
	case "ws":
		return wsengine.New(wsengine.Config{
			URL:     cfg.Engine.URL,
			Token:   cfg.Engine.Token,
			Phrases: catalog.Phrases(),
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize:        cfg.Audio.ChunkSize,
			HandshakeTimeout: cfg.Engine.HandshakeTimeout,
		}, fs, audio.NewMicrophone(cfg.Audio.RecorderCommand, logger), logger), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine.Kind)
	}
}

// Run starts the broker bridge and HTTP API, requests initialization and
// drives the session loop until teardown or ctx cancellation.
func (s Services) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.Bridge != nil {
		if err := s.Bridge.Start(ctx, s.Controller); err != nil {
			return err
		}
	}

	httpErr := make(chan error, 1)
	if s.HTTP != nil {
		go func() { httpErr <- s.HTTP.Run(ctx) }()
	}

	s.Controller.Start()
	runErr := s.Controller.Run(ctx)
	cancel()
	s.Controller.Wait()

	if s.HTTP != nil {
		if err := <-httpErr; err != nil {
			s.logger.Error().Err(err).Msg("http api stopped with error")
			if runErr == nil {
				runErr = err
			}
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
