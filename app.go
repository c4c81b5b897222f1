package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voxcam/internal/bootstrap"
	"voxcam/internal/domain"
	"voxcam/internal/logging"
	"voxcam/internal/notify"
	"voxcam/internal/usecase"
)

const (
	eventStatus = "voxcam:status"
	eventSpeech = "voxcam:speech"
	eventError  = "voxcam:error"

	teardownGrace = 3 * time.Second
)

// App is the Wails application root. Window visibility drives the session
// lifecycle: the frontend calls Foreground and Background.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	services   bootstrap.Services
	logger     zerolog.Logger
	logCloser  io.Closer
	bootErr    error

	cancel  context.CancelFunc
	done    chan struct{}
	stopped sync.Once

	emit func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{
		logger: zerolog.Nop(),
		emit:   runtime.EventsEmit,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	logDir, err := logging.ResolveDir("")
	if err != nil {
		logDir = ""
	}
	logger, closer, err := logging.New(logging.Options{
		Level:   os.Getenv("VOXCAM_LOG_LEVEL"),
		Dir:     logDir,
		Console: os.Stderr,
	})
	if err == nil {
		a.logger = logger.With().Str("shell", "desktop").Logger()
		a.logCloser = closer
	}

	services, err := bootstrap.Build(bootstrap.Options{
		Logger:   a.logger,
		Notifier: notify.EmitFunc(a.emitMessage),
	})
	if err != nil {
		a.bootErr = err
		a.logger.Error().Err(err).Msg("startup failed")
		a.emitError("Startup failed", err)
		return
	}
	a.services = services
	a.controller = services.Controller

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := services.Run(runCtx); err != nil {
			a.logger.Error().Err(err).Msg("session stopped with error")
			a.emitError("Session stopped", err)
		}
	}()
}

// shutdown tears the session down and gives it a moment to release the engine.
func (a *App) shutdown(_ context.Context) {
	a.stopped.Do(func() {
		if a.controller != nil {
			a.controller.Signal(domain.LifecycleTeardown)
			select {
			case <-a.done:
			case <-time.After(teardownGrace):
				a.logger.Warn().Msg("session teardown timed out")
			}
		}
		if a.cancel != nil {
			a.cancel()
		}
		if a.logCloser != nil {
			_ = a.logCloser.Close()
		}
	})
}

// Foreground reports that the window became visible.
func (a *App) Foreground() (domain.Status, error) {
	return a.signal(domain.LifecycleForeground)
}

// Background reports that the window was hidden or lost focus.
func (a *App) Background() (domain.Status, error) {
	return a.signal(domain.LifecycleBackground)
}

func (a *App) signal(signal domain.LifecycleSignal) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.Signal(signal)
	return a.controller.Status(), nil
}

// GetStatus returns the current session snapshot.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		return domain.Status{State: domain.SessionStateUninitialized}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.controller == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"engine":     cfg.Engine.Kind,
		"engineUrl":  cfg.Engine.URL,
		"modelDir":   cfg.Model.Dir,
		"grammar":    cfg.Session.Machine.Grammar,
		"launcher":   cfg.Launcher.Mode,
		"audioInput": cfg.Audio.InputDevice,
		"commands":   fmt.Sprintf("%d", len(a.services.Catalog.Phrases())),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

func (a *App) emitMessage(msg notify.Message) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	name := eventStatus
	if msg.Kind == notify.KindSpeech {
		name = eventSpeech
	}
	a.emit(a.ctx, name, msg)
}

func (a *App) emitError(message string, err error) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"message": message,
		"detail":  err.Error(),
	})
}
