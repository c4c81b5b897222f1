package ports

import (
	"context"
	"io"

	"voxcam/internal/domain"
)

// EngineListener receives recognizer callbacks. Implementations must not block.
type EngineListener interface {
	OnBeginSpeech()
	OnEndSpeech()
	OnPartial(text string)
	OnFinal(text string, score int, hasHypothesis bool)
	OnError(cause error)
	OnEngineTimeout()
}

// RecognitionEngine is the offline recognizer. Initialize may block for a long time.
type RecognitionEngine interface {
	SetListener(listener EngineListener)
	Initialize(ctx context.Context, paths domain.ModelPaths) error
	StartListening(grammar string) error
	Stop() error
	Cancel() error
	Shutdown() error
}

// CaptureLauncher starts the external photo/video capability.
type CaptureLauncher interface {
	LaunchCapture(ctx context.Context, kind domain.CaptureKind) domain.LaunchResult
}

// Notifier renders status and speaks. Both calls are fire-and-forget.
type Notifier interface {
	SetStatus(key domain.StatusKey, args ...any)
	Speak(key domain.SpeechKey, args ...any)
}

// LifecycleSink accepts host lifecycle signals.
type LifecycleSink interface {
	Signal(signal domain.LifecycleSignal)
}

// StatusSource exposes the controller snapshot.
type StatusSource interface {
	Status() domain.Status
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}
