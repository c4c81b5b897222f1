package usecase

import (
	"time"

	"voxcam/internal/domain"
)

// Event is one input to the session machine.
type Event interface {
	eventName() string
}

type (
	// InitRequested asks for a fresh engine initialization.
	InitRequested struct{}
	// InitSucceeded is posted once by the init worker on success.
	InitSucceeded struct{}
	// InitFailed is posted once by the init worker on failure.
	InitFailed struct{ Err error }

	LifecycleChanged struct{ Signal domain.LifecycleSignal }

	BeginSpeech struct{}
	EndSpeech   struct{}
	Partial     struct{ Text string }
	// FinalResult carries the engine's authoritative hypothesis. HasHypothesis is false
	// when the engine reported a result with no hypothesis at all.
	FinalResult struct {
		Text          string
		Score         int
		HasHypothesis bool
		At            time.Time
	}
	EngineError   struct{ Err error }
	EngineTimeout struct{}

	// StartFailed reports that StartListening returned an error.
	StartFailed struct{ Err error }

	WatchdogFired struct{}
	// RestartDue fires when a scheduled listen request comes due.
	RestartDue struct{ Reason string }

	CaptureResult struct {
		Kind   domain.CaptureKind
		Result domain.LaunchResult
	}
)

func (InitRequested) eventName() string    { return "init_requested" }
func (InitSucceeded) eventName() string    { return "init_succeeded" }
func (InitFailed) eventName() string       { return "init_failed" }
func (e LifecycleChanged) eventName() string {
	return "lifecycle_" + string(e.Signal)
}
func (BeginSpeech) eventName() string   { return "begin_speech" }
func (EndSpeech) eventName() string     { return "end_speech" }
func (Partial) eventName() string       { return "partial" }
func (FinalResult) eventName() string   { return "final" }
func (EngineError) eventName() string   { return "engine_error" }
func (EngineTimeout) eventName() string { return "engine_timeout" }
func (StartFailed) eventName() string   { return "start_failed" }
func (WatchdogFired) eventName() string { return "watchdog_fired" }
func (RestartDue) eventName() string    { return "restart_due" }
func (CaptureResult) eventName() string { return "capture_result" }

// Effect is one command the machine asks the controller to carry out.
type Effect interface {
	effectName() string
}

type (
	BeginInit      struct{}
	StartListening struct{ Grammar string }
	// StopEngine cancels any in-flight utterance and stops the engine. Idempotent.
	StopEngine     struct{}
	ShutdownEngine struct{}

	ArmWatchdog    struct{ After time.Duration }
	CancelWatchdog struct{}

	ScheduleRestart struct {
		After  time.Duration
		Reason string
	}
	CancelRestart struct{}

	LaunchCapture struct{ Kind domain.CaptureKind }

	SetStatus struct {
		Key  domain.StatusKey
		Args []any
	}
	Speak struct {
		Key  domain.SpeechKey
		Args []any
	}
)

func (BeginInit) effectName() string       { return "begin_init" }
func (StartListening) effectName() string  { return "start_listening" }
func (StopEngine) effectName() string      { return "stop_engine" }
func (ShutdownEngine) effectName() string  { return "shutdown_engine" }
func (ArmWatchdog) effectName() string     { return "arm_watchdog" }
func (CancelWatchdog) effectName() string  { return "cancel_watchdog" }
func (ScheduleRestart) effectName() string { return "schedule_restart" }
func (CancelRestart) effectName() string   { return "cancel_restart" }
func (LaunchCapture) effectName() string   { return "launch_capture" }
func (SetStatus) effectName() string       { return "set_status" }
func (Speak) effectName() string           { return "speak" }
