package domain

import (
	"fmt"
	"strings"
)

// SessionState models the recognition session lifecycle. Exactly one is active at a time.
type SessionState string

const (
	SessionStateUninitialized SessionState = "uninitialized"
	SessionStateInitializing  SessionState = "initializing"
	SessionStateIdle          SessionState = "idle"
	SessionStateListening     SessionState = "listening"
	SessionStateAwaitingFinal SessionState = "awaiting_final"
	SessionStateActionPending SessionState = "action_pending"
	SessionStateFailed        SessionState = "failed"
)

// FailureKind is the closed set of failures that go through retry/backoff.
type FailureKind string

const (
	FailureInit          FailureKind = "init"
	FailureEngineRuntime FailureKind = "engine_runtime"
	FailureEngineTimeout FailureKind = "engine_timeout"
	FailureWatchdog      FailureKind = "watchdog"
)

// Counted reports whether the failure consumes a retry attempt.
func (k FailureKind) Counted() bool {
	return k != FailureInit
}

// Verdict is the outcome of running a final result through the cooldown filter.
type Verdict string

const (
	VerdictAdmit               Verdict = "admit"
	VerdictRejectEmpty         Verdict = "reject_empty"
	VerdictRejectLowConfidence Verdict = "reject_low_confidence"
	VerdictRejectDuplicate     Verdict = "reject_duplicate"
)

// CommandKind identifies what an admitted phrase asks for.
type CommandKind string

const (
	CommandCapturePhoto   CommandKind = "photo"
	CommandCaptureVideo   CommandKind = "video"
	CommandComposeMessage CommandKind = "message"
	CommandUnrecognized   CommandKind = "unrecognized"
)

// ParseCommandKind accepts the catalog spelling of a command kind.
func ParseCommandKind(value string) (CommandKind, error) {
	switch CommandKind(strings.ToLower(strings.TrimSpace(value))) {
	case CommandCapturePhoto:
		return CommandCapturePhoto, nil
	case CommandCaptureVideo:
		return CommandCaptureVideo, nil
	case CommandComposeMessage:
		return CommandComposeMessage, nil
	default:
		return "", fmt.Errorf("unknown command kind %q", value)
	}
}

// CaptureKind is the external capture capability a command launches.
type CaptureKind string

const (
	CapturePhoto CaptureKind = "photo"
	CaptureVideo CaptureKind = "video"
)

// LaunchResult is what the external launcher reports back.
type LaunchResult string

const (
	LaunchLaunched    LaunchResult = "launched"
	LaunchUnavailable LaunchResult = "unavailable"
)

// LifecycleSignal is a foreground/background/teardown notification from the host.
type LifecycleSignal string

const (
	LifecycleForeground LifecycleSignal = "foreground"
	LifecycleBackground LifecycleSignal = "background"
	LifecycleTeardown   LifecycleSignal = "teardown"
)

// ParseLifecycleSignal maps transport payloads onto a lifecycle signal.
func ParseLifecycleSignal(value string) (LifecycleSignal, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "foreground", "resume", "resumed", "1", "on":
		return LifecycleForeground, nil
	case "background", "pause", "paused", "0", "off":
		return LifecycleBackground, nil
	case "teardown", "destroy", "quit":
		return LifecycleTeardown, nil
	default:
		return "", fmt.Errorf("unknown lifecycle signal %q", value)
	}
}

// StatusKey identifies a user-facing status line. Rendering is up to the notifier.
type StatusKey string

const (
	StatusInitializing         StatusKey = "initializing"
	StatusSetupRecognizer      StatusKey = "setup_recognizer"
	StatusReady                StatusKey = "ready"
	StatusListening            StatusKey = "listening"
	StatusHearingSpeech        StatusKey = "hearing_speech"
	StatusProcessingSpeech     StatusKey = "processing_speech"
	StatusHeardPartial         StatusKey = "heard_partial"
	StatusNoClearAudio         StatusKey = "no_clear_audio"
	StatusRecognizerIssue      StatusKey = "recognizer_issue"
	StatusRecognizerNotReady   StatusKey = "recognizer_not_ready"
	StatusErrorStarting        StatusKey = "error_starting"
	StatusErrorRecognition     StatusKey = "error_recognition"
	StatusTimeoutListenAgain   StatusKey = "timeout_listen_again"
	StatusErrorRecognizerStuck StatusKey = "error_recognizer_stuck"
	StatusErrorInit            StatusKey = "error_init"
	StatusErrorMaxRetries      StatusKey = "error_max_retries"
	StatusOpeningCamera        StatusKey = "opening_camera"
	StatusRecordingVideo       StatusKey = "recording_video"
	StatusErrorNoCamera        StatusKey = "error_no_camera"
	StatusErrorNoVideo         StatusKey = "error_no_video"
	StatusMessageCommand       StatusKey = "message_command"
	StatusUnrecognizedCommand  StatusKey = "unrecognized_command"
	StatusSuspended            StatusKey = "suspended"
)

// SpeechKey identifies a spoken message.
type SpeechKey string

const (
	SpeechSystemReady        SpeechKey = "system_ready"
	SpeechInitFailed         SpeechKey = "init_failed"
	SpeechFailedPermanently  SpeechKey = "failed_permanently"
	SpeechOpeningCamera      SpeechKey = "opening_camera"
	SpeechStartingVideo      SpeechKey = "starting_video"
	SpeechNoCameraApp        SpeechKey = "no_camera_app"
	SpeechNoVideoApp         SpeechKey = "no_video_app"
	SpeechMessagePlaceholder SpeechKey = "message_placeholder"
	SpeechUnrecognized       SpeechKey = "unrecognized"
)

// ModelPaths locates the offline recognizer assets.
type ModelPaths struct {
	AcousticModel string `json:"acousticModel"`
	Dictionary    string `json:"dictionary"`
	Grammar       string `json:"grammar"`
}

// InitError reports a missing or invalid model asset.
type InitError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognizer init: %s (%s): %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("recognizer init: %s (%s)", e.Reason, e.Path)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Status summarizes the controller for observers.
type Status struct {
	State         SessionState `json:"state"`
	Ready         bool         `json:"ready"`
	Initializing  bool         `json:"initializing"`
	Foreground    bool         `json:"foreground"`
	ActionPending bool         `json:"actionPending"`
	Attempts      int          `json:"attempts"`
	LastCommand   string       `json:"lastCommand,omitempty"`
	Closed        bool         `json:"closed"`
}
