package usecase

import (
	"time"

	"voxcam/internal/domain"
)

// MachineConfig holds the timing constants the session machine needs.
type MachineConfig struct {
	Grammar             string
	ConfidenceThreshold int
	CooldownWindow      time.Duration
	Retry               RetryPolicy
	RejectRestart       time.Duration
	CommandRestart      time.Duration
	WatchdogWindow      time.Duration
	SettleDelay         time.Duration
}

// DefaultMachineConfig returns the production constants.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Grammar:             "commands",
		ConfidenceThreshold: -7000,
		CooldownWindow:      2500 * time.Millisecond,
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialDelay:   1000 * time.Millisecond,
			MaxDelay:       8000 * time.Millisecond,
			TimeoutRestart: 500 * time.Millisecond,
		},
		RejectRestart:  1500 * time.Millisecond,
		CommandRestart: 500 * time.Millisecond,
		WatchdogWindow: 7000 * time.Millisecond,
		SettleDelay:    500 * time.Millisecond,
	}
}

// CommandResolver maps an admitted phrase to a command kind.
type CommandResolver interface {
	Lookup(phrase string) domain.CommandKind
}

// Machine is the session state machine. Step is a pure function of the current
// value and the event; it never touches the engine, timers or notifier directly.
type Machine struct {
	cfg      MachineConfig
	resolver CommandResolver
	retry    *RetryController
	cooldown *CooldownFilter

	state          domain.SessionState
	ready          bool
	initializing   bool
	foreground     bool
	actionPending  bool
	awaitingLaunch bool // between LaunchCapture and its CaptureResult
	restartPending bool
	closed         bool

	initFailures int
}

// NewMachine returns an uninitialized machine. Zero-valued config fields take
// the production defaults; a zero confidence threshold would reject every
// hypothesis, so it is defaulted too.
func NewMachine(cfg MachineConfig, resolver CommandResolver) *Machine {
	defaults := DefaultMachineConfig()
	if cfg.Grammar == "" {
		cfg.Grammar = defaults.Grammar
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if cfg.CooldownWindow <= 0 {
		cfg.CooldownWindow = defaults.CooldownWindow
	}
	if cfg.RejectRestart <= 0 {
		cfg.RejectRestart = defaults.RejectRestart
	}
	if cfg.CommandRestart <= 0 {
		cfg.CommandRestart = defaults.CommandRestart
	}
	if cfg.WatchdogWindow <= 0 {
		cfg.WatchdogWindow = defaults.WatchdogWindow
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaults.SettleDelay
	}
	return &Machine{
		cfg:      cfg,
		resolver: resolver,
		retry:    NewRetryController(cfg.Retry),
		cooldown: NewCooldownFilter(cfg.ConfidenceThreshold, cfg.CooldownWindow),
		state:    domain.SessionStateUninitialized,
	}
}

// RestartPending reports whether a delayed listen request is armed.
func (m *Machine) RestartPending() bool { return m.restartPending }

// State returns the active session state.
func (m *Machine) State() domain.SessionState { return m.state }

// Status builds an observer snapshot.
func (m *Machine) Status() domain.Status {
	return domain.Status{
		State:         m.state,
		Ready:         m.ready,
		Initializing:  m.initializing,
		Foreground:    m.foreground,
		ActionPending: m.actionPending,
		Attempts:      m.retry.Attempts(),
		LastCommand:   m.cooldown.Last(),
		Closed:        m.closed,
	}
}

// Step applies one event and returns the effects to execute, in order.
func (m *Machine) Step(ev Event) []Effect {
	if m.closed {
		return nil
	}
	var out effects
	switch e := ev.(type) {
	case InitRequested:
		m.requestInit(&out)
	case InitSucceeded:
		m.onInitSucceeded(&out)
	case InitFailed:
		m.onInitFailed(&out)
	case LifecycleChanged:
		m.onLifecycle(e.Signal, &out)
	case BeginSpeech:
		m.onBeginSpeech(&out)
	case EndSpeech:
		m.onEndSpeech(&out)
	case Partial:
		if text := NormalizeCommand(e.Text); text != "" && m.foreground {
			out.status(domain.StatusHeardPartial, text)
		}
	case FinalResult:
		m.onFinal(e, &out)
	case EngineError:
		m.onFailure(domain.FailureEngineRuntime, &out)
	case EngineTimeout:
		m.onFailure(domain.FailureEngineTimeout, &out)
	case WatchdogFired:
		if m.state == domain.SessionStateAwaitingFinal {
			m.onFailure(domain.FailureWatchdog, &out)
		}
	case StartFailed:
		m.onStartFailed(&out)
	case RestartDue:
		m.restartPending = false
		if m.state == domain.SessionStateIdle || m.state == domain.SessionStateUninitialized {
			m.requestListen(&out)
		}
	case CaptureResult:
		m.onCaptureResult(e, &out)
	}
	m.trackRestart(out)
	return out
}

func (m *Machine) trackRestart(out []Effect) {
	for _, effect := range out {
		switch effect.(type) {
		case ScheduleRestart:
			m.restartPending = true
		case CancelRestart:
			m.restartPending = false
		}
	}
}

type effects []Effect

func (o *effects) add(e ...Effect) { *o = append(*o, e...) }

func (o *effects) status(key domain.StatusKey, args ...any) {
	o.add(SetStatus{Key: key, Args: args})
}

func (o *effects) speak(key domain.SpeechKey, args ...any) {
	o.add(Speak{Key: key, Args: args})
}

func (m *Machine) requestInit(out *effects) {
	if m.ready || m.initializing {
		return
	}
	m.initializing = true
	m.state = domain.SessionStateInitializing
	out.status(domain.StatusSetupRecognizer)
	out.add(BeginInit{})
}

func (m *Machine) onInitSucceeded(out *effects) {
	if !m.initializing {
		return
	}
	m.initializing = false
	m.ready = true
	m.initFailures = 0
	m.retry.Reset()
	m.cooldown.Reset()
	m.state = domain.SessionStateIdle
	out.status(domain.StatusReady)
	if m.foreground {
		out.speak(domain.SpeechSystemReady)
	}
	m.requestListen(out)
}

func (m *Machine) onInitFailed(out *effects) {
	if !m.initializing {
		return
	}
	m.initializing = false
	m.ready = false
	m.state = domain.SessionStateUninitialized
	m.initFailures++
	m.onFailure(domain.FailureInit, out)
}

func (m *Machine) onLifecycle(signal domain.LifecycleSignal, out *effects) {
	switch signal {
	case domain.LifecycleForeground:
		m.onForeground(out)
	case domain.LifecycleBackground:
		m.onBackground(out)
	case domain.LifecycleTeardown:
		m.onTeardown(out)
	}
}

// onForeground is idempotent: a repeated signal never interrupts a turn in
// progress or a restart that is already armed.
func (m *Machine) onForeground(out *effects) {
	wasForeground := m.foreground
	m.foreground = true
	if m.actionPending {
		if wasForeground && m.awaitingLaunch {
			return
		}
		m.actionPending = false
		m.awaitingLaunch = false
		m.state = domain.SessionStateIdle
		out.add(ScheduleRestart{After: m.cfg.SettleDelay, Reason: "action_returned"})
		return
	}
	if m.state == domain.SessionStateFailed {
		m.retry.Reset()
		m.state = domain.SessionStateIdle
	} else if wasForeground {
		switch {
		case m.state == domain.SessionStateListening,
			m.state == domain.SessionStateAwaitingFinal,
			m.restartPending:
			return
		}
	}
	switch {
	case !m.ready && !m.initializing:
		m.requestInit(out)
	case m.ready:
		m.requestListen(out)
	}
}

func (m *Machine) onBackground(out *effects) {
	if !m.foreground {
		return
	}
	m.foreground = false
	out.add(CancelRestart{}, CancelWatchdog{})
	if m.actionPending {
		return
	}
	if m.ready {
		out.add(StopEngine{})
		if m.state != domain.SessionStateFailed {
			m.state = domain.SessionStateIdle
		}
		out.status(domain.StatusSuspended)
	}
}

func (m *Machine) onTeardown(out *effects) {
	out.add(CancelRestart{}, CancelWatchdog{})
	if m.ready || m.initializing {
		out.add(ShutdownEngine{})
	}
	m.ready = false
	m.initializing = false
	m.actionPending = false
	m.awaitingLaunch = false
	m.foreground = false
	m.closed = true
	m.state = domain.SessionStateUninitialized
}

// requestListen honors a listen request only when foreground, no action is
// pending and the engine is ready. Otherwise the request is dropped, and a
// never-initialized engine gets a fresh initialization.
func (m *Machine) requestListen(out *effects) {
	if !m.foreground || m.actionPending {
		return
	}
	if m.state == domain.SessionStateFailed {
		return
	}
	if !m.ready {
		out.status(domain.StatusRecognizerNotReady)
		if !m.initializing {
			m.requestInit(out)
		}
		return
	}
	out.add(CancelRestart{}, StopEngine{}, CancelWatchdog{}, StartListening{Grammar: m.cfg.Grammar})
	out.status(domain.StatusListening)
	m.state = domain.SessionStateListening
}

func (m *Machine) onBeginSpeech(out *effects) {
	out.add(CancelWatchdog{})
	if m.state == domain.SessionStateAwaitingFinal {
		m.state = domain.SessionStateListening
	}
	if m.foreground {
		out.status(domain.StatusHearingSpeech)
	}
}

func (m *Machine) onEndSpeech(out *effects) {
	if !m.foreground || m.state != domain.SessionStateListening {
		return
	}
	out.status(domain.StatusProcessingSpeech)
	out.add(ArmWatchdog{After: m.cfg.WatchdogWindow})
	m.state = domain.SessionStateAwaitingFinal
}

func (m *Machine) onFinal(e FinalResult, out *effects) {
	out.add(CancelWatchdog{})
	if !m.foreground || m.actionPending || !m.ready {
		return
	}
	if m.state != domain.SessionStateListening && m.state != domain.SessionStateAwaitingFinal {
		return
	}
	m.state = domain.SessionStateIdle

	if !e.HasHypothesis {
		out.status(domain.StatusRecognizerIssue)
		m.scheduleRestart(m.cfg.RejectRestart, "no_hypothesis", out)
		return
	}

	switch m.cooldown.Admit(e.Text, e.Score, e.At) {
	case domain.VerdictAdmit:
		m.retry.Reset()
		m.dispatch(NormalizeCommand(e.Text), out)
	case domain.VerdictRejectDuplicate:
		m.scheduleRestart(m.cfg.RejectRestart, "duplicate", out)
	case domain.VerdictRejectLowConfidence:
		out.status(domain.StatusNoClearAudio)
		m.scheduleRestart(m.cfg.RejectRestart, "low_confidence", out)
	default:
		out.status(domain.StatusNoClearAudio)
		m.scheduleRestart(m.cfg.RejectRestart, "empty", out)
	}
}

func (m *Machine) dispatch(command string, out *effects) {
	kind := domain.CommandUnrecognized
	if m.resolver != nil {
		kind = m.resolver.Lookup(command)
	}

	switch kind {
	case domain.CommandCapturePhoto:
		m.beginAction(domain.CapturePhoto, out)
	case domain.CommandCaptureVideo:
		m.beginAction(domain.CaptureVideo, out)
	case domain.CommandComposeMessage:
		out.speak(domain.SpeechMessagePlaceholder)
		out.status(domain.StatusMessageCommand)
		m.scheduleRestart(m.cfg.CommandRestart, "message", out)
	default:
		out.speak(domain.SpeechUnrecognized, command)
		out.status(domain.StatusUnrecognizedCommand, command)
		m.scheduleRestart(m.cfg.CommandRestart, "unrecognized", out)
	}
}

func (m *Machine) beginAction(kind domain.CaptureKind, out *effects) {
	m.actionPending = true
	m.awaitingLaunch = true
	m.state = domain.SessionStateActionPending
	out.add(CancelRestart{}, CancelWatchdog{}, StopEngine{}, LaunchCapture{Kind: kind})
}

func (m *Machine) onCaptureResult(e CaptureResult, out *effects) {
	if !m.actionPending || !m.awaitingLaunch {
		return
	}
	m.awaitingLaunch = false
	if e.Result == domain.LaunchLaunched {
		if e.Kind == domain.CaptureVideo {
			out.speak(domain.SpeechStartingVideo)
			out.status(domain.StatusRecordingVideo)
		} else {
			out.speak(domain.SpeechOpeningCamera)
			out.status(domain.StatusOpeningCamera)
		}
		return
	}

	if e.Kind == domain.CaptureVideo {
		out.speak(domain.SpeechNoVideoApp)
		out.status(domain.StatusErrorNoVideo)
	} else {
		out.speak(domain.SpeechNoCameraApp)
		out.status(domain.StatusErrorNoCamera)
	}
	m.actionPending = false
	m.state = domain.SessionStateIdle
	m.scheduleRestart(m.cfg.CommandRestart, "action_unavailable", out)
}

func (m *Machine) onStartFailed(out *effects) {
	if m.state != domain.SessionStateListening {
		return
	}
	m.state = domain.SessionStateIdle
	out.status(domain.StatusErrorStarting)
	m.scheduleRestart(m.cfg.Retry.InitialDelay, "start_failed", out)
}

// onFailure funnels every retryable failure through the retry controller and
// turns its decision into either a scheduled restart or a terminal notification.
// Runtime failures only count while a turn is active; a late error from an
// engine that was already stopped is dropped.
func (m *Machine) onFailure(kind domain.FailureKind, out *effects) {
	if kind != domain.FailureInit &&
		m.state != domain.SessionStateListening && m.state != domain.SessionStateAwaitingFinal {
		return
	}
	out.add(CancelWatchdog{})
	if m.foreground {
		out.status(failureStatus(kind))
	}

	if kind == domain.FailureInit {
		if m.initFailures == 1 {
			out.speak(domain.SpeechInitFailed)
		}
		if m.foreground && !m.actionPending {
			decision := m.retry.OnFailure(kind)
			out.add(ScheduleRestart{After: decision.Delay, Reason: string(kind)})
		}
		return
	}

	m.state = domain.SessionStateIdle
	if !m.foreground || m.actionPending {
		return
	}

	decision := m.retry.OnFailure(kind)
	if decision.GiveUp {
		m.state = domain.SessionStateFailed
		out.add(CancelRestart{}, StopEngine{})
		out.speak(domain.SpeechFailedPermanently)
		out.status(domain.StatusErrorMaxRetries)
		return
	}
	out.add(ScheduleRestart{After: decision.Delay, Reason: string(kind)})
}

func (m *Machine) scheduleRestart(after time.Duration, reason string, out *effects) {
	if !m.foreground || m.actionPending {
		return
	}
	if !m.ready {
		if !m.initializing {
			m.requestInit(out)
		}
		return
	}
	out.add(ScheduleRestart{After: after, Reason: reason})
}

func failureStatus(kind domain.FailureKind) domain.StatusKey {
	switch kind {
	case domain.FailureInit:
		return domain.StatusErrorInit
	case domain.FailureEngineTimeout:
		return domain.StatusTimeoutListenAgain
	case domain.FailureWatchdog:
		return domain.StatusErrorRecognizerStuck
	default:
		return domain.StatusErrorRecognition
	}
}
