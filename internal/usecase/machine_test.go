package usecase

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"voxcam/internal/commands"
	"voxcam/internal/domain"
)

var testEpoch = time.Unix(1_700_000_000, 0)

func newListeningMachine(t *testing.T) *Machine {
	t.Helper()

	m := NewMachine(DefaultMachineConfig(), commands.Default())
	out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	if _, ok := findEffect[BeginInit](out); !ok {
		t.Fatalf("foreground on a fresh machine must begin init, got %v", effectNames(out))
	}
	if m.State() != domain.SessionStateInitializing {
		t.Fatalf("expected initializing, got %s", m.State())
	}

	out = m.Step(InitSucceeded{})
	start, ok := findEffect[StartListening](out)
	if !ok || start.Grammar != "commands" {
		t.Fatalf("init success must start listening, got %v", effectNames(out))
	}
	if _, ok := findEffect[Speak](out); !ok {
		t.Fatalf("expected ready announcement")
	}
	if m.State() != domain.SessionStateListening {
		t.Fatalf("expected listening, got %s", m.State())
	}
	return m
}

func TestInitSucceededWhileBackgroundedDoesNotListen(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultMachineConfig(), commands.Default())
	m.Step(InitRequested{})
	m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})
	out := m.Step(InitSucceeded{})

	if _, ok := findEffect[StartListening](out); ok {
		t.Fatalf("background init must not start listening")
	}
	if _, ok := findEffect[Speak](out); ok {
		t.Fatalf("background init must not speak")
	}
	if m.State() != domain.SessionStateIdle || !m.Status().Ready {
		t.Fatalf("unexpected status %+v", m.Status())
	}
}

func TestDuplicateInitRequestIsIgnored(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultMachineConfig(), commands.Default())
	if out := m.Step(InitRequested{}); countEffect[BeginInit](out) != 1 {
		t.Fatalf("expected one init")
	}
	if out := m.Step(InitRequested{}); len(out) != 0 {
		t.Fatalf("second init request while initializing: %v", effectNames(out))
	}
}

func TestWatchdogFiresOnceAfterEndOfSpeech(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(EndSpeech{})
	arm, ok := findEffect[ArmWatchdog](out)
	if !ok || arm.After != 7*time.Second {
		t.Fatalf("expected 7s watchdog, got %v", effectNames(out))
	}
	if m.State() != domain.SessionStateAwaitingFinal {
		t.Fatalf("expected awaiting final, got %s", m.State())
	}

	out = m.Step(WatchdogFired{})
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != time.Second {
		t.Fatalf("expected 1s restart, got %v", effectNames(out))
	}
	if !hasStatus(out, domain.StatusErrorRecognizerStuck) {
		t.Fatalf("expected stuck status")
	}
	if m.Status().Attempts != 1 {
		t.Fatalf("watchdog must count as a failure")
	}

	if out := m.Step(WatchdogFired{}); len(out) != 0 {
		t.Fatalf("stale watchdog must be ignored, got %v", effectNames(out))
	}
}

func TestBeginSpeechReturnsToListening(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	m.Step(EndSpeech{})
	out := m.Step(BeginSpeech{})
	if _, ok := findEffect[CancelWatchdog](out); !ok {
		t.Fatalf("speech must cancel the watchdog")
	}
	if m.State() != domain.SessionStateListening {
		t.Fatalf("expected listening, got %s", m.State())
	}
}

func TestPhotoCommandRoundTrip(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(FinalResult{Text: "take photo", Score: -1000, HasHypothesis: true, At: testEpoch})
	launch, ok := findEffect[LaunchCapture](out)
	if !ok || launch.Kind != domain.CapturePhoto {
		t.Fatalf("expected photo launch, got %v", effectNames(out))
	}
	if _, ok := findEffect[StopEngine](out); !ok {
		t.Fatalf("action must stop the engine")
	}
	if m.State() != domain.SessionStateActionPending {
		t.Fatalf("expected action pending, got %s", m.State())
	}

	out = m.Step(CaptureResult{Kind: domain.CapturePhoto, Result: domain.LaunchLaunched})
	if !hasStatus(out, domain.StatusOpeningCamera) {
		t.Fatalf("expected opening camera status")
	}

	out = m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})
	if _, ok := findEffect[StopEngine](out); ok {
		t.Fatalf("background during an action must not touch the engine")
	}

	out = m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != 500*time.Millisecond {
		t.Fatalf("expected settle restart, got %v", effectNames(out))
	}
	if _, ok := findEffect[StartListening](out); ok {
		t.Fatalf("must not listen before settle delay")
	}

	out = m.Step(RestartDue{Reason: restart.Reason})
	if _, ok := findEffect[StartListening](out); !ok {
		t.Fatalf("expected listening after settle, got %v", effectNames(out))
	}
	if m.State() != domain.SessionStateListening {
		t.Fatalf("expected listening, got %s", m.State())
	}
}

func TestUnavailableCaptureRestartsListening(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	m.Step(FinalResult{Text: "record video", Score: 0, HasHypothesis: true, At: testEpoch})
	out := m.Step(CaptureResult{Kind: domain.CaptureVideo, Result: domain.LaunchUnavailable})

	speak, ok := findEffect[Speak](out)
	if !ok || speak.Key != domain.SpeechNoVideoApp {
		t.Fatalf("expected no video app speech, got %v", effectNames(out))
	}
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != 500*time.Millisecond {
		t.Fatalf("expected command restart, got %v", effectNames(out))
	}
	if m.Status().ActionPending {
		t.Fatalf("action must be cleared")
	}
}

func TestDuplicateFinalIsRejected(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(FinalResult{Text: "send message", Score: -100, HasHypothesis: true, At: testEpoch})
	if speak, ok := findEffect[Speak](out); !ok || speak.Key != domain.SpeechMessagePlaceholder {
		t.Fatalf("expected message placeholder, got %v", effectNames(out))
	}
	m.Step(RestartDue{})

	out = m.Step(FinalResult{Text: "send message", Score: -100, HasHypothesis: true, At: testEpoch.Add(time.Second)})
	if _, ok := findEffect[Speak](out); ok {
		t.Fatalf("duplicate must not dispatch")
	}
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != 1500*time.Millisecond || restart.Reason != "duplicate" {
		t.Fatalf("expected reject restart, got %+v", restart)
	}
	m.Step(RestartDue{})

	out = m.Step(FinalResult{Text: "send message", Score: -100, HasHypothesis: true, At: testEpoch.Add(3 * time.Second)})
	if _, ok := findEffect[Speak](out); !ok {
		t.Fatalf("expected dispatch after cooldown")
	}
}

func TestLowConfidenceFinalIsRejected(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(FinalResult{Text: "take photo", Score: -7000, HasHypothesis: true, At: testEpoch})
	if _, ok := findEffect[LaunchCapture](out); ok {
		t.Fatalf("low confidence result dispatched")
	}
	if !hasStatus(out, domain.StatusNoClearAudio) {
		t.Fatalf("expected no clear audio status")
	}
	if m.State() != domain.SessionStateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestMissingHypothesisReportsRecognizerIssue(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(FinalResult{HasHypothesis: false, At: testEpoch})
	if !hasStatus(out, domain.StatusRecognizerIssue) {
		t.Fatalf("expected recognizer issue status, got %v", effectNames(out))
	}
	if restart, ok := findEffect[ScheduleRestart](out); !ok || restart.After != 1500*time.Millisecond {
		t.Fatalf("expected reject restart")
	}
}

func TestUnrecognizedCommandIsAnnounced(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(FinalResult{Text: "Make Coffee", Score: 0, HasHypothesis: true, At: testEpoch})
	speak, ok := findEffect[Speak](out)
	if !ok || speak.Key != domain.SpeechUnrecognized || len(speak.Args) != 1 || speak.Args[0] != "make coffee" {
		t.Fatalf("unexpected speech %+v", speak)
	}
	if restart, ok := findEffect[ScheduleRestart](out); !ok || restart.After != 500*time.Millisecond {
		t.Fatalf("expected command restart")
	}
}

func TestFinalIgnoredWhileBackgrounded(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})
	if _, ok := findEffect[StopEngine](out); !ok {
		t.Fatalf("background must stop the engine")
	}
	if !hasStatus(out, domain.StatusSuspended) {
		t.Fatalf("expected suspended status")
	}

	out = m.Step(FinalResult{Text: "take photo", Score: 0, HasHypothesis: true, At: testEpoch})
	if _, ok := findEffect[LaunchCapture](out); ok {
		t.Fatalf("background result dispatched")
	}
	if out := m.Step(RestartDue{}); len(out) != 0 {
		t.Fatalf("background restart must be dropped, got %v", effectNames(out))
	}
}

func TestRuntimeFailuresGiveUpAfterThreeRetries(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	want := []time.Duration{time.Second, time.Second, 2 * time.Second}
	for i, delay := range want {
		out := m.Step(EngineError{Err: errors.New("audio device lost")})
		restart, ok := findEffect[ScheduleRestart](out)
		if !ok || restart.After != delay {
			t.Fatalf("failure %d: expected %s restart, got %v", i+1, delay, effectNames(out))
		}
		m.Step(RestartDue{Reason: restart.Reason})
	}

	out := m.Step(EngineError{Err: errors.New("audio device lost")})
	if m.State() != domain.SessionStateFailed {
		t.Fatalf("expected failed, got %s", m.State())
	}
	if speak, ok := findEffect[Speak](out); !ok || speak.Key != domain.SpeechFailedPermanently {
		t.Fatalf("expected permanent failure speech, got %v", effectNames(out))
	}
	if !hasStatus(out, domain.StatusErrorMaxRetries) {
		t.Fatalf("expected max retries status")
	}

	out = m.Step(EngineError{Err: errors.New("again")})
	if _, ok := findEffect[ScheduleRestart](out); ok {
		t.Fatalf("failed session must not auto-restart")
	}
	if out := m.Step(RestartDue{}); len(out) != 0 {
		t.Fatalf("failed session must ignore restarts, got %v", effectNames(out))
	}
}

func TestFailedSessionRecoversOnForeground(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	for i := 0; i < 4; i++ {
		m.Step(EngineTimeout{})
		m.Step(RestartDue{})
	}
	if m.State() != domain.SessionStateFailed {
		t.Fatalf("expected failed, got %s", m.State())
	}

	m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})
	out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	if _, ok := findEffect[StartListening](out); !ok {
		t.Fatalf("expected listening after foreground, got %v", effectNames(out))
	}
	if m.Status().Attempts != 0 {
		t.Fatalf("foreground must reset attempts")
	}
}

func TestAdmittedCommandResetsRetryCounter(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	m.Step(EngineError{Err: errors.New("glitch")})
	m.Step(RestartDue{})
	if m.Status().Attempts != 1 {
		t.Fatalf("expected one attempt")
	}
	m.Step(FinalResult{Text: "message", Score: 0, HasHypothesis: true, At: testEpoch})
	if m.Status().Attempts != 0 {
		t.Fatalf("admitted command must reset attempts")
	}
}

func TestFirstEngineTimeoutRestartsQuickly(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(EngineTimeout{})
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != 500*time.Millisecond {
		t.Fatalf("expected 500ms restart, got %v", effectNames(out))
	}
	if !hasStatus(out, domain.StatusTimeoutListenAgain) {
		t.Fatalf("expected timeout status")
	}
}

func TestInitFailureRetriesWithoutCounting(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultMachineConfig(), commands.Default())
	m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})

	out := m.Step(InitFailed{Err: errors.New("missing dictionary")})
	if speak, ok := findEffect[Speak](out); !ok || speak.Key != domain.SpeechInitFailed {
		t.Fatalf("first init failure must be spoken, got %v", effectNames(out))
	}
	restart, ok := findEffect[ScheduleRestart](out)
	if !ok || restart.After != time.Second {
		t.Fatalf("expected init retry, got %v", effectNames(out))
	}

	out = m.Step(RestartDue{Reason: restart.Reason})
	if _, ok := findEffect[BeginInit](out); !ok {
		t.Fatalf("restart must re-initialize, got %v", effectNames(out))
	}

	out = m.Step(InitFailed{Err: errors.New("missing dictionary")})
	if _, ok := findEffect[Speak](out); ok {
		t.Fatalf("repeated init failure must not be spoken")
	}
	if m.Status().Attempts != 0 {
		t.Fatalf("init failures must not count")
	}
}

func TestStartFailureSchedulesRestart(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(StartFailed{Err: errors.New("busy")})
	if !hasStatus(out, domain.StatusErrorStarting) {
		t.Fatalf("expected error starting status")
	}
	if restart, ok := findEffect[ScheduleRestart](out); !ok || restart.After != time.Second {
		t.Fatalf("expected restart after initial delay")
	}
}

func TestTeardownClosesMachine(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(LifecycleChanged{Signal: domain.LifecycleTeardown})
	if _, ok := findEffect[ShutdownEngine](out); !ok {
		t.Fatalf("teardown must shut the engine down")
	}
	status := m.Status()
	if !status.Closed || status.Ready || status.State != domain.SessionStateUninitialized {
		t.Fatalf("unexpected status after teardown %+v", status)
	}
	if out := m.Step(InitRequested{}); len(out) != 0 {
		t.Fatalf("closed machine must ignore events")
	}
}

func TestListenRequestCancelsArmedRestart(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	m.Step(EngineError{Err: errors.New("glitch")})
	if !m.RestartPending() {
		t.Fatalf("expected a pending restart after an error")
	}
	m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})

	out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	names := effectNames(out)
	cancelAt, startAt := indexOf(names, "cancel_restart"), indexOf(names, "start_listening")
	if cancelAt < 0 || startAt < 0 || cancelAt > startAt {
		t.Fatalf("listen must cancel the armed restart first, got %v", names)
	}
	if m.RestartPending() {
		t.Fatalf("restart still pending after a new turn started")
	}

	m.Step(EndSpeech{})
	if out := m.Step(RestartDue{Reason: "engine_runtime"}); len(out) != 0 {
		t.Fatalf("stale restart interrupted the pending final: %v", effectNames(out))
	}
	if m.State() != domain.SessionStateAwaitingFinal {
		t.Fatalf("expected awaiting final, got %s", m.State())
	}
}

func TestRestartDueIgnoredWhileTurnActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []Event
		want  domain.SessionState
	}{
		{name: "listening", want: domain.SessionStateListening},
		{name: "awaiting final", setup: []Event{EndSpeech{}}, want: domain.SessionStateAwaitingFinal},
		{name: "action pending", setup: []Event{
			FinalResult{Text: "take photo", Score: 0, HasHypothesis: true, At: testEpoch},
		}, want: domain.SessionStateActionPending},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newListeningMachine(t)
			for _, ev := range tt.setup {
				m.Step(ev)
			}
			if out := m.Step(RestartDue{}); len(out) != 0 {
				t.Fatalf("restart due must be a no-op, got %v", effectNames(out))
			}
			if m.State() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, m.State())
			}
		})
	}
}

func TestRepeatedLifecycleSignalsAreIdempotent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []Event
	}{
		{name: "listening"},
		{name: "awaiting final", setup: []Event{EndSpeech{}}},
		{name: "restart pending", setup: []Event{EngineError{Err: errors.New("glitch")}}},
		{name: "rejected final", setup: []Event{FinalResult{Text: "take photo", Score: -9000, HasHypothesis: true, At: testEpoch}}},
		{name: "launch in flight", setup: []Event{FinalResult{Text: "take photo", Score: 0, HasHypothesis: true, At: testEpoch}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newListeningMachine(t)
			for _, ev := range tt.setup {
				m.Step(ev)
			}
			before := m.Status()
			if out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground}); len(out) != 0 {
				t.Fatalf("repeated foreground emitted %v", effectNames(out))
			}
			if m.Status() != before {
				t.Fatalf("repeated foreground changed status %+v -> %+v", before, m.Status())
			}

			m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})
			if out := m.Step(LifecycleChanged{Signal: domain.LifecycleBackground}); len(out) != 0 {
				t.Fatalf("repeated background emitted %v", effectNames(out))
			}
		})
	}
}

func TestRepeatedForegroundDuringInitRetryKeepsBackoff(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultMachineConfig(), commands.Default())
	m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	m.Step(InitFailed{Err: errors.New("missing dictionary")})

	if out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground}); len(out) != 0 {
		t.Fatalf("foreground during init backoff emitted %v", effectNames(out))
	}
	if out := m.Step(RestartDue{}); countEffect[BeginInit](out) != 1 {
		t.Fatalf("expected one init after backoff, got %v", effectNames(out))
	}
}

func TestPhotoReturnListensOnceAfterSettle(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	m.Step(FinalResult{Text: "take photo", Score: 0, HasHypothesis: true, At: testEpoch})

	// focus events can arrive before the camera app takes over
	if out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground}); len(out) != 0 {
		t.Fatalf("foreground while launching emitted %v", effectNames(out))
	}
	m.Step(CaptureResult{Kind: domain.CapturePhoto, Result: domain.LaunchLaunched})
	m.Step(LifecycleChanged{Signal: domain.LifecycleBackground})

	var starts int
	var settle ScheduleRestart
	for i := 0; i < 3; i++ {
		out := m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
		starts += countEffect[StartListening](out)
		if restart, ok := findEffect[ScheduleRestart](out); ok {
			settle = restart
		}
	}
	if starts != 0 {
		t.Fatalf("listening started %d times before the settle delay", starts)
	}
	if settle.After != 500*time.Millisecond {
		t.Fatalf("expected settle restart, got %+v", settle)
	}

	starts += countEffect[StartListening](m.Step(RestartDue{Reason: settle.Reason}))
	starts += countEffect[StartListening](m.Step(RestartDue{Reason: settle.Reason}))
	if starts != 1 {
		t.Fatalf("expected exactly one listen after settle, got %d", starts)
	}
}

func TestLateEngineErrorIsNotCounted(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	first := m.Step(EngineError{Err: errors.New("device lost")})
	if _, ok := findEffect[ScheduleRestart](first); !ok {
		t.Fatalf("expected restart, got %v", effectNames(first))
	}

	if out := m.Step(EngineError{Err: errors.New("device lost")}); len(out) != 0 {
		t.Fatalf("late error while idle emitted %v", effectNames(out))
	}
	if m.Status().Attempts != 1 {
		t.Fatalf("one fault must count once, got %d", m.Status().Attempts)
	}
}

func TestZeroConfigUsesDefaultThreshold(t *testing.T) {
	t.Parallel()

	m := NewMachine(MachineConfig{}, commands.Default())
	m.Step(LifecycleChanged{Signal: domain.LifecycleForeground})
	m.Step(InitSucceeded{})

	out := m.Step(FinalResult{Text: "take photo", Score: -3000, HasHypothesis: true, At: testEpoch})
	if _, ok := findEffect[LaunchCapture](out); !ok {
		t.Fatalf("expected dispatch with default threshold, got %v", effectNames(out))
	}
}

// TestRandomEventSequencesKeepListenInvariants drives the machine with
// seeded random input and checks the properties every path must hold.
func TestRandomEventSequencesKeepListenInvariants(t *testing.T) {
	t.Parallel()

	pool := []Event{
		LifecycleChanged{Signal: domain.LifecycleForeground},
		LifecycleChanged{Signal: domain.LifecycleForeground},
		LifecycleChanged{Signal: domain.LifecycleBackground},
		InitRequested{},
		InitSucceeded{},
		InitFailed{Err: errors.New("init")},
		BeginSpeech{},
		EndSpeech{},
		Partial{Text: "take"},
		FinalResult{Text: "take photo", Score: -100, HasHypothesis: true},
		FinalResult{Text: "send message", Score: -100, HasHypothesis: true},
		FinalResult{Text: "make coffee", Score: -100, HasHypothesis: true},
		FinalResult{Text: "record video", Score: -9000, HasHypothesis: true},
		FinalResult{HasHypothesis: false},
		EngineError{Err: errors.New("runtime")},
		EngineTimeout{},
		StartFailed{Err: errors.New("busy")},
		WatchdogFired{},
		RestartDue{},
		RestartDue{},
		CaptureResult{Kind: domain.CapturePhoto, Result: domain.LaunchLaunched},
		CaptureResult{Kind: domain.CaptureVideo, Result: domain.LaunchUnavailable},
	}

	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		m := NewMachine(DefaultMachineConfig(), commands.Default())
		now := testEpoch
		for step := 0; step < 60; step++ {
			ev := pool[rng.Intn(len(pool))]
			if final, ok := ev.(FinalResult); ok {
				now = now.Add(time.Duration(rng.Intn(4000)) * time.Millisecond)
				final.At = now
				ev = final
			}

			before := m.Status()
			out := m.Step(ev)
			names := effectNames(out)
			starts := countEffect[StartListening](out)

			if starts > 1 {
				t.Fatalf("run %d step %d: %s started listening %d times: %v", run, step, ev.eventName(), starts, names)
			}
			turnActive := before.State == domain.SessionStateListening || before.State == domain.SessionStateAwaitingFinal
			if starts > 0 && turnActive {
				t.Fatalf("run %d step %d: %s restarted an active turn in %s: %v", run, step, ev.eventName(), before.State, names)
			}
			if _, due := ev.(RestartDue); due && turnActive && len(out) != 0 {
				t.Fatalf("run %d step %d: restart due in %s emitted %v", run, step, before.State, names)
			}
			if starts > 0 {
				if c := indexOf(names, "cancel_restart"); c < 0 || c > indexOf(names, "start_listening") {
					t.Fatalf("run %d step %d: listen without cancelling restart: %v", run, step, names)
				}
				if m.RestartPending() {
					t.Fatalf("run %d step %d: restart left armed after listen", run, step)
				}
			}
			if lc, ok := ev.(LifecycleChanged); ok && before.Foreground == (lc.Signal == domain.LifecycleForeground) &&
				!before.ActionPending && before.State != domain.SessionStateFailed && before.State != domain.SessionStateIdle &&
				before.State != domain.SessionStateUninitialized && len(out) != 0 {
				t.Fatalf("run %d step %d: repeated %s in %s emitted %v", run, step, lc.Signal, before.State, names)
			}
		}
	}
}

func TestPartialUpdatesStatus(t *testing.T) {
	t.Parallel()

	m := newListeningMachine(t)
	out := m.Step(Partial{Text: "Take"})
	status, ok := findEffect[SetStatus](out)
	if !ok || status.Key != domain.StatusHeardPartial || status.Args[0] != "take" {
		t.Fatalf("unexpected partial status %+v", status)
	}
	if out := m.Step(Partial{Text: "  "}); len(out) != 0 {
		t.Fatalf("blank partial must be ignored")
	}
}

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, effect := range effects {
		if typed, ok := effect.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func countEffect[T Effect](effects []Effect) int {
	n := 0
	for _, effect := range effects {
		if _, ok := effect.(T); ok {
			n++
		}
	}
	return n
}

func hasStatus(effects []Effect, key domain.StatusKey) bool {
	for _, effect := range effects {
		if status, ok := effect.(SetStatus); ok && status.Key == key {
			return true
		}
	}
	return false
}

func effectNames(effects []Effect) []string {
	names := make([]string, 0, len(effects))
	for _, effect := range effects {
		names = append(names, effect.effectName())
	}
	return names
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
