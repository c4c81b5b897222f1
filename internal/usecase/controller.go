package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/ports"
	"voxcam/internal/timer"
)

// Config controls the recognition session loop.
type Config struct {
	Machine       MachineConfig
	ModelPaths    domain.ModelPaths
	InitTimeout   time.Duration
	LaunchTimeout time.Duration
	NotifyQueue   int
	InboxSize     int
}

// SessionController serializes engine callbacks, lifecycle signals, timer
// firings and worker results into one loop goroutine that owns the Machine.
type SessionController struct {
	engine   ports.RecognitionEngine
	launcher ports.CaptureLauncher
	notify   *notifyPump
	clock    timer.Clock
	logger   zerolog.Logger
	cfg      Config

	machine       *Machine
	watchdog      *timer.Handle
	restart       *timer.Handle
	restartReason string
	followUps     []Event

	inbox   chan func()
	done    chan struct{}
	running atomic.Bool
	workers sync.WaitGroup
	runCtx  context.Context

	mu     sync.Mutex
	status domain.Status
}

func NewSessionController(
	engine ports.RecognitionEngine,
	launcher ports.CaptureLauncher,
	notifier ports.Notifier,
	resolver CommandResolver,
	clock timer.Clock,
	logger zerolog.Logger,
	cfg Config,
) *SessionController {
	if clock == nil {
		clock = timer.RealClock()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 2 * time.Minute
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 10 * time.Second
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}

	logger = logger.With().Str("component", "session").Logger()
	c := &SessionController{
		engine:   engine,
		launcher: launcher,
		notify:   newNotifyPump(notifier, cfg.NotifyQueue, logger),
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		machine:  NewMachine(cfg.Machine, resolver),
		inbox:    make(chan func(), cfg.InboxSize),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
	}
	c.watchdog = timer.NewHandle(clock, c.post, func() { c.apply(WatchdogFired{}) })
	c.restart = timer.NewHandle(clock, c.post, func() {
		c.apply(RestartDue{Reason: c.restartReason})
	})
	c.status = c.machine.Status()
	engine.SetListener(engineListener{c: c})
	return c
}

// Run drives the loop until teardown or ctx cancellation. Cancelling ctx tears the session down.
func (c *SessionController) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session controller already running")
	}
	c.runCtx = ctx
	go c.notify.run()
	defer func() {
		close(c.done)
		c.notify.close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.apply(LifecycleChanged{Signal: domain.LifecycleTeardown})
			return ctx.Err()
		case f := <-c.inbox:
			f()
			if c.machine.closed {
				return nil
			}
		}
	}
}

// Start requests the first initialization.
func (c *SessionController) Start() {
	c.post(func() { c.apply(InitRequested{}) })
}

// Signal implements ports.LifecycleSink.
func (c *SessionController) Signal(signal domain.LifecycleSignal) {
	c.post(func() { c.apply(LifecycleChanged{Signal: signal}) })
}

// Done is closed once the loop has exited.
func (c *SessionController) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until background workers (init, launch) finish.
func (c *SessionController) Wait() {
	c.workers.Wait()
}

// Status returns the last published snapshot.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *SessionController) post(f func()) {
	select {
	case c.inbox <- f:
	case <-c.done:
	}
}

func (c *SessionController) apply(ev Event) {
	c.followUps = append(c.followUps, ev)
	for len(c.followUps) > 0 {
		next := c.followUps[0]
		c.followUps = c.followUps[1:]
		c.step(next)
	}

	c.mu.Lock()
	c.status = c.machine.Status()
	c.mu.Unlock()
}

func (c *SessionController) step(ev Event) {
	from := c.machine.State()
	out := c.machine.Step(ev)
	to := c.machine.State()

	logEvent := c.logger.Debug()
	if from != to {
		logEvent = c.logger.Info()
	}
	logEvent.Str("event", ev.eventName()).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("effects", len(out)).
		Msg("session step")

	for _, effect := range out {
		c.execute(effect)
	}
}

func (c *SessionController) execute(effect Effect) {
	switch e := effect.(type) {
	case BeginInit:
		c.beginInit()
	case StartListening:
		if err := c.engine.StartListening(e.Grammar); err != nil {
			c.logger.Error().Err(err).Str("grammar", e.Grammar).Msg("start listening failed")
			c.followUps = append(c.followUps, StartFailed{Err: err})
		}
	case StopEngine:
		c.stopEngine()
	case ShutdownEngine:
		c.shutdownEngine()
	case ArmWatchdog:
		c.watchdog.Arm(e.After)
	case CancelWatchdog:
		c.watchdog.Cancel()
	case ScheduleRestart:
		c.logger.Info().Str("reason", e.Reason).Dur("after", e.After).
			Int("attempts", c.machine.retry.Attempts()).Msg("restart scheduled")
		c.restartReason = e.Reason
		c.restart.Arm(e.After)
	case CancelRestart:
		c.restart.Cancel()
	case LaunchCapture:
		c.launchCapture(e.Kind)
	case SetStatus:
		c.notify.status(e.Key, e.Args...)
	case Speak:
		c.notify.speak(e.Key, e.Args...)
	default:
		c.logger.Warn().Str("effect", effect.effectName()).Msg("unhandled effect")
	}
}

// beginInit runs the blocking engine initialization on a worker. The worker
// reports back into the loop exactly once.
func (c *SessionController) beginInit() {
	parent := c.runCtx
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		ctx, cancel := context.WithTimeout(parent, c.cfg.InitTimeout)
		defer cancel()

		started := time.Now()
		err := c.engine.Initialize(ctx, c.cfg.ModelPaths)
		if err != nil {
			c.logger.Error().Err(err).Msg("recognizer initialization failed")
			c.post(func() { c.apply(InitFailed{Err: err}) })
			return
		}
		c.logger.Info().Dur("took", time.Since(started)).Msg("recognizer initialized")
		c.post(func() { c.apply(InitSucceeded{}) })
	}()
}

func (c *SessionController) stopEngine() {
	if err := c.engine.Cancel(); err != nil {
		c.logger.Debug().Err(err).Msg("engine cancel")
	}
	if err := c.engine.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("engine stop")
	}
}

// shutdownEngine is fire-and-forget: the controller is already terminating.
func (c *SessionController) shutdownEngine() {
	engine := c.engine
	logger := c.logger
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("engine shutdown panicked")
			}
		}()
		_ = engine.Cancel()
		if err := engine.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("engine shutdown")
			return
		}
		logger.Info().Msg("engine shut down")
	}()
}

func (c *SessionController) launchCapture(kind domain.CaptureKind) {
	if c.launcher == nil {
		c.followUps = append(c.followUps, CaptureResult{Kind: kind, Result: domain.LaunchUnavailable})
		return
	}
	parent := c.runCtx
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		ctx, cancel := context.WithTimeout(parent, c.cfg.LaunchTimeout)
		defer cancel()

		result := c.launcher.LaunchCapture(ctx, kind)
		c.logger.Info().Str("kind", string(kind)).Str("result", string(result)).Msg("capture launch")
		c.post(func() { c.apply(CaptureResult{Kind: kind, Result: result}) })
	}()
}

type engineListener struct {
	c *SessionController
}

func (l engineListener) OnBeginSpeech() {
	l.c.post(func() { l.c.apply(BeginSpeech{}) })
}

func (l engineListener) OnEndSpeech() {
	l.c.post(func() { l.c.apply(EndSpeech{}) })
}

func (l engineListener) OnPartial(text string) {
	l.c.post(func() { l.c.apply(Partial{Text: text}) })
}

func (l engineListener) OnFinal(text string, score int, hasHypothesis bool) {
	l.c.post(func() {
		l.c.logger.Info().Str("text", text).Int("score", score).Bool("hypothesis", hasHypothesis).Msg("final result")
		l.c.apply(FinalResult{Text: text, Score: score, HasHypothesis: hasHypothesis, At: l.c.clock.Now()})
	})
}

func (l engineListener) OnError(cause error) {
	l.c.post(func() {
		l.c.logger.Warn().Err(cause).Msg("engine error")
		l.c.apply(EngineError{Err: cause})
	})
}

func (l engineListener) OnEngineTimeout() {
	l.c.post(func() { l.c.apply(EngineTimeout{}) })
}
