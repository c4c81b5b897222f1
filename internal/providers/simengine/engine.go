// Package simengine is a scripted recognizer. Tests and the simulate command
// drive it by hand instead of a microphone.
package simengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/ports"
)

// DefaultScore is what Say reports when no score is given.
const DefaultScore = -1500

var ErrNotListening = errors.New("simulated recognizer is not listening")

// Engine implements ports.RecognitionEngine.
type Engine struct {
	logger zerolog.Logger

	mu           sync.Mutex
	listener     ports.EngineListener
	initFailures int
	ready        bool
	listening    bool
	grammar      string
	shutdown     bool
	starts       int
}

// New returns an engine whose first initFailures Initialize calls fail.
func New(initFailures int, logger zerolog.Logger) *Engine {
	return &Engine{
		initFailures: initFailures,
		logger:       logger.With().Str("component", "simengine").Logger(),
	}
}

func (e *Engine) SetListener(listener ports.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = listener
}

func (e *Engine) Initialize(ctx context.Context, paths domain.ModelPaths) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initFailures > 0 {
		e.initFailures--
		return &domain.InitError{Path: paths.AcousticModel, Reason: "simulated model failure"}
	}
	e.ready = true
	e.shutdown = false
	return nil
}

func (e *Engine) StartListening(grammar string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready || e.shutdown {
		return errors.New("simulated recognizer is not initialized")
	}
	e.listening = true
	e.grammar = grammar
	e.starts++
	e.logger.Debug().Str("grammar", grammar).Int("starts", e.starts).Msg("listening")
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = false
	return nil
}

func (e *Engine) Cancel() error {
	return e.Stop()
}

func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = false
	e.ready = false
	e.shutdown = true
	return nil
}

// Listening reports whether an utterance is open.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Starts counts StartListening calls.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Say plays one complete utterance: begin, end, final.
func (e *Engine) Say(text string, score int) error {
	l, err := e.activeListener()
	if err != nil {
		return err
	}
	l.OnBeginSpeech()
	if words := strings.Fields(text); len(words) > 1 {
		l.OnPartial(words[0])
	}
	l.OnEndSpeech()
	l.OnFinal(text, score, true)
	return nil
}

// Mumble ends an utterance with a result that carries no hypothesis.
func (e *Engine) Mumble() error {
	l, err := e.activeListener()
	if err != nil {
		return err
	}
	l.OnBeginSpeech()
	l.OnEndSpeech()
	l.OnFinal("", 0, false)
	return nil
}

// Hang ends speech but never delivers a final result.
func (e *Engine) Hang() error {
	l, err := e.activeListener()
	if err != nil {
		return err
	}
	l.OnBeginSpeech()
	l.OnEndSpeech()
	return nil
}

// Fail reports a runtime engine error.
func (e *Engine) Fail(cause error) error {
	l, err := e.activeListener()
	if err != nil {
		return err
	}
	l.OnError(cause)
	return nil
}

// Timeout reports the engine's own speech timeout.
func (e *Engine) Timeout() error {
	l, err := e.activeListener()
	if err != nil {
		return err
	}
	l.OnEngineTimeout()
	return nil
}

func (e *Engine) activeListener() (ports.EngineListener, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening || e.listener == nil {
		return nil, ErrNotListening
	}
	return e.listener, nil
}

// Exec runs one script line against the engine:
//
//	say [score=<n>] <text> | mumble | hang | error [message] | timeout
//
// It returns false when the verb is not an engine verb.
func (e *Engine) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]
	switch verb {
	case "say":
		score := DefaultScore
		if len(rest) > 0 && strings.HasPrefix(rest[0], "score=") {
			parsed, err := strconv.Atoi(strings.TrimPrefix(rest[0], "score="))
			if err != nil {
				return true, fmt.Errorf("invalid score %q: %w", rest[0], err)
			}
			score = parsed
			rest = rest[1:]
		}
		return true, e.Say(strings.Join(rest, " "), score)
	case "mumble":
		return true, e.Mumble()
	case "hang":
		return true, e.Hang()
	case "error":
		message := strings.Join(rest, " ")
		if message == "" {
			message = "simulated engine error"
		}
		return true, e.Fail(errors.New(message))
	case "timeout":
		return true, e.Timeout()
	}
	return false, nil
}
