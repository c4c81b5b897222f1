// Package wsengine drives an offline grammar recognizer that runs as a local
// websocket service. Audio goes up as binary PCM frames; recognition events
// come back as JSON text frames.
package wsengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"voxcam/internal/assets"
	"voxcam/internal/audio"
	"voxcam/internal/domain"
	"voxcam/internal/ports"
)

var (
	ErrNotInitialized = errors.New("recognizer is not initialized")
	ErrShutdown       = errors.New("recognizer is shut down")
)

// Config controls the recognizer connection.
type Config struct {
	URL              string
	Token            string
	Phrases          []string
	Audio            ports.AudioConfig
	ChunkSize        int
	HandshakeTimeout time.Duration
}

// Engine implements ports.RecognitionEngine.
type Engine struct {
	cfg     Config
	fs      afero.Fs
	capture ports.AudioCapture
	logger  zerolog.Logger
	dialer  *websocket.Dialer

	mu       sync.Mutex
	listener ports.EngineListener
	conn     *websocket.Conn
	readDone chan struct{}
	active   *listenSession
	shutdown bool

	writeMu sync.Mutex
}

type listenSession struct {
	id       string
	audio    ports.AudioSession
	cancel   context.CancelFunc
	stopping atomic.Bool
	done     chan struct{}
}

func New(cfg Config, fs afero.Fs, capture ports.AudioCapture, logger zerolog.Logger) *Engine {
	if cfg.URL == "" {
		cfg.URL = "ws://127.0.0.1:2700/v1/recognize"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = audio.DefaultChunkSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Engine{
		cfg:     cfg,
		fs:      fs,
		capture: capture,
		logger:  logger.With().Str("component", "wsengine").Logger(),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
}

func (e *Engine) SetListener(listener ports.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = listener
}

// Initialize validates the model assets, connects and configures the recognizer.
// It blocks until the server acknowledges with a ready message.
func (e *Engine) Initialize(ctx context.Context, paths domain.ModelPaths) error {
	if err := assets.Validate(e.fs, paths); err != nil {
		return err
	}

	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return ErrShutdown
	}
	e.mu.Unlock()
	_ = e.endListen("cancel")
	e.closeConn()

	wsURL, err := normalizeURL(e.cfg.URL)
	if err != nil {
		return err
	}
	headers := http.Header{}
	if e.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+e.cfg.Token)
	}

	conn, _, err := e.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to recognizer: %w", err)
	}

	sampleRate := e.cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	configure := clientMessage{
		Type:       "configure",
		Paths:      &paths,
		Phrases:    e.cfg.Phrases,
		SampleRate: sampleRate,
	}
	if err := conn.WriteJSON(configure); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to configure recognizer: %w", err)
	}

	if err := awaitReady(ctx, conn, e.cfg.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return err
	}

	done := make(chan struct{})
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		_ = conn.Close()
		return ErrShutdown
	}
	e.conn = conn
	e.readDone = done
	e.mu.Unlock()

	go e.readLoop(conn, done)
	e.logger.Info().Str("url", wsURL).Msg("recognizer configured")
	return nil
}

func awaitReady(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("recognizer did not become ready: %w", err)
		}
		switch strings.ToLower(msg.Type) {
		case "ready":
			return nil
		case "error":
			return &domain.InitError{Path: "recognizer", Reason: "configure rejected", Err: errors.New(msg.errorText())}
		}
	}
}

// StartListening opens the microphone and begins streaming to the recognizer
// under a fresh session id.
func (e *Engine) StartListening(grammar string) error {
	e.mu.Lock()
	conn := e.conn
	shutdown := e.shutdown
	e.mu.Unlock()
	if shutdown {
		return ErrShutdown
	}
	if conn == nil {
		return ErrNotInitialized
	}
	if e.capture == nil {
		return errors.New("no audio capture configured")
	}

	_ = e.endListen("cancel")

	ctx, cancel := context.WithCancel(context.Background())
	source, err := e.capture.Start(ctx, e.cfg.Audio)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open microphone: %w", err)
	}

	session := &listenSession{
		id:     uuid.NewString(),
		audio:  source,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.active = session
	e.mu.Unlock()

	if err := e.writeJSON(clientMessage{Type: "start", ID: session.id, Grammar: grammar}); err != nil {
		e.mu.Lock()
		if e.active == session {
			e.active = nil
		}
		e.mu.Unlock()
		_ = source.Stop()
		cancel()
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	go e.pump(session)
	e.logger.Debug().Str("session", session.id).Str("grammar", grammar).Msg("listening")
	return nil
}

func (e *Engine) pump(session *listenSession) {
	defer close(session.done)
	err := audio.Pump(session.audio, e.cfg.ChunkSize, e.writeAudio)
	if err != nil && !session.stopping.Load() {
		e.logger.Warn().Err(err).Str("session", session.id).Msg("audio pump stopped")
		if l := e.currentListener(); l != nil {
			l.OnError(err)
		}
	}
}

// Stop ends the utterance. Events for it that arrive later are dropped. Idempotent.
func (e *Engine) Stop() error {
	return e.endListen("stop")
}

// Cancel ends the utterance and discards any pending result. Idempotent.
func (e *Engine) Cancel() error {
	return e.endListen("cancel")
}

func (e *Engine) endListen(kind string) error {
	e.mu.Lock()
	session := e.active
	e.active = nil
	e.mu.Unlock()
	if session == nil {
		return nil
	}

	session.stopping.Store(true)
	writeErr := e.writeJSON(clientMessage{Type: kind, ID: session.id})
	stopErr := session.audio.Stop()
	session.cancel()
	<-session.done
	return errors.Join(writeErr, stopErr)
}

// Shutdown releases the connection. The engine cannot be reused afterwards.
func (e *Engine) Shutdown() error {
	cancelErr := e.endListen("cancel")
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.closeConn()
	return cancelErr
}

func (e *Engine) closeConn() {
	e.mu.Lock()
	conn := e.conn
	done := e.readDone
	e.conn = nil
	e.readDone = nil
	e.mu.Unlock()
	if conn == nil {
		return
	}

	e.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		time.Now().Add(time.Second))
	e.writeMu.Unlock()
	_ = conn.Close()
	if done != nil {
		<-done
	}
}

func (e *Engine) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if e.ownsConn(conn) && !isNormalClose(err) {
				e.logger.Warn().Err(err).Msg("recognizer connection lost")
				if l := e.currentListener(); l != nil {
					l.OnError(fmt.Errorf("recognizer connection lost: %w", err))
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			e.logger.Debug().Err(err).Msg("ignoring malformed recognizer message")
			continue
		}
		e.dispatch(msg)
	}
}

func (e *Engine) dispatch(msg serverMessage) {
	e.mu.Lock()
	listener := e.listener
	active := e.active
	e.mu.Unlock()
	if listener == nil {
		return
	}
	// Results tagged with an older session belong to an utterance that was
	// already stopped or cancelled.
	if msg.ID != "" && (active == nil || active.id != msg.ID) {
		e.logger.Debug().Str("type", msg.Type).Str("session", msg.ID).Msg("dropping stale recognizer event")
		return
	}

	switch strings.ToLower(msg.Type) {
	case "begin_speech":
		listener.OnBeginSpeech()
	case "end_speech":
		listener.OnEndSpeech()
	case "partial":
		if msg.Text != nil {
			listener.OnPartial(*msg.Text)
		}
	case "final":
		text := ""
		if msg.Text != nil {
			text = *msg.Text
		}
		listener.OnFinal(text, msg.Score, msg.Text != nil)
	case "timeout":
		listener.OnEngineTimeout()
	case "error":
		listener.OnError(errors.New(msg.errorText()))
	}
}

func (e *Engine) ownsConn(conn *websocket.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn == conn
}

func (e *Engine) currentListener() ports.EngineListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

func (e *Engine) writeJSON(msg clientMessage) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotInitialized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (e *Engine) writeAudio(chunk []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotInitialized
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, chunk)
}

type clientMessage struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Grammar    string             `json:"grammar,omitempty"`
	Paths      *domain.ModelPaths `json:"paths,omitempty"`
	Phrases    []string           `json:"phrases,omitempty"`
	SampleRate int                `json:"sampleRate,omitempty"`
}

// serverMessage is one recognizer event. A final with no text field carries no hypothesis.
type serverMessage struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Text    *string `json:"text"`
	Score   int     `json:"score"`
	Message string  `json:"message"`
}

func (m serverMessage) errorText() string {
	if msg := strings.TrimSpace(m.Message); msg != "" {
		return msg
	}
	return "recognizer returned an unknown error"
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func normalizeURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid recognizer URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid recognizer URL %q: scheme must be ws or wss", raw)
	}
	return parsed.String(), nil
}
