package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/ports"
)

const (
	KindStatus = "status"
	KindSpeech = "speech"
)

// Message is a rendered notification, ready to ship to a frontend or broker.
type Message struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Key  string    `json:"key"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

func newMessage(kind, key, text string) Message {
	return Message{
		ID:   uuid.NewString(),
		Kind: kind,
		Key:  key,
		Text: text,
		At:   time.Now().UTC(),
	}
}

// StatusMessage renders a status update.
func StatusMessage(key domain.StatusKey, args ...any) Message {
	return newMessage(KindStatus, string(key), StatusText(key, args...))
}

// SpeechMessage renders a spoken message. The id doubles as the utterance id.
func SpeechMessage(key domain.SpeechKey, args ...any) Message {
	return newMessage(KindSpeech, string(key), SpeechText(key, args...))
}

// EmitFunc adapts a Message sink to ports.Notifier.
type EmitFunc func(Message)

func (f EmitFunc) SetStatus(key domain.StatusKey, args ...any) {
	f(StatusMessage(key, args...))
}

func (f EmitFunc) Speak(key domain.SpeechKey, args ...any) {
	f(SpeechMessage(key, args...))
}

// LogNotifier writes every notification to the logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) SetStatus(key domain.StatusKey, args ...any) {
	n.logger.Info().Str("status", string(key)).Msg(StatusText(key, args...))
}

func (n *LogNotifier) Speak(key domain.SpeechKey, args ...any) {
	n.logger.Info().Str("speech", string(key)).Msg("say: " + SpeechText(key, args...))
}

// Fanout forwards every notification to each notifier in order.
type Fanout []ports.Notifier

func (f Fanout) SetStatus(key domain.StatusKey, args ...any) {
	for _, n := range f {
		if n != nil {
			n.SetStatus(key, args...)
		}
	}
}

func (f Fanout) Speak(key domain.SpeechKey, args ...any) {
	for _, n := range f {
		if n != nil {
			n.Speak(key, args...)
		}
	}
}
