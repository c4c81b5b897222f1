package usecase

import (
	"sync"

	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/ports"
)

type notification struct {
	status domain.StatusKey
	speech domain.SpeechKey
	args   []any
}

// notifyPump delivers status and speech updates off the session loop so a slow
// or panicking notifier never stalls recognition. Updates are dropped when the
// queue is full.
type notifyPump struct {
	notifier ports.Notifier
	logger   zerolog.Logger
	queue    chan notification
	once     sync.Once
	done     chan struct{}
}

func newNotifyPump(notifier ports.Notifier, size int, logger zerolog.Logger) *notifyPump {
	if size <= 0 {
		size = 64
	}
	return &notifyPump{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan notification, size),
		done:     make(chan struct{}),
	}
}

func (p *notifyPump) status(key domain.StatusKey, args ...any) {
	p.enqueue(notification{status: key, args: args})
}

func (p *notifyPump) speak(key domain.SpeechKey, args ...any) {
	p.enqueue(notification{speech: key, args: args})
}

func (p *notifyPump) enqueue(n notification) {
	if p.notifier == nil {
		return
	}
	select {
	case p.queue <- n:
	default:
		p.logger.Warn().Str("status", string(n.status)).Str("speech", string(n.speech)).Msg("notification queue full; dropping update")
	}
}

func (p *notifyPump) run() {
	defer close(p.done)
	for n := range p.queue {
		p.deliver(n)
	}
}

func (p *notifyPump) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("notifier panicked")
		}
	}()
	if n.speech != "" {
		p.notifier.Speak(n.speech, n.args...)
		return
	}
	p.notifier.SetStatus(n.status, n.args...)
}

// close stops accepting updates and waits for queued ones to drain.
func (p *notifyPump) close() {
	p.once.Do(func() {
		close(p.queue)
	})
	<-p.done
}
