package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/notify"
	"voxcam/internal/ports"
)

type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	DeviceID       string
	CaptureTimeout time.Duration
	PublishTimeout time.Duration
	// ConnectTimeout bounds how long Start waits for the first connection.
	// The client keeps retrying in the background after that.
	ConnectTimeout time.Duration
}

// CaptureRequest asks a device-side agent to open the camera.
type CaptureRequest struct {
	RequestID string `json:"requestId"`
	DeviceID  string `json:"deviceId"`
	Kind      string `json:"kind"`
}

// CaptureReply is the agent's answer on capture_result/{requestId}.
type CaptureReply struct {
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge connects the session to an MQTT broker: lifecycle signals come in,
// status and speech go out, and capture launches run as request/reply.
type Bridge struct {
	cfg    Config
	client paho.Client
	pub    publisher
	logger zerolog.Logger
	sink   ports.LifecycleSink

	pendingMu sync.Mutex
	pending   map[string]chan CaptureReply
}

func NewBridge(cfg Config, logger zerolog.Logger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "voxcam"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "default"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "voxcam-" + uuid.NewString()[:8]
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Bridge{
		cfg:     cfg,
		logger:  logger.With().Str("component", "mqtt").Logger(),
		pending: make(map[string]chan CaptureReply),
	}
}

// Start connects, announces the device and subscribes. Lifecycle payloads are
// forwarded to sink. An unreachable broker does not fail Start: the client
// keeps retrying and subscribes once connected. The connection is closed
// when ctx ends.
func (b *Bridge) Start(ctx context.Context, sink ports.LifecycleSink) error {
	if strings.TrimSpace(b.cfg.BrokerURL) == "" {
		return errors.New("mqtt broker url is not configured")
	}
	b.sink = sink

	onlineTopic := TopicOnline(b.cfg.TopicPrefix, b.cfg.DeviceID)
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetWill(onlineTopic, "offline", 1, true)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.logger.Error().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(client paho.Client) {
		if err := b.subscribe(client); err != nil {
			b.logger.Error().Err(err).Msg("mqtt subscribe failed")
		}
		if err := b.publish(onlineTopic, true, []byte("online")); err != nil {
			b.logger.Warn().Err(err).Msg("mqtt online announcement failed")
		}
		b.logger.Info().Str("broker", b.cfg.BrokerURL).Str("device", b.cfg.DeviceID).Msg("mqtt bridge connected")
	})

	b.client = paho.NewClient(opts)
	b.pub = b.client
	if err := b.awaitConnect(ctx, b.client.Connect()); err != nil {
		b.client.Disconnect(0)
		return err
	}

	go func() {
		<-ctx.Done()
		b.Close()
	}()
	return nil
}

// awaitConnect waits for the first connection attempt without holding up the
// session: it gives up quietly on timeout or ctx cancellation.
func (b *Bridge) awaitConnect(ctx context.Context, token paho.Token) error {
	wait := time.NewTimer(b.cfg.ConnectTimeout)
	defer wait.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-wait.C:
		b.logger.Warn().Str("broker", b.cfg.BrokerURL).Dur("after", b.cfg.ConnectTimeout).
			Msg("mqtt broker unreachable; retrying in background")
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (b *Bridge) subscribe(client paho.Client) error {
	lifecycle := TopicLifecycle(b.cfg.TopicPrefix, b.cfg.DeviceID)
	if token := client.Subscribe(lifecycle, 1, b.handleLifecycle); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	results := TopicCaptureResults(b.cfg.TopicPrefix, b.cfg.DeviceID)
	if token := client.Subscribe(results, 1, b.handleCaptureResult); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close publishes the offline marker and disconnects.
func (b *Bridge) Close() {
	if b.client == nil {
		return
	}
	if b.client.IsConnected() {
		_ = b.publish(TopicOnline(b.cfg.TopicPrefix, b.cfg.DeviceID), true, []byte("offline"))
	}
	b.client.Disconnect(250)
}

func (b *Bridge) handleLifecycle(_ paho.Client, msg paho.Message) {
	signal, err := domain.ParseLifecycleSignal(string(msg.Payload()))
	if err != nil {
		b.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring lifecycle payload")
		return
	}
	b.logger.Info().Str("signal", string(signal)).Msg("lifecycle signal from broker")
	if b.sink != nil {
		b.sink.Signal(signal)
	}
}

func (b *Bridge) handleCaptureResult(_ paho.Client, msg paho.Message) {
	requestID := ParseRequestID(msg.Topic())
	var reply CaptureReply
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		b.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid capture result")
		return
	}
	if reply.RequestID == "" {
		reply.RequestID = requestID
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[reply.RequestID]
	b.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

// LaunchCapture implements ports.CaptureLauncher. Anything but a positive
// reply within the timeout counts as unavailable.
func (b *Bridge) LaunchCapture(ctx context.Context, kind domain.CaptureKind) domain.LaunchResult {
	requestID := uuid.NewString()
	body, err := json.Marshal(CaptureRequest{RequestID: requestID, DeviceID: b.cfg.DeviceID, Kind: string(kind)})
	if err != nil {
		return domain.LaunchUnavailable
	}

	replies := make(chan CaptureReply, 1)
	b.pendingMu.Lock()
	b.pending[requestID] = replies
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, requestID)
		b.pendingMu.Unlock()
	}()

	if err := b.publish(TopicCapture(b.cfg.TopicPrefix, b.cfg.DeviceID, requestID), false, body); err != nil {
		b.logger.Warn().Err(err).Str("kind", string(kind)).Msg("capture request not sent")
		return domain.LaunchUnavailable
	}

	timer := time.NewTimer(b.cfg.CaptureTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.LaunchUnavailable
	case <-timer.C:
		b.logger.Warn().Str("request", requestID).Msg("capture request timed out")
		return domain.LaunchUnavailable
	case reply := <-replies:
		if !reply.OK {
			b.logger.Info().Str("request", requestID).Str("error", reply.Error).Msg("capture declined")
			return domain.LaunchUnavailable
		}
		return domain.LaunchLaunched
	}
}

// Notifier publishes status (retained) and speech messages.
func (b *Bridge) Notifier() ports.Notifier {
	return notify.EmitFunc(func(msg notify.Message) {
		topic := TopicStatus(b.cfg.TopicPrefix, b.cfg.DeviceID)
		retained := true
		if msg.Kind == notify.KindSpeech {
			topic = TopicSpeak(b.cfg.TopicPrefix, b.cfg.DeviceID)
			retained = false
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := b.publish(topic, retained, body); err != nil {
			b.logger.Warn().Err(err).Str("topic", topic).Msg("notification not published")
		}
	})
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) error {
	if b.pub == nil {
		return errors.New("mqtt bridge is not started")
	}
	token := b.pub.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(b.cfg.PublishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}
