package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/casa-core/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine. They should not block
// for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Handlers are the session's event callbacks. Either may be nil.
type Handlers struct {
	// OnMessage receives every message on every subscribed topic.
	OnMessage MessageHandler

	// OnConnectionLost is called when an established connection drops.
	OnConnectionLost func(err error)
}

// Session is a single connection attempt to the broker and everything
// done over it.
//
// A Session is never reused: after a failed connect, a lost connection or
// Disconnect, the caller creates a new Session with a fresh client id.
// Every blocking broker operation completes asynchronously through a done
// callback, so no method blocks the caller on network I/O except Disconnect,
// which waits at most the disconnect quiesce period.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - done callbacks run on background goroutines.
type Session struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string
	handlers Handlers

	connectTimeout time.Duration
	opTimeout      time.Duration

	// subscriptions tracks topics the broker has acknowledged.
	subscriptions map[string]struct{}
	subMu         sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession prepares a session. No network activity happens until Connect.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - clientID: Unique client identifier for this session
//   - h: Event callbacks
//
// Returns:
//   - *Session: Session ready to Connect
func NewSession(cfg config.MQTTConfig, clientID string, h Handlers) *Session {
	opts := buildClientOptions(cfg, clientID)

	s := &Session{
		cfg:            cfg,
		clientID:       clientID,
		handlers:       h,
		connectTimeout: opts.ConnectTimeout,
		opTimeout:      defaultOperationTimeout,
		subscriptions:  make(map[string]struct{}),
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})

	s.client = pahomqtt.NewClient(opts)
	return s
}

// ClientID returns the client identifier presented to the broker.
func (s *Session) ClientID() string {
	return s.clientID
}

// BrokerURL returns the broker address this session connects to.
func (s *Session) BrokerURL() string {
	return s.cfg.BrokerURL()
}

// Connect starts the connection attempt and returns immediately.
//
// done is called exactly once with nil on success or an error wrapping
// ErrConnectionFailed. There is no retry.
func (s *Session) Connect(done func(error)) {
	token := s.client.Connect()
	// Allow a margin past paho's own connect timeout so its error wins.
	await(token, s.connectTimeout+time.Second, ErrConnectionFailed, done)
}

// Subscribe requests a subscription at the configured QoS. Messages are
// delivered to Handlers.OnMessage.
//
// done is called exactly once with nil once the broker acknowledged, or an
// error wrapping ErrSubscribeFailed. Input and connection problems are
// reported before Subscribe returns.
func (s *Session) Subscribe(topic string, done func(error)) {
	if topic == "" {
		complete(done, fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrInvalidTopic))
		return
	}
	if !s.IsConnected() {
		complete(done, fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrNotConnected))
		return
	}

	token := s.client.Subscribe(topic, s.qos(), s.wrapHandler(s.handlers.OnMessage))
	await(token, s.opTimeout, ErrSubscribeFailed, func(err error) {
		if err == nil {
			s.subMu.Lock()
			s.subscriptions[topic] = struct{}{}
			s.subMu.Unlock()
		}
		if done != nil {
			done(err)
		}
	})
}

// Publish sends a non-retained message at the configured QoS.
//
// Input and connection problems are returned synchronously. Transport
// failures are reported later through done, wrapping ErrPublishFailed.
// done may be nil.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected or ErrPublishFailed (payload too large)
func (s *Session) Publish(topic string, payload []byte, done func(error)) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, s.qos(), false, payload)
	await(token, s.opTimeout, ErrPublishFailed, done)
	return nil
}

// Disconnect closes the connection, waiting briefly for in-flight work.
// Calling it on a session that never connected is harmless.
func (s *Session) Disconnect() {
	if s.client.IsConnectionOpen() {
		s.client.Disconnect(defaultDisconnectQuiesce)
	}

	s.subMu.Lock()
	s.subscriptions = make(map[string]struct{})
	s.subMu.Unlock()
}

// IsConnected reports whether the connection is currently open.
func (s *Session) IsConnected() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

// SubscriptionCount returns the number of acknowledged subscriptions.
func (s *Session) SubscriptionCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscriptions)
}

// HasSubscription checks if the broker acknowledged a subscription to topic.
func (s *Session) HasSubscription(topic string) bool {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	_, exists := s.subscriptions[topic]
	return exists
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) qos() byte {
	if s.cfg.QoS < 0 || s.cfg.QoS > maxQoS {
		return 0
	}
	return byte(s.cfg.QoS)
}

func (s *Session) handleConnectionLost(err error) {
	if s.handlers.OnConnectionLost != nil {
		s.handlers.OnConnectionLost(err)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (s *Session) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if handler == nil {
			return
		}

		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

// await reports a token's completion to done on a background goroutine.
// Errors are wrapped with sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error, done func(error)) {
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				complete(done, fmt.Errorf("%w: %w", sentinel, err))
				return
			}
			complete(done, nil)
		case <-timer.C:
			complete(done, fmt.Errorf("%w: %w after %v", sentinel, ErrTimeout, timeout))
		}
	}()
}

func complete(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
