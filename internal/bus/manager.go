package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/eventlog"
	"github.com/nerrad567/casa-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Journal records user-visible traffic entries. *eventlog.Store satisfies it.
type Journal interface {
	Append(message string, category eventlog.Category) eventlog.Entry
}

// Router turns a message into mutations. *router.Router satisfies it.
type Router interface {
	Route(topic string, payload []byte) ([]device.Mutation, error)
}

// Applier commits mutations atomically. *device.Store satisfies it.
type Applier interface {
	Apply(mutations ...device.Mutation) error
}

// Options configures a Manager.
type Options struct {
	// Dial creates sessions. Required.
	Dial Dialer
	// ClientIDPrefix is prepended to every generated client id.
	ClientIDPrefix string
	// BrokerURL is reported in Status.
	BrokerURL string
	// Subscriptions are requested, in order, on every successful connect.
	Subscriptions []string

	Router  Router
	Devices Applier
	Logs    Journal
}

// Manager owns the connection lifecycle and the inbound message pipeline.
//
// The Manager never calls into a Session while holding its own lock, so
// transport callbacks that re-enter the Manager cannot deadlock.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The state-change callback runs after the lock is released.
type Manager struct {
	opts Options

	mu       sync.Mutex
	state    State
	sess     Session
	failed   bool
	lastErr  error
	clientID string
	since    time.Time

	now func() time.Time

	onStateChange func(Status)
	callbackMu    sync.RWMutex

	logger Logger
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts,
		state:  StateDisconnected,
		since:  time.Now(),
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the diagnostic logger.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetOnStateChange sets a callback invoked after every state transition.
func (m *Manager) SetOnStateChange(callback func(Status)) {
	m.callbackMu.Lock()
	m.onStateChange = callback
	m.callbackMu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the state is Connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	st := Status{
		State:    m.state,
		Text:     statusText(m.state, m.failed),
		ClientID: m.clientID,
		Broker:   m.opts.BrokerURL,
		Since:    m.since,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// setStateLocked moves to a new state and returns the status to announce.
// The caller must hold m.mu.
func (m *Manager) setStateLocked(state State) Status {
	m.state = state
	m.since = m.now()
	return m.statusLocked()
}

func (m *Manager) announce(st Status) {
	m.callbackMu.RLock()
	cb := m.onStateChange
	m.callbackMu.RUnlock()
	if cb != nil {
		cb(st)
	}
}

func (m *Manager) journal(message string, category eventlog.Category) {
	if m.opts.Logs != nil {
		m.opts.Logs.Append(message, category)
	}
}

// Connect starts a connection attempt with a fresh client id and returns
// immediately. It is a no-op while Connecting or Connected.
//
// On success the state becomes Connected and every configured topic is
// subscribed. On failure the state returns to Disconnected and the reason is
// logged. Nothing is retried.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}

	id := newClientID(m.opts.ClientIDPrefix)
	var sess Session
	sess = m.opts.Dial(id, mqtt.Handlers{
		OnMessage: func(topic string, payload []byte) error {
			return m.handleMessage(sess, topic, payload)
		},
		OnConnectionLost: func(err error) {
			m.handleConnectionLost(sess, err)
		},
	})

	m.sess = sess
	m.clientID = id
	m.failed = false
	m.lastErr = nil
	st := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.logger.Info("connecting to MQTT broker", "broker", m.opts.BrokerURL, "client_id", id)
	m.announce(st)

	sess.Connect(func(err error) {
		m.handleConnectResult(sess, err)
	})
}

func (m *Manager) handleConnectResult(sess Session, err error) {
	m.mu.Lock()
	if m.sess != sess || m.state != StateConnecting {
		m.mu.Unlock()
		// Superseded while connecting; make sure the orphan is closed.
		if err == nil {
			sess.Disconnect()
		}
		return
	}

	if err != nil {
		m.sess = nil
		m.failed = true
		m.lastErr = fmt.Errorf("%w: %w", ErrConnectFailed, err)
		st := m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		m.logger.Warn("MQTT connection failed", "broker", m.opts.BrokerURL, "error", err)
		m.announce(st)
		m.journal(fmt.Sprintf("connection failed: %v", err), eventlog.CategoryError)
		return
	}

	st := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("connected to MQTT broker", "broker", m.opts.BrokerURL, "client_id", sess.ClientID())
	m.announce(st)
	m.journal("connected to MQTT broker", eventlog.CategorySuccess)

	for _, topic := range m.opts.Subscriptions {
		sess.Subscribe(topic, func(err error) {
			if err != nil {
				m.logger.Warn("MQTT subscribe failed", "topic", topic, "error", err)
				m.journal(fmt.Sprintf("subscription to %s failed: %v", topic, err), eventlog.CategoryError)
			}
		})
		m.journal("subscribed to topic "+topic, eventlog.CategoryInfo)
	}
}

func (m *Manager) handleConnectionLost(sess Session, err error) {
	// A loss without an error is a normal close.
	if err == nil {
		return
	}

	m.mu.Lock()
	if m.sess != sess || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.lastErr = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	st := m.setStateLocked(StateLost)
	m.mu.Unlock()

	m.logger.Warn("MQTT connection lost", "broker", m.opts.BrokerURL, "error", err)
	m.announce(st)
	m.journal(fmt.Sprintf("connection lost: %v", err), eventlog.CategoryError)
}

// Disconnect closes the session and returns without waiting for the
// transport teardown. It is a no-op unless Connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	sess := m.sess
	m.sess = nil
	m.failed = false
	m.lastErr = nil
	st := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	// paho waits out its quiesce period; the caller does not.
	go sess.Disconnect()

	m.logger.Info("disconnected from MQTT broker", "broker", m.opts.BrokerURL)
	m.announce(st)
	m.journal("disconnected from MQTT broker", eventlog.CategoryInfo)
}

// Close tears down any session without logging a traffic entry.
// Used at shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sess := m.sess
	prev := m.state
	m.sess = nil
	var st Status
	if prev != StateDisconnected {
		st = m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if sess != nil {
		sess.Disconnect()
	}
	if prev != StateDisconnected {
		m.announce(st)
	}
}

// Publish sends a payload on the current session. It never blocks on the
// network: transport failures arrive later through done, which may be nil.
//
// Returns:
//   - error: ErrNotConnected when not Connected, or the session's
//     synchronous rejection
func (m *Manager) Publish(topic string, payload []byte, done func(error)) error {
	m.mu.Lock()
	if m.state != StateConnected || m.sess == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	sess := m.sess
	m.mu.Unlock()

	if err := sess.Publish(topic, payload, done); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return err
	}
	return nil
}

// handleMessage is the inbound pipeline: log, route, apply.
func (m *Manager) handleMessage(sess Session, topic string, payload []byte) error {
	m.mu.Lock()
	current := m.sess == sess && m.state == StateConnected
	m.mu.Unlock()
	if !current {
		m.logger.Debug("dropping message from stale session", "topic", topic)
		return nil
	}

	m.journal(fmt.Sprintf("received [%s]: %s", topic, payload), eventlog.CategoryReceived)

	if m.opts.Router == nil {
		return nil
	}
	muts, err := m.opts.Router.Route(topic, payload)
	if err != nil {
		m.journal(fmt.Sprintf("error processing message on %s: %v", topic, err), eventlog.CategoryError)
		return err
	}
	if len(muts) == 0 || m.opts.Devices == nil {
		return nil
	}
	if err := m.opts.Devices.Apply(muts...); err != nil {
		m.journal(fmt.Sprintf("error applying message on %s: %v", topic, err), eventlog.CategoryError)
		return err
	}
	return nil
}
