package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/eventlog"
)

// DefaultTimeout is the reconciliation window of a command.
const DefaultTimeout = 2000 * time.Millisecond

// Publisher sends commands. *bus.Manager satisfies it.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte, done func(error)) error
}

// Devices is the part of the device store the dispatcher needs.
// *device.Store satisfies it.
type Devices interface {
	Spec(key device.Key) (device.Spec, bool)
	SetPending(key device.Key, pending bool) error
}

// Journal records user-visible traffic entries. *eventlog.Store satisfies it.
type Journal interface {
	Append(message string, category eventlog.Category) eventlog.Entry
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Timer is a stoppable one-shot timer. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the production value.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// attempt is the latest command issued to one device.
type attempt struct {
	seq   uint64
	timer Timer
	// failed is set when the publish completion reported an error.
	failed error
}

// Dispatcher validates, publishes and reconciles user commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Pending transitions happen under the dispatcher lock, so device change
//     observers must not call back into the Dispatcher.
type Dispatcher struct {
	pub     Publisher
	devices Devices
	logs    Journal
	timeout time.Duration

	afterFunc AfterFunc
	logger    Logger

	mu       sync.Mutex
	seq      uint64
	attempts map[device.Key]*attempt
}

// NewDispatcher creates a Dispatcher. A non-positive timeout means DefaultTimeout.
func NewDispatcher(pub Publisher, devices Devices, logs Journal, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		pub:       pub,
		devices:   devices,
		logs:      logs,
		timeout:   timeout,
		afterFunc: realAfterFunc,
		logger:    noopLogger{},
		attempts:  make(map[device.Key]*attempt),
	}
}

// SetLogger sets the diagnostic logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Timeout returns the reconciliation window.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// IssueCommand sends token to the device identified by key.
//
// Rejections (not connected, unknown device, read-only device, token outside
// the kind's vocabulary) log one error entry and change nothing. Otherwise
// the device becomes pending, the token is published, a sent entry is logged
// and the reconciliation timer is armed.
//
// Parameters:
//   - key: Target device
//   - token: Command token, case-sensitive (ON, OFF, abrir, fechar, ABRIR, FECHAR)
//
// Returns:
//   - error: bus.ErrNotConnected, ErrUnknownDevice, ErrReadOnlyDevice,
//     ErrInvalidCommand or ErrPublishFailed
func (d *Dispatcher) IssueCommand(key device.Key, token string) error {
	if !d.pub.IsConnected() {
		d.logs.Append("MQTT not connected", eventlog.CategoryError)
		return bus.ErrNotConnected
	}

	spec, ok := d.devices.Spec(key)
	if !ok {
		d.logs.Append(fmt.Sprintf("unknown device %s", key), eventlog.CategoryError)
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	if spec.ReadOnly() {
		d.logs.Append(fmt.Sprintf("device %s is automatic and accepts no commands", key), eventlog.CategoryError)
		return fmt.Errorf("%w: %s", ErrReadOnlyDevice, key)
	}
	if !spec.Kind.AcceptsCommand(token) {
		d.logs.Append(fmt.Sprintf("invalid command %q for %s", token, key), eventlog.CategoryError)
		return fmt.Errorf("%w: %q for %s (accepts %v)", ErrInvalidCommand, token, key, spec.Kind.Commands())
	}

	d.mu.Lock()
	d.seq++
	seq := d.seq
	prev := d.attempts[key]
	cur := &attempt{seq: seq}
	// The flag is raised while the attempt is installed so a superseded
	// timer can never clear it.
	if err := d.devices.SetPending(key, true); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrUnknownDevice, err)
	}
	d.attempts[key] = cur
	d.mu.Unlock()
	if prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}

	err := d.pub.Publish(spec.CommandTopic, []byte(token), func(err error) {
		d.handlePublishResult(key, seq, err)
	})
	if err != nil {
		d.resolve(key, seq, err)
		d.logs.Append(fmt.Sprintf("error sending command: %v", err), eventlog.CategoryError)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	d.mu.Lock()
	failed := cur.failed
	d.mu.Unlock()
	if failed != nil {
		// The completion already rolled back and logged the failure.
		return fmt.Errorf("%w: %w", ErrPublishFailed, failed)
	}

	d.logs.Append(fmt.Sprintf("sent [%s]: %s", spec.CommandTopic, token), eventlog.CategorySent)
	d.arm(key, seq)
	return nil
}

// arm starts the reconciliation timer for an attempt unless it was already
// resolved or superseded.
func (d *Dispatcher) arm(key device.Key, seq uint64) {
	timer := d.afterFunc(d.timeout, func() { d.expire(key, seq) })

	d.mu.Lock()
	a := d.attempts[key]
	if a == nil || a.seq != seq {
		d.mu.Unlock()
		timer.Stop()
		return
	}
	a.timer = timer
	d.mu.Unlock()
}

// expire clears pending when the window elapses. Clearing an already
// confirmed device is a no-op in the store.
func (d *Dispatcher) expire(key device.Key, seq uint64) {
	if d.resolve(key, seq, nil) {
		d.logger.Debug("command window elapsed", "device", key.String())
	}
}

func (d *Dispatcher) handlePublishResult(key device.Key, seq uint64, err error) {
	if err == nil {
		return
	}

	d.logger.Warn("command publish failed", "device", key.String(), "error", err)
	if !d.resolve(key, seq, err) {
		// A newer command owns the pending flag now.
		return
	}
	d.logs.Append(fmt.Sprintf("error sending command: %v", err), eventlog.CategoryError)
}

// resolve ends the attempt if it is still the latest one for key: the
// pending flag is cleared in the same critical section and the timer is
// stopped. cause is recorded for a publish failure. It reports whether the
// attempt was current.
func (d *Dispatcher) resolve(key device.Key, seq uint64, cause error) bool {
	d.mu.Lock()
	a := d.attempts[key]
	if a == nil || a.seq != seq {
		d.mu.Unlock()
		return false
	}
	delete(d.attempts, key)
	a.failed = cause
	_ = d.devices.SetPending(key, false)
	d.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	return true
}

// InFlight returns the number of commands awaiting reconciliation.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

// Close stops every reconciliation timer. Pending flags are left as they are.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	attempts := d.attempts
	d.attempts = make(map[device.Key]*attempt)
	d.mu.Unlock()

	for _, a := range attempts {
		if a.timer != nil {
			a.timer.Stop()
		}
	}
}
