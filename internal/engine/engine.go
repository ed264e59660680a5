package engine

import (
	"fmt"
	"sync"

	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/command"
	"github.com/nerrad567/casa-core/internal/device"
	"github.com/nerrad567/casa-core/internal/eventlog"
	"github.com/nerrad567/casa-core/internal/infrastructure/config"
	"github.com/nerrad567/casa-core/internal/router"
)

// Logger defines the logging interface used across the engine.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hooks receive change notifications. Any field may be nil.
// Hooks run on the goroutine that caused the change and must not block.
type Hooks struct {
	OnConnection func(bus.Status)
	OnDevices    func(device.Change)
	OnLog        func(eventlog.Entry)
}

// Options configures an Engine.
type Options struct {
	MQTT config.MQTTConfig

	// Catalog defaults to device.Catalog().
	Catalog []device.Spec
	// Bindings defaults to router.DefaultBindings().
	Bindings []router.Binding
	// Subscriptions defaults to router.Subscriptions().
	Subscriptions []string
	// Dial defaults to a paho session dialer built from MQTT.
	Dial bus.Dialer

	Logger Logger
}

// State is a consistent-enough snapshot for rendering: each part is an
// atomic copy of its own store.
type State struct {
	Connection bus.Status           `json:"connection"`
	Devices    []device.Device      `json:"devices"`
	Sensors    device.SensorReading `json:"sensors"`
}

// Engine is the presentation-facing facade.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Engine struct {
	logs     *eventlog.Store
	devices  *device.Store
	router   *router.Router
	bus      *bus.Manager
	commands *command.Dispatcher
	logger   Logger

	hooks   []Hooks
	hooksMu sync.RWMutex
}

// New builds an Engine. The bus starts Disconnected.
//
// Returns:
//   - *Engine: Ready engine
//   - error: Invalid catalog or binding table
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		opts.Catalog = device.Catalog()
	}
	if opts.Bindings == nil {
		opts.Bindings = router.DefaultBindings()
	}
	if opts.Subscriptions == nil {
		opts.Subscriptions = router.Subscriptions()
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}
	if opts.Dial == nil {
		opts.Dial = bus.MQTTDialer(opts.MQTT, logger)
	}

	if err := device.ValidateCatalog(opts.Catalog); err != nil {
		return nil, fmt.Errorf("building device store: %w", err)
	}
	r, err := router.New(opts.Bindings)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	e := &Engine{
		logs:    eventlog.NewStore(),
		devices: device.NewStore(opts.Catalog),
		router:  r,
		logger:  logger,
	}

	e.bus = bus.NewManager(bus.Options{
		Dial:           opts.Dial,
		ClientIDPrefix: opts.MQTT.Broker.ClientIDPrefix,
		BrokerURL:      opts.MQTT.BrokerURL(),
		Subscriptions:  opts.Subscriptions,
		Router:         e.router,
		Devices:        e.devices,
		Logs:           e.logs,
	})
	e.bus.SetLogger(logger)

	e.commands = command.NewDispatcher(e.bus, e.devices, e.logs, opts.MQTT.CommandTimeout())
	e.commands.SetLogger(logger)

	e.logs.SetOnAppend(e.fanOutLog)
	e.devices.SetOnChange(e.fanOutDevices)
	e.bus.SetOnStateChange(e.fanOutConnection)

	return e, nil
}

// AddHooks registers change observers.
func (e *Engine) AddHooks(h Hooks) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, h)
	e.hooksMu.Unlock()
}

func (e *Engine) currentHooks() []Hooks {
	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	return e.hooks
}

func (e *Engine) fanOutLog(entry eventlog.Entry) {
	e.logger.Debug("traffic", "category", string(entry.Category), "message", entry.Message)
	for _, h := range e.currentHooks() {
		if h.OnLog != nil {
			h.OnLog(entry)
		}
	}
}

func (e *Engine) fanOutDevices(c device.Change) {
	for _, h := range e.currentHooks() {
		if h.OnDevices != nil {
			h.OnDevices(c)
		}
	}
}

func (e *Engine) fanOutConnection(st bus.Status) {
	for _, h := range e.currentHooks() {
		if h.OnConnection != nil {
			h.OnConnection(st)
		}
	}
}

// Connect starts a connection attempt. See bus.Manager.Connect.
func (e *Engine) Connect() {
	e.bus.Connect()
}

// Disconnect closes the connection. See bus.Manager.Disconnect.
func (e *Engine) Disconnect() {
	e.bus.Disconnect()
}

// IssueCommand sends a command token to a device. See command.Dispatcher.
func (e *Engine) IssueCommand(room device.Room, name, token string) error {
	return e.commands.IssueCommand(device.Key{Room: room, Device: name}, token)
}

// Connection returns the connection status.
func (e *Engine) Connection() bus.Status {
	return e.bus.Status()
}

// Device returns one device.
func (e *Engine) Device(room device.Room, name string) (device.Device, error) {
	return e.devices.Get(device.Key{Room: room, Device: name})
}

// Devices returns every device in catalog order.
func (e *Engine) Devices() []device.Device {
	return e.devices.Devices()
}

// Sensors returns the sensor reading.
func (e *Engine) Sensors() device.SensorReading {
	return e.devices.Sensors()
}

// Stats returns device counts.
func (e *Engine) Stats() device.Stats {
	return e.devices.Stats()
}

// Snapshot returns the full state for rendering.
func (e *Engine) Snapshot() State {
	return State{
		Connection: e.bus.Status(),
		Devices:    e.devices.Devices(),
		Sensors:    e.devices.Sensors(),
	}
}

// Logs returns the traffic log, newest first.
func (e *Engine) Logs() []eventlog.Entry {
	return e.logs.Snapshot()
}

// CommandsInFlight returns the number of unreconciled commands.
func (e *Engine) CommandsInFlight() int {
	return e.commands.InFlight()
}

// Close stops timers and tears down the connection.
func (e *Engine) Close() {
	e.commands.Close()
	e.bus.Close()
}
