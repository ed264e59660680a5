package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/casa-core/internal/device"
)

const (
	// DefaultBufferSize is used when NewRecorder gets a non-positive size.
	DefaultBufferSize = 256

	writeTimeout = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// event is stamped when observed, so a pending-only change or a motion
// change gets its own time rather than the last status or sensor update.
type event struct {
	at     time.Time
	change device.Change
}

// Recorder queues changes and writes them to every sink.
//
// Thread Safety:
//   - Observe is safe for concurrent use and never blocks.
type Recorder struct {
	sinks  []Sink
	queue  chan event
	now    func() time.Time
	logger Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder creates a recorder over the given sinks. With no sinks,
// Observe is a no-op.
func NewRecorder(bufferSize int, sinks ...Sink) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		sinks:  sinks,
		queue:  make(chan event, bufferSize),
		now:    time.Now,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for sink failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Sinks returns the sink names, for status output.
func (r *Recorder) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Start launches the writer goroutine. Calling Start twice is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run(ctx)
}

// Observe queues a change. Matches engine.Hooks.OnDevices.
func (r *Recorder) Observe(c device.Change) {
	if len(r.sinks) == 0 || c.Empty() {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- event{at: r.now(), change: c}:
	default:
		r.dropped.Add(1)
	}
}

// Stop closes the queue and waits for queued changes to be written.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// Written returns the number of points accepted by sinks.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped returns the number of changes lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Failed returns the number of sink writes that returned an error.
func (r *Recorder) Failed() uint64 { return r.failed.Load() }

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(ctx, ev)
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev event) {
	for _, sink := range r.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		if ev.change.Sensors != nil {
			r.record(sink, "sensors", sink.RecordSensors(writeCtx, *ev.change.Sensors, ev.at))
		}
		for _, d := range ev.change.Devices {
			r.record(sink, d.Key.String(), sink.RecordDevice(writeCtx, d, ev.at))
		}
		cancel()
	}
}

func (r *Recorder) record(sink Sink, what string, err error) {
	if err == nil {
		r.written.Add(1)
		return
	}
	r.failed.Add(1)

	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	logger.Warn("telemetry write failed", "sink", sink.Name(), "point", what, "error", err)
}
