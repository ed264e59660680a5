package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/casa-core/internal/eventlog"
)

// writeTimeout bounds a single archive insert.
const writeTimeout = 5 * time.Second

// DefaultBufferSize is the queue length used when NewArchiver gets zero.
const DefaultBufferSize = 256

// Logger is the logging surface the archiver needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Archiver copies journal entries into a Repository on a background
// goroutine. Record never blocks: when the queue is full the entry is
// dropped and counted.
type Archiver struct {
	repo   Repository
	queue  chan Record
	logger Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}

	archived atomic.Uint64
	dropped  atomic.Uint64
}

// NewArchiver creates an archiver writing to repo.
func NewArchiver(repo Repository, bufferSize int) *Archiver {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Archiver{
		repo:   repo,
		queue:  make(chan Record, bufferSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger used for failed writes.
func (a *Archiver) SetLogger(logger Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// Start launches the writer goroutine. It runs until Stop or ctx is done.
// Calling Start twice is a no-op.
func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	go a.run(ctx)
}

// Record queues a journal entry. Matches eventlog.Store.SetOnAppend.
func (a *Archiver) Record(e eventlog.Entry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- FromEntry(e):
	default:
		a.dropped.Add(1)
	}
}

// Stop closes the queue and waits for queued records to be written.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	started := a.started
	close(a.queue)
	a.mu.Unlock()

	if started {
		<-a.done
	}
}

// Archived returns the number of records written.
func (a *Archiver) Archived() uint64 { return a.archived.Load() }

// Dropped returns the number of entries lost to a full queue.
func (a *Archiver) Dropped() uint64 { return a.dropped.Load() }

func (a *Archiver) run(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-a.queue:
			if !ok {
				return
			}
			a.write(ctx, rec)
		}
	}
}

func (a *Archiver) write(ctx context.Context, rec Record) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := a.repo.Create(writeCtx, &rec); err != nil {
		a.mu.RLock()
		logger := a.logger
		a.mu.RUnlock()
		logger.Warn("archiving traffic record failed", "entry_id", rec.EntryID, "error", err)
		return
	}
	a.archived.Add(1)
}
