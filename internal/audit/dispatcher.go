package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DropReason says why an event never reached the sink.
type DropReason string

const (
	DropBufferFull  DropReason = "buffer_full"
	DropContextDone DropReason = "context_done"
	DropClosed      DropReason = "closed"
	DropSinkPanic   DropReason = "sink_panic"
)

// Config controls dispatcher buffering and drop reporting.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// OnDrop is called for every event that is not delivered. It runs on the
	// emitting goroutine, or on the delivery goroutine for sink panics.
	OnDrop func(Event, DropReason)
	Logger *slog.Logger
}

// Dispatcher hands audit events to a sink on a single background goroutine
// so request paths never wait on sink I/O.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu orders sends against Close: senders hold it shared, Close holds it
	// exclusively while flipping closed, so no send lands after the drain.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. It returns nil when auditing
// is disabled; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tokenauth: audit sink panicked",
				"event_type", event.EventType,
				"panic", fmt.Sprint(r),
			)
			d.drop(event, DropSinkPanic)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

func (d *Dispatcher) drop(event Event, reason DropReason) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event, reason)
	}
}

// Emit queues event. With DropIfFull a full buffer drops the event;
// otherwise Emit blocks until there is room or ctx ends. Every event that is
// not queued is counted in Dropped and reported to OnDrop.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(event, DropClosed)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		default:
			d.drop(event, DropBufferFull)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event, DropContextDone)
	}
}

// Close stops accepting events and waits for queued ones to reach the sink.
// It waits for in-flight Emit calls first.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

// Dropped returns how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
