package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int

	// DropIfFull discards events when the buffer is full. Events whose type
	// is listed in Critical still wait for space.
	DropIfFull bool
	Critical   []string

	// OnDrop runs on the emitting goroutine for every discarded event.
	OnDrop func(Event)
}

// Dispatcher forwards events to a sink from a single worker goroutine. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink     Sink
	dropFull bool
	critical map[string]struct{}
	onDrop   func(Event)

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	exited chan struct{}

	total   atomic.Uint64
	dropMu  sync.Mutex
	dropped map[string]uint64
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:     sink,
		dropFull: cfg.DropIfFull,
		critical: make(map[string]struct{}, len(cfg.Critical)),
		onDrop:   cfg.OnDrop,
		queue:    make(chan Event, size),
		exited:   make(chan struct{}),
		dropped:  make(map[string]uint64),
	}
	for _, typ := range cfg.Critical {
		d.critical[typ] = struct{}{}
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.exited)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. Non-critical events are dropped when DropIfFull is set
// and the buffer is full. Otherwise Emit waits for space or for ctx; an
// event abandoned on ctx cancellation counts as dropped.
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
		return
	}

	if _, critical := d.critical[event.Type]; d.dropFull && !critical {
		select {
		case d.queue <- event:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	d.total.Add(1)
	d.dropMu.Lock()
	d.dropped[event.Type]++
	d.dropMu.Unlock()
	if d.onDrop != nil {
		d.onDrop(event)
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.exited
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a snapshot of discarded events per event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for typ, n := range d.dropped {
		out[typ] = n
	}
	return out
}
