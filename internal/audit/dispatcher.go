package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// Critical lists event types that are never dropped. With DropIfFull they
	// wait for buffer space like every event does without it.
	Critical []string

	Logger *zap.Logger
}

// Dispatcher stamps session events and forwards them to a sink on a single
// goroutine, so the sink sees them in emission order.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	logger    *zap.Logger
	critical  map[string]struct{}
	queue     chan Event
	stop      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled; every method is safe on a nil Dispatcher.
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
		logger = zap.NewNop()
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, eventType := range cfg.Critical {
		critical[eventType] = struct{}{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		critical: critical,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.loop()

	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is still queued after Close.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// only; later session events keep flowing.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("event_id", event.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit stamps event with an ID and a UTC timestamp when missing, then queues
// it. With DropIfFull a full buffer drops non-critical events and counts
// them; otherwise Emit waits for space, ctx, or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if d.cfg.DropIfFull && !d.isCritical(event.EventType) {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
			d.logger.Debug("audit event dropped", zap.String("event_type", event.EventType))
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
		d.logger.Warn("audit event abandoned",
			zap.String("event_type", event.EventType),
			zap.Error(ctx.Err()),
		)
	case <-d.stop:
	}
}

func (d *Dispatcher) isCritical(eventType string) bool {
	_, ok := d.critical[eventType]
	return ok
}

// Close flushes queued events and stops delivery. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns the number of events that never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Failed returns the number of events lost to a panicking sink.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
