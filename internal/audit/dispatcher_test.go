package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n"))
}

// waitForEmptyQueue returns once the delivery goroutine has taken the
// queued event into the sink.
func waitForEmptyQueue(t *testing.T, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(d.queue) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("delivery goroutine never picked up the queued event")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDisabledDispatcherIsNilAndInert(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("expected zero counters on nil dispatcher")
	}
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
	if d.Delivered() != 10 {
		t.Fatalf("expected Delivered()=10, got %d", d.Delivered())
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilSpaceWithoutDrop(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{EventType: "e3"})
	if time.Since(start) > time.Second {
		t.Fatal("expected emit to give up when ctx expires")
	}
}

type panickingSink struct {
	seen []Event
	mu   sync.Mutex
}

func (s *panickingSink) Emit(_ context.Context, event Event) {
	if event.EventType == "refresh_failure" {
		panic("sink unavailable")
	}
	s.mu.Lock()
	s.seen = append(s.seen, event)
	s.mu.Unlock()
}

func TestDispatcherStampsMissingIDAndTimestamp(t *testing.T) {
	sink := NewChannelSink(2)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, sink)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{ID: "kept", Timestamp: fixed, EventType: "logout"})
	d.Close()

	first := <-sink.Events()
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Fatalf("expected stamped event, got %+v", first)
	}
	if first.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", first.Timestamp.Location())
	}
	second := <-sink.Events()
	if second.ID != "kept" || !second.Timestamp.Equal(fixed) {
		t.Fatalf("expected caller stamp to survive, got %+v", second)
	}
}

func TestDispatcherNeverDropsCriticalEvents(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"forced_logout"},
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	waitForEmptyQueue(t, d)
	d.Emit(context.Background(), Event{EventType: "e2"})
	d.Emit(context.Background(), Event{EventType: "e3"})
	if d.Dropped() != 1 {
		t.Fatalf("expected ordinary event dropped, got %d", d.Dropped())
	}

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "forced_logout"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected critical event to wait for space")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected critical event to be queued once space frees up")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected critical event not counted as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panickingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, Logger: zap.New(core)}, sink)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "refresh_failure"})
	d.Emit(context.Background(), Event{EventType: "forced_logout"})
	d.Close()

	if d.Failed() != 1 || d.Delivered() != 2 {
		t.Fatalf("expected 1 failed and 2 delivered, got %d and %d", d.Failed(), d.Delivered())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.seen) != 2 || sink.seen[1].EventType != "forced_logout" {
		t.Fatalf("expected delivery to continue after the panic, got %+v", sink.seen)
	}
	entries := logs.FilterMessage("audit sink panicked").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["event_type"]; got != "refresh_failure" {
		t.Fatalf("expected event_type refresh_failure, got %v", got)
	}
}

func TestDispatcherCountsContextAbandonedEvents(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "e3"})
	if d.Dropped() != 1 {
		t.Fatalf("expected abandoned event counted as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, &countingSink{})

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		ID:        "id-1",
		Timestamp: time.Now().UTC(),
		EventType: "login_success",
		Username:  "alice",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{EventType: "forced_logout", Error: "no refresh token available"})

	lines := buf.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.EventType != "login_success" || first.Username != "alice" || !first.Success {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestZapSinkLogsFailuresAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "login_success", Username: "alice", Success: true})
	sink.Emit(context.Background(), Event{EventType: "refresh_failure", Error: "api status 401: unauthorized", StatusCode: 401})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "login_success" {
		t.Fatalf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected failure at warn, got %s", entries[1].Level)
	}
	if got := entries[1].ContextMap()["status"]; got != int64(401) {
		t.Fatalf("expected status field 401, got %v", got)
	}
}
