package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	got     chan Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.got <- e
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", Success: true})
	}
	d.Close()

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := len(sink.Events()); got != 3 {
		t.Fatalf("emit after close must be ignored, got %d events", got)
	}
	if d.Dropped() != 1 {
		t.Fatalf("emit after close must count as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 8)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event is taken by the worker and blocks in the sink, the second
	// fills the buffer, the rest are dropped.
	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "b"})
	d.Emit(context.Background(), Event{EventType: "c"})
	d.Emit(context.Background(), Event{EventType: "d"})

	if d.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", d.Dropped())
	}
	close(sink.release)
	d.Close()
}

type countingSink struct{ n atomic.Uint64 }

func (s *countingSink) Emit(context.Context, Event) { s.n.Add(1) }

func TestDispatcherCloseDuringEmitLosesNothing(t *testing.T) {
	for round := 0; round < 50; round++ {
		sink := &countingSink{}
		d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

		const emitters, perEmitter = 8, 25
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < emitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perEmitter; j++ {
					d.Emit(context.Background(), Event{EventType: "login_success"})
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		if got := sink.n.Load() + d.Dropped(); got != emitters*perEmitter {
			t.Fatalf("round %d: delivered %d + dropped %d != %d emitted",
				round, sink.n.Load(), d.Dropped(), emitters*perEmitter)
		}
	}
}

func TestDispatcherReportsDropReasons(t *testing.T) {
	var mu sync.Mutex
	reasons := map[DropReason]int{}
	sink := &blockingSink{release: make(chan struct{}), got: make(chan Event, 8)}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		OnDrop: func(_ Event, r DropReason) {
			mu.Lock()
			reasons[r]++
			mu.Unlock()
		},
	}, sink)

	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Emit(ctx, Event{EventType: "c"})

	close(sink.release)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "d"})

	mu.Lock()
	defer mu.Unlock()
	if reasons[DropContextDone] != 1 || reasons[DropClosed] != 1 {
		t.Fatalf("unexpected drop reasons: %v", reasons)
	}
	if d.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", d.Dropped())
	}
	if got := len(sink.got); got != 2 {
		t.Fatalf("expected 2 delivered events, got %d", got)
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewJSONHandler(&lockedWriter{w: &buf, mu: &mu}, nil))
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: logger}, panicSink{})

	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Emit(context.Background(), Event{EventType: "logout_all"})
	d.Close()

	if d.Dropped() != 2 {
		t.Fatalf("expected both events counted as dropped, got %d", d.Dropped())
	}
	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if !strings.Contains(out, "audit sink panicked") || !strings.Contains(out, `"event_type":"logout_all"`) {
		t.Fatalf("expected panic to be logged, got %s", out)
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout_all", SubjectID: "u1", Success: true})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != "logout_all" || decoded.SubjectID != "u1" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials", Metadata: map[string]string{"reason": "password_mismatch"}})
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"meta.reason":"password_mismatch"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
