package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook counting commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func newCountedStore(t *testing.T) (*RedisStore, *cmdCounter, *testClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewRedisStore(rdb, "ta", clock.Now)

	// Load every script once so measured calls hit EVALSHA directly.
	ctx := context.Background()
	for _, script := range []*redis.Script{createSessionLua, touchSessionLua, deleteSessionLua, deleteSubjectLua} {
		if err := script.Load(ctx, rdb).Err(); err != nil {
			t.Fatalf("script load: %v", err)
		}
	}
	exp := clock.now.Add(time.Hour)
	if _, err := store.Create(ctx, "warm", "warm-token", exp); err != nil {
		t.Fatalf("warm create: %v", err)
	}
	if err := store.Touch(ctx, "warm-token", clock.now); err != nil {
		t.Fatalf("warm touch: %v", err)
	}
	if err := store.Delete(ctx, "warm-token"); err != nil {
		t.Fatalf("warm delete: %v", err)
	}

	counter.Reset()
	return store, counter, clock
}

func TestRedisStoreRoundTripBudget(t *testing.T) {
	store, counter, clock := newCountedStore(t)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	tests := []struct {
		name string
		op   func() error
	}{
		{"create", func() error {
			_, err := store.Create(ctx, "u1", "rt-1", exp)
			return err
		}},
		{"find", func() error {
			_, err := store.Find(ctx, "rt-1")
			return err
		}},
		{"touch", func() error {
			return store.Touch(ctx, "rt-1", clock.now.Add(time.Minute))
		}},
		{"delete", func() error {
			return store.Delete(ctx, "rt-1")
		}},
		{"delete all", func() error {
			if _, err := store.Create(ctx, "u1", "rt-2", exp); err != nil {
				return err
			}
			counter.Reset()
			return store.DeleteAllForSubject(ctx, "u1")
		}},
	}

	// Subtests run in order and share state.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter.Reset()
			if err := tt.op(); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if got := counter.commands.Load(); got != 1 {
				t.Fatalf("%s: expected 1 round-trip, got %d commands", tt.name, got)
			}
		})
	}
}

func TestRedisListBySubjectBudget(t *testing.T) {
	store, counter, clock := newCountedStore(t)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	for _, tok := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, "u1", tok, exp); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	counter.Reset()
	sessions, err := store.ListBySubject(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	// SMEMBERS plus one pipelined batch of HGETALLs.
	if got := counter.pipelines.Load(); got != 1 {
		t.Fatalf("expected 1 pipeline, got %d", got)
	}
	if got := counter.commands.Load(); got != 4 {
		t.Fatalf("expected 4 commands, got %d", got)
	}
}
