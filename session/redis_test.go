package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewRedisStore(rdb, "ta", clock.Now), mr, clock
}

func TestRedisCreateAndFind(t *testing.T) {
	store, mr, clock := newRedisStoreTest(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "refresh-a", clock.now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.TokenHash != HashToken("refresh-a") {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if mr.Exists("ta:s:refresh-a") {
		t.Fatal("raw refresh token must not be used as a key")
	}
	if ttl := mr.TTL(store.key(sess.TokenHash)); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	got, err := store.Find(ctx, "refresh-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != sess.ID || got.SubjectID != "u1" {
		t.Fatalf("find mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(clock.now) || !got.UpdatedAt.Equal(clock.now) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}

	if _, err := store.Find(ctx, "refresh-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisCreateRejectsInvalidInput(t *testing.T) {
	store, _, clock := newRedisStoreTest(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "", "tok", clock.now.Add(time.Hour)); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for empty subject, got %v", err)
	}
	if _, err := store.Create(ctx, "u1", "tok", clock.now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for past expiry, got %v", err)
	}
}

func TestRedisMultiSessionIndependence(t *testing.T) {
	store, _, clock := newRedisStoreTest(t)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	if _, err := store.Create(ctx, "u1", "refresh-a", exp); err != nil {
		t.Fatalf("create a: %v", err)
	}
	clock.now = clock.now.Add(time.Second)
	if _, err := store.Create(ctx, "u1", "refresh-b", exp); err != nil {
		t.Fatalf("create b: %v", err)
	}

	list, err := store.ListBySubject(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].TokenHash != HashToken("refresh-a") {
		t.Fatal("expected oldest session first")
	}

	if err := store.Delete(ctx, "refresh-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Find(ctx, "refresh-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	if _, err := store.Find(ctx, "refresh-b"); err != nil {
		t.Fatalf("other session must survive: %v", err)
	}

	list, err = store.ListBySubject(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session after delete, got %d", len(list))
	}
}

func TestRedisDeleteIdempotent(t *testing.T) {
	store, mr, clock := newRedisStoreTest(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u1", "refresh-a", clock.now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "refresh-a"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "refresh-a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}

	members, _ := mr.Members(store.userKey("u1"))
	if len(members) != 0 {
		t.Fatalf("expected index entry removed, got %v", members)
	}
}

func TestRedisDeleteAllForSubject(t *testing.T) {
	store, _, clock := newRedisStoreTest(t)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	for _, tok := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, "u1", tok, exp); err != nil {
			t.Fatalf("create %s: %v", tok, err)
		}
	}
	if _, err := store.Create(ctx, "u2", "other", exp); err != nil {
		t.Fatalf("create other: %v", err)
	}

	if err := store.DeleteAllForSubject(ctx, "u1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if err := store.DeleteAllForSubject(ctx, "u1"); err != nil {
		t.Fatalf("second delete all: %v", err)
	}
	if err := store.DeleteAllForSubject(ctx, "nobody"); err != nil {
		t.Fatalf("delete all for empty subject: %v", err)
	}

	for _, tok := range []string{"a", "b", "c"} {
		if _, err := store.Find(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s to be removed, got %v", tok, err)
		}
	}
	if _, err := store.Find(ctx, "other"); err != nil {
		t.Fatalf("other subject must keep its session: %v", err)
	}
}

func TestRedisTouch(t *testing.T) {
	store, mr, clock := newRedisStoreTest(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "refresh-a", clock.now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(10 * time.Minute)

	later := clock.now.Add(10 * time.Minute)
	if err := store.Touch(ctx, "refresh-a", later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := store.Find(ctx, "refresh-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Fatalf("unexpected timestamps after touch: %+v", got)
	}
	if ttl := mr.TTL(store.key(sess.TokenHash)); ttl != 50*time.Minute {
		t.Fatalf("touch must keep ttl, got %v", ttl)
	}

	if err := store.Touch(ctx, "missing", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisExpiredSessionsAreInvisible(t *testing.T) {
	store, mr, clock := newRedisStoreTest(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u1", "short", clock.now.Add(time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "u1", "long", clock.now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	clock.now = clock.now.Add(2 * time.Minute)

	if _, err := store.Find(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	list, err := store.ListBySubject(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].TokenHash != HashToken("long") {
		t.Fatalf("expected only the long-lived session, got %+v", list)
	}
	members, _ := mr.Members(store.userKey("u1"))
	if len(members) != 1 {
		t.Fatalf("expected stale index member pruned, got %v", members)
	}
}

func TestRedisFindHonoursClockBeforeKeyExpiry(t *testing.T) {
	store, _, clock := newRedisStoreTest(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u1", "tok", clock.now.Add(time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.now = clock.now.Add(time.Minute)
	if _, err := store.Find(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session at its expiry instant to be invisible, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr, clock := newRedisStoreTest(t)
	mr.Close()
	ctx := context.Background()

	if _, err := store.Create(ctx, "u1", "tok", clock.now.Add(time.Hour)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

// interleaveHook runs fire once around the first command that executes the
// subject delete script.
type interleaveHook struct {
	before bool
	fire   func()
	done   atomic.Bool
}

func (h *interleaveHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interleaveHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *interleaveHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !isDeleteSubjectCmd(cmd) || !h.done.CompareAndSwap(false, true) {
			return next(ctx, cmd)
		}
		if h.before {
			h.fire()
			return next(ctx, cmd)
		}
		err := next(ctx, cmd)
		h.fire()
		return err
	}
}

func isDeleteSubjectCmd(cmd redis.Cmder) bool {
	args := cmd.Args()
	if len(args) < 2 {
		return false
	}
	switch strings.ToLower(fmt.Sprint(args[0])) {
	case "evalsha":
		return args[1] == deleteSubjectLua.Hash()
	case "eval":
		return args[1] == deleteSubjectScript
	}
	return false
}

func TestRedisDeleteAllForSubjectConcurrentCreate(t *testing.T) {
	for _, before := range []bool{true, false} {
		t.Run(fmt.Sprintf("create_before_delete=%v", before), func(t *testing.T) {
			mr := miniredis.RunT(t)
			ctx := context.Background()
			clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
			exp := clock.now.Add(time.Hour)

			other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = other.Close() })
			otherStore := NewRedisStore(other, "ta", clock.Now)

			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			rdb.AddHook(&interleaveHook{before: before, fire: func() {
				if _, err := otherStore.Create(ctx, "u1", "racer", exp); err != nil {
					t.Errorf("concurrent create: %v", err)
				}
			}})
			store := NewRedisStore(rdb, "ta", clock.Now)

			if _, err := store.Create(ctx, "u1", "first", exp); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.DeleteAllForSubject(ctx, "u1"); err != nil {
				t.Fatalf("delete all: %v", err)
			}

			if _, err := store.Find(ctx, "first"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected first session removed, got %v", err)
			}

			// A surviving session must stay reachable through the index.
			if _, err := store.Find(ctx, "racer"); err == nil {
				list, err := store.ListBySubject(ctx, "u1")
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				if len(list) != 1 || list[0].TokenHash != HashToken("racer") {
					t.Fatalf("surviving session is not indexed: %+v", list)
				}
			}

			if err := store.DeleteAllForSubject(ctx, "u1"); err != nil {
				t.Fatalf("second delete all: %v", err)
			}
			if _, err := store.Find(ctx, "racer"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("session outlived two DeleteAllForSubject calls: %v", err)
			}
		})
	}
}
