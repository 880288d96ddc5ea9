// Package kvtest checks that a kv.Store honours the store contract: values
// round-trip, set is an upsert, zero timeouts never expire, expired keys are
// invisible to both Get and Exists and are removed by the read that notices
// them, and Delete is idempotent.
package kvtest

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/skvdb/kv"
)

// Instance is one store under test together with its time control.
type Instance struct {
	Store kv.Store
	// Advance moves the store's notion of time forward. Stores on a real
	// clock sleep.
	Advance func(d time.Duration)
	// Unit scales every timeout in the suite. Fake clocks use time.Second;
	// real clocks use something short.
	Unit time.Duration
	// RawHas reports whether the backend still physically holds key. Nil
	// skips the raw storage assertions.
	RawHas func(key string) bool
}

// Factory builds a fresh Instance. The suite closes the store.
type Factory func(t *testing.T) Instance

// Run executes the whole suite against stores built by newInstance.
func Run(t *testing.T, newInstance Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, Instance, string)
	}{
		{"RoundTrip", testRoundTrip},
		{"UpsertWithoutTimeout", testUpsertWithoutTimeout},
		{"ExpirationBoundary", testExpirationBoundary},
		{"ZeroTimeout", testZeroTimeout},
		{"OverwriteExpired", testOverwriteExpired},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"ExistsMatchesGet", testExistsMatchesGet},
		{"SessionScenario", testSessionScenario},
		{"ConcurrentSetGet", testConcurrentSetGet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newInstance(t)
			if inst.Unit <= 0 {
				inst.Unit = time.Second
			}
			t.Cleanup(func() { _ = inst.Store.Close() })
			prefix := fmt.Sprintf("kvtest:%d:", time.Now().UnixNano())
			tt.fn(t, inst, prefix)
		})
	}
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

func mustSet(t *testing.T, s kv.Store, key string, v any, timeout time.Duration) {
	t.Helper()
	if err := s.Set(ctx(t), key, v, timeout); err != nil {
		t.Fatalf("Set(%q) error = %v", key, err)
	}
}

func mustGet(t *testing.T, s kv.Store, key string) (any, bool) {
	t.Helper()
	v, ok, err := kv.GetValue(ctx(t), s, key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return v, ok
}

func mustExist(t *testing.T, s kv.Store, key string) bool {
	t.Helper()
	ok, err := s.Exists(ctx(t), key)
	if err != nil {
		t.Fatalf("Exists(%q) error = %v", key, err)
	}
	return ok
}

func testRoundTrip(t *testing.T, inst Instance, prefix string) {
	values := map[string]any{
		"string": "hello",
		"number": float64(12.5),
		"bool":   true,
		"null":   nil,
		"list":   []any{"a", int64(1), []any{true}},
		"map": map[string]any{
			"user":  "alice",
			"roles": []any{"admin", "ops"},
			"prefs": map[string]any{"theme": "dark"},
		},
	}
	for name, v := range values {
		key := prefix + name
		mustSet(t, inst.Store, key, v, 0)
		got, ok := mustGet(t, inst.Store, key)
		if !ok {
			t.Fatalf("Get(%q) missed", key)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("Get(%q) = %#v, want %#v", key, got, v)
		}
	}
}

func testUpsertWithoutTimeout(t *testing.T, inst Instance, prefix string) {
	key := prefix + "upsert"
	v := map[string]any{"n": int64(1)}
	mustSet(t, inst.Store, key, v, 0)
	mustSet(t, inst.Store, key, v, 0)
	inst.Advance(5 * inst.Unit)

	got, ok := mustGet(t, inst.Store, key)
	if !ok || !reflect.DeepEqual(got, v) {
		t.Fatalf("Get() = %#v, %v; want %#v", got, ok, v)
	}
	if !mustExist(t, inst.Store, key) {
		t.Fatalf("Exists() = false for a key without timeout")
	}
}

func testExpirationBoundary(t *testing.T, inst Instance, prefix string) {
	key := prefix + "ttl"
	mustSet(t, inst.Store, key, "v", inst.Unit)

	if got, ok := mustGet(t, inst.Store, key); !ok || got != "v" {
		t.Fatalf("Get() right after Set = %#v, %v", got, ok)
	}

	inst.Advance(inst.Unit + inst.Unit/2)

	if got, ok := mustGet(t, inst.Store, key); ok {
		t.Fatalf("Get() after timeout = %#v; want absent", got)
	}
	if mustExist(t, inst.Store, key) {
		t.Fatalf("Exists() after timeout = true")
	}
}

func testZeroTimeout(t *testing.T, inst Instance, prefix string) {
	zero, none := prefix+"zero", prefix+"none"
	mustSet(t, inst.Store, zero, "v", 0)
	mustSet(t, inst.Store, none, "v", 0*time.Second)
	inst.Advance(5 * inst.Unit)

	for _, key := range []string{zero, none} {
		if _, ok := mustGet(t, inst.Store, key); !ok {
			t.Fatalf("Get(%q) missed: zero timeout must never expire", key)
		}
	}
}

func testOverwriteExpired(t *testing.T, inst Instance, prefix string) {
	key := prefix + "overwrite"
	mustSet(t, inst.Store, key, "old", inst.Unit)
	inst.Advance(2 * inst.Unit)
	mustSet(t, inst.Store, key, "new", 0)

	if got, ok := mustGet(t, inst.Store, key); !ok || got != "new" {
		t.Fatalf("Get() = %#v, %v; want new", got, ok)
	}
}

func testDeleteIdempotent(t *testing.T, inst Instance, prefix string) {
	key := prefix + "delete"
	for i := 0; i < 2; i++ {
		if err := inst.Store.Delete(ctx(t), key); err != nil {
			t.Fatalf("Delete() of absent key #%d error = %v", i, err)
		}
	}
	mustSet(t, inst.Store, key, "v", 0)
	for i := 0; i < 2; i++ {
		if err := inst.Store.Delete(ctx(t), key); err != nil {
			t.Fatalf("Delete() #%d error = %v", i, err)
		}
	}
	if _, ok := mustGet(t, inst.Store, key); ok {
		t.Fatalf("Get() after Delete hit")
	}
}

func testExistsMatchesGet(t *testing.T, inst Instance, prefix string) {
	absent := prefix + "absent"
	live := prefix + "live"
	forever := prefix + "forever"
	short := prefix + "short"
	mustSet(t, inst.Store, live, "v", 10*inst.Unit)
	mustSet(t, inst.Store, forever, "v", 0)
	mustSet(t, inst.Store, short, "v", inst.Unit)

	check := func(stage string) {
		for _, key := range []string{absent, live, forever, short} {
			exists := mustExist(t, inst.Store, key)
			_, found := mustGet(t, inst.Store, key)
			if exists != found {
				t.Fatalf("%s: Exists(%q) = %v but Get found = %v", stage, key, exists, found)
			}
		}
	}
	check("before expiry")
	inst.Advance(2 * inst.Unit)
	check("after short expiry")
	if mustExist(t, inst.Store, short) {
		t.Fatalf("short-lived key still exists")
	}
	if !mustExist(t, inst.Store, live) {
		t.Fatalf("long-lived key vanished")
	}
}

func testSessionScenario(t *testing.T, inst Instance, prefix string) {
	key := prefix + "session:42"
	mustSet(t, inst.Store, key, map[string]any{"user": "alice"}, 60*inst.Unit)

	if !mustExist(t, inst.Store, key) {
		t.Fatalf("Exists() = false right after Set")
	}

	inst.Advance(61 * inst.Unit)

	if got, ok := mustGet(t, inst.Store, key); ok {
		t.Fatalf("Get() after 61 units = %#v; want absent", got)
	}
	if inst.RawHas != nil && inst.RawHas(key) {
		t.Fatalf("raw storage still holds %q", key)
	}
}

func testConcurrentSetGet(t *testing.T, inst Instance, prefix string) {
	const workers = 8
	const opsPerWorker = 25

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("%sconcurrent:%d:%d", prefix, worker, i)
				if err := inst.Store.Set(c, key, key, 0); err != nil {
					errCh <- fmt.Errorf("worker %d set failed: %w", worker, err)
					return
				}
				var got string
				ok, err := inst.Store.Get(c, key, &got)
				if err != nil || !ok || got != key {
					errCh <- fmt.Errorf("worker %d get %q = %q, %v, %v", worker, key, got, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent op failed: %v", err)
	}
}
