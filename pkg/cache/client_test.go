package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
)

// countingSearcher counts calls and returns a fresh result (or a
// scripted error) per call.
type countingSearcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSearcher) Search(_ context.Context, req ghapi.Request) (*ghapi.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ghapi.Result{TotalCount: s.calls}, nil
}

func (s *countingSearcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func repoRequest(query string) ghapi.Request {
	return ghapi.Request{Endpoint: ghapi.EndpointRepositories, Query: query}
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}
	client := New(base, Options{TTL: time.Minute, Clock: fake})

	first, err := client.Search(context.Background(), repoRequest("language:go"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Search(context.Background(), repoRequest("language:go"))
	if err != nil {
		t.Fatal(err)
	}

	if base.count() != 1 {
		t.Fatalf("two identical searches made %d network calls, want 1", base.count())
	}
	if first.TotalCount != second.TotalCount {
		t.Error("cache returned a different result than the original")
	}

	stats := client.Stats()
	if stats.HitCount != 1 || stats.MissCount != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestNormalizedRequestsShareEntry(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}
	client := New(base, Options{TTL: time.Minute, Clock: fake})

	if _, err := client.Search(context.Background(), repoRequest("x")); err != nil {
		t.Fatal(err)
	}
	// Explicit defaults normalize to the same key.
	withDefaults := repoRequest("x")
	withDefaults.PerPage = 30
	withDefaults.Page = 1
	if _, err := client.Search(context.Background(), withDefaults); err != nil {
		t.Fatal(err)
	}

	if base.count() != 1 {
		t.Errorf("default-stripped request missed the cache: %d calls", base.count())
	}
}

func TestExpiryTriggersRefetch(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}
	client := New(base, Options{TTL: time.Minute, Clock: fake})

	if _, err := client.Search(context.Background(), repoRequest("x")); err != nil {
		t.Fatal(err)
	}
	fake.Advance(61 * time.Second)
	if _, err := client.Search(context.Background(), repoRequest("x")); err != nil {
		t.Fatal(err)
	}

	if base.count() != 2 {
		t.Errorf("expired entry served from cache: %d calls, want 2", base.count())
	}
}

func TestErrorsNotCached(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{err: &ghapi.TimeoutError{URL: "x", Err: errors.New("deadline")}}
	client := New(base, Options{TTL: time.Minute, Clock: fake})

	if _, err := client.Search(context.Background(), repoRequest("x")); err == nil {
		t.Fatal("expected error")
	}

	base.err = nil
	if _, err := client.Search(context.Background(), repoRequest("x")); err != nil {
		t.Fatalf("second attempt after failure: %v", err)
	}
	if base.count() != 2 {
		t.Errorf("failure was cached: %d calls, want 2", base.count())
	}
}

func TestLRUEviction(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}
	client := New(base, Options{TTL: time.Hour, MaxSize: 2, Clock: fake})

	ctx := context.Background()
	for _, query := range []string{"a", "b", "c"} {
		if _, err := client.Search(ctx, repoRequest(query)); err != nil {
			t.Fatal(err)
		}
	}

	// a was evicted as least recently used; b and c are retrievable.
	calls := base.count()
	if _, err := client.Search(ctx, repoRequest("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Search(ctx, repoRequest("c")); err != nil {
		t.Fatal(err)
	}
	if base.count() != calls {
		t.Errorf("b or c missed after inserting c: %d extra calls", base.count()-calls)
	}
	if _, err := client.Search(ctx, repoRequest("a")); err != nil {
		t.Fatal(err)
	}
	if base.count() != calls+1 {
		t.Error("a should have been evicted and refetched")
	}
}

func TestClearResetsCountersAndEntries(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}
	client := New(base, Options{TTL: time.Hour, Clock: fake})

	ctx := context.Background()
	if _, err := client.Search(ctx, repoRequest("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Search(ctx, repoRequest("x")); err != nil {
		t.Fatal(err)
	}

	if err := client.Clear(); err != nil {
		t.Fatal(err)
	}

	stats := client.Stats()
	if stats.Size != 0 || stats.HitCount != 0 || stats.MissCount != 0 {
		t.Errorf("stats after clear = %+v, want zeros", stats)
	}

	if _, err := client.Search(ctx, repoRequest("x")); err != nil {
		t.Fatal(err)
	}
	if base.count() != 2 {
		t.Error("entry survived Clear")
	}
}

func TestStrategyTTLs(t *testing.T) {
	if StrategyConservative.TTL() >= StrategyModerate.TTL() {
		t.Error("conservative TTL should be shorter than moderate")
	}
	if StrategyModerate.TTL() >= StrategyAggressive.TTL() {
		t.Error("moderate TTL should be shorter than aggressive")
	}
}

func TestPersistentTierPromotion(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	base := &countingSearcher{}

	persistent, err := NewSQLiteStore(t.TempDir()+"/cache.db", 10)
	if err != nil {
		t.Fatal(err)
	}
	client := New(base, Options{TTL: time.Hour, Persistent: persistent, Clock: fake})
	defer func() {
		_ = client.Close()
	}()

	ctx := context.Background()
	if _, err := client.Search(ctx, repoRequest("x")); err != nil {
		t.Fatal(err)
	}

	// Drop the memory tier, simulating a later lookup in a fresh
	// process: the persistent tier must answer.
	if err := client.memory.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Search(ctx, repoRequest("x")); err != nil {
		t.Fatal(err)
	}
	if base.count() != 1 {
		t.Errorf("persistent tier missed: %d network calls, want 1", base.count())
	}

	// The hit was promoted back into memory.
	if client.memory.Len() != 1 {
		t.Error("persistent hit was not promoted to the memory tier")
	}
}

func TestSQLiteStoreEvictionAndExpiry(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir()+"/cache.db", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = store.Close()
	}()

	now := time.Unix(1000, 0)
	for _, key := range []string{"a", "b", "c"} {
		entry := &Entry{
			Key:      key,
			Result:   &ghapi.Result{TotalCount: 1},
			StoredAt: now,
			TTL:      time.Minute,
		}
		if err := store.Set(entry); err != nil {
			t.Fatal(err)
		}
		// Stagger stored_at so recency ordering is deterministic.
		now = now.Add(time.Second)
	}

	if store.Len() != 2 {
		t.Errorf("store holds %d entries, want capacity bound of 2", store.Len())
	}
	if _, ok := store.Get("a", now); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := store.Get("c", now); !ok {
		t.Error("newest entry missing")
	}

	// Expiry: past the TTL the entry is gone.
	if _, ok := store.Get("c", now.Add(2*time.Minute)); ok {
		t.Error("expired entry returned")
	}
}
