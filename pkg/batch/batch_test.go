package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
)

// slowSearcher blocks each call until released, counting network
// calls per query.
type slowSearcher struct {
	mu      sync.Mutex
	calls   map[string]int
	block   chan struct{}
	failFor string
}

func newSlowSearcher() *slowSearcher {
	return &slowSearcher{calls: make(map[string]int), block: make(chan struct{})}
}

func (s *slowSearcher) Search(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	s.mu.Lock()
	s.calls[req.Query]++
	s.mu.Unlock()

	select {
	case <-s.block:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if req.Query == s.failFor {
		return nil, &ghapi.APIError{StatusCode: 500, Message: "boom"}
	}
	return &ghapi.Result{TotalCount: 1}, nil
}

func (s *slowSearcher) callsFor(query string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[query]
}

func request(query string) ghapi.Request {
	return ghapi.Request{Endpoint: ghapi.EndpointRepositories, Query: query}
}

func TestDedupSharesOneCall(t *testing.T) {
	base := newSlowSearcher()
	client := New(base, Options{Disabled: true})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*ghapi.Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Search(context.Background(), request("shared"))
		}(i)
	}

	// Let every caller attach to the single flight, then release it.
	time.Sleep(20 * time.Millisecond)
	close(base.block)
	wg.Wait()

	if got := base.callsFor("shared"); got != 1 {
		t.Fatalf("%d concurrent identical requests made %d network calls, want 1", callers, got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Error("callers received different results from the shared flight")
		}
	}
}

func TestDedupEntryRemovedAfterSettlement(t *testing.T) {
	base := newSlowSearcher()
	close(base.block)
	client := New(base, Options{Disabled: true})

	if _, err := client.Search(context.Background(), request("q")); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Search(context.Background(), request("q")); err != nil {
		t.Fatal(err)
	}

	// Sequential identical requests are separate network calls:
	// dedup is not caching.
	if got := base.callsFor("q"); got != 2 {
		t.Errorf("sequential requests made %d calls, want 2", got)
	}
}

func TestDedupSharesFailure(t *testing.T) {
	base := newSlowSearcher()
	base.failFor = "bad"
	client := New(base, Options{Disabled: true})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Search(context.Background(), request("bad"))
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(base.block)
	wg.Wait()

	var apiErr *ghapi.APIError
	for i, err := range errs {
		if !errors.As(err, &apiErr) {
			t.Errorf("caller %d got %v, want shared APIError", i, err)
		}
	}
	if got := base.callsFor("bad"); got != 1 {
		t.Errorf("failure path made %d calls, want 1", got)
	}
}

func TestCancelledWaiterDoesNotCancelFlight(t *testing.T) {
	base := newSlowSearcher()
	client := New(base, Options{Disabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := client.Search(ctx, request("shared"))
		cancelled <- err
	}()

	attached := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		close(attached)
		_, err := client.Search(context.Background(), request("shared"))
		result <- err
	}()

	<-attached
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-cancelled; err != context.Canceled {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	close(base.block)
	if err := <-result; err != nil {
		t.Fatalf("surviving caller failed after sibling cancelled: %v", err)
	}
}

func TestParallelSearchOrdering(t *testing.T) {
	base := newSlowSearcher()
	close(base.block)

	client := New(base, Options{Disabled: true})
	base.failFor = "qB"

	outcomes := client.ParallelSearch(context.Background(), ghapi.EndpointRepositories,
		[]string{"qA", "qB", "qC"}, 2)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Data == nil {
		t.Error("outcome[0] should carry qA's success")
	}
	if outcomes[1].Err == nil {
		t.Error("outcome[1] should carry qB's failure")
	}
	if outcomes[2].Err != nil || outcomes[2].Data == nil {
		t.Error("outcome[2] should carry qC's success")
	}
}

func TestBatchWindowGroupsRequests(t *testing.T) {
	base := newSlowSearcher()
	close(base.block)
	client := New(base, Options{Window: 30 * time.Millisecond, MaxBatchSize: 10})

	var wg sync.WaitGroup
	start := time.Now()
	for _, query := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if _, err := client.Search(context.Background(), request(query)); err != nil {
				t.Errorf("batched %q: %v", query, err)
			}
		}(query)
	}
	wg.Wait()

	// All three dispatched after a single shared window, not three
	// sequential windows.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("batched dispatch took %v", elapsed)
	}
	for _, query := range []string{"a", "b", "c"} {
		if got := base.callsFor(query); got != 1 {
			t.Errorf("query %q made %d calls, want 1", query, got)
		}
	}
}

func TestStaleWindowTimerDoesNotFlushNextGroup(t *testing.T) {
	base := newSlowSearcher()
	close(base.block)
	fake := clock.NewFake(time.Now())
	client := New(base, Options{Window: 100 * time.Millisecond, MaxBatchSize: 2, Clock: fake})

	// Fill a group; it dispatches early on size, leaving its window
	// timer armed.
	var wg sync.WaitGroup
	for _, query := range []string{"a", "b"} {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if _, err := client.Search(context.Background(), request(query)); err != nil {
				t.Errorf("batched %q: %v", query, err)
			}
		}(query)
	}
	wg.Wait()

	// A third request opens a fresh group at t0+50ms with its own
	// 100ms window.
	time.Sleep(20 * time.Millisecond)
	fake.Advance(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := client.Search(context.Background(), request("c"))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// The first group's timer fires at t0+100ms. It must not flush
	// the fresh group half a window early.
	fake.Advance(50 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("stale timer flushed the next group before its window elapsed")
	default:
	}
	if got := base.callsFor("c"); got != 0 {
		t.Fatalf("query dispatched %d times before its window elapsed", got)
	}

	// The fresh group's own timer fires at t0+150ms.
	fake.Advance(100 * time.Millisecond)
	if err := <-done; err != nil {
		t.Fatalf("windowed dispatch failed: %v", err)
	}
}

func TestFullBatchDispatchesEarly(t *testing.T) {
	base := newSlowSearcher()
	close(base.block)
	// A window far longer than the test timeout proves dispatch was
	// triggered by size, not the timer.
	client := New(base, Options{Window: time.Hour, MaxBatchSize: 2})

	var wg sync.WaitGroup
	for _, query := range []string{"a", "b"} {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if _, err := client.Search(context.Background(), request(query)); err != nil {
				t.Errorf("batched %q: %v", query, err)
			}
		}(query)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("full batch did not dispatch before the window elapsed")
	}
}
