package breaker

import (
	"testing"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
)

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *clock.Fake) {
	fake := clock.NewFake(time.Unix(1000, 0))
	return NewBreaker(ghapi.EndpointCode, threshold, timeout, fake), fake
}

func TestOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("closed breaker rejected call %d: %v", i, err)
		}
		b.RecordFailure()
	}
	if b.Snapshot().State != StateClosed {
		t.Fatal("breaker opened before threshold")
	}

	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordFailure()

	if b.Snapshot().State != StateOpen {
		t.Fatal("breaker still closed after threshold failures")
	}
	if err := b.Allow(); !ghapi.IsCircuitOpen(err) {
		t.Fatalf("open breaker allowed a call: %v", err)
	}
}

func TestSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.Snapshot().State != StateClosed {
		t.Fatal("non-consecutive failures opened the breaker")
	}
}

func TestHalfOpenTrialSuccessCloses(t *testing.T) {
	b, fake := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	if b.Snapshot().State != StateOpen {
		t.Fatal("expected open")
	}

	fake.Advance(61 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("trial call rejected after cool-down: %v", err)
	}
	if b.Snapshot().State != StateHalfOpen {
		t.Fatal("expected half-open during trial")
	}

	// A second call during the trial must be rejected.
	if err := b.Allow(); !ghapi.IsCircuitOpen(err) {
		t.Fatalf("half-open admitted a second call: %v", err)
	}

	b.RecordSuccess()
	if b.Snapshot().State != StateClosed {
		t.Fatal("successful trial did not close the breaker")
	}
}

func TestHalfOpenTrialFailureReopens(t *testing.T) {
	b, fake := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	fake.Advance(61 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.RecordFailure()

	if b.Snapshot().State != StateOpen {
		t.Fatal("failed trial did not reopen the breaker")
	}
	if err := b.Allow(); !ghapi.IsCircuitOpen(err) {
		t.Fatal("reopened breaker admitted a call before the new cool-down")
	}
}

func TestCircuitOpenErrorCarriesDeadline(t *testing.T) {
	b, fake := newTestBreaker(1, time.Minute)
	b.RecordFailure()

	err := b.Allow()
	openErr, ok := err.(*ghapi.CircuitOpenError)
	if !ok {
		t.Fatalf("got %T, want *ghapi.CircuitOpenError", err)
	}
	if openErr.Endpoint != ghapi.EndpointCode {
		t.Errorf("error names endpoint %s, want code", openErr.Endpoint)
	}
	if want := fake.Now().Add(time.Minute); !openErr.Until.Equal(want) {
		t.Errorf("Until = %v, want %v", openErr.Until, want)
	}
}

func TestSetIsolatesEndpoints(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	set := NewSet(1, time.Minute, fake)

	set.For(ghapi.EndpointCode).RecordFailure()

	if err := set.For(ghapi.EndpointCode).Allow(); !ghapi.IsCircuitOpen(err) {
		t.Error("code breaker should be open")
	}
	if err := set.For(ghapi.EndpointRepositories).Allow(); err != nil {
		t.Errorf("repositories breaker affected by code failures: %v", err)
	}
	if set.OpenCount() != 1 {
		t.Errorf("OpenCount = %d, want 1", set.OpenCount())
	}
}
