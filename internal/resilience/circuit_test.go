package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(opts ...CircuitOption) *CircuitRegistry {
	return NewCircuitRegistry(append([]CircuitOption{WithCircuitLogger(zerolog.Nop())}, opts...)...)
}

func TestCircuitRegistry_UnknownServiceFailsOpen(t *testing.T) {
	r := newTestRegistry()

	if !r.IsServiceAvailable("never-registered") {
		t.Error("unregistered service should be available")
	}
	info := r.GetCircuitInfo("never-registered")
	if info.State != CircuitUnknown {
		t.Errorf("State = %q, want %q", info.State, CircuitUnknown)
	}
	if !info.IsAvailable {
		t.Error("IsAvailable = false, want true")
	}
	if len(r.GetAllCircuits()) != 0 {
		t.Error("reading an unknown service must not register it")
	}
}

func TestCircuitRegistry_RegisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()

	r.RegisterCircuit("graph")
	r.RecordFailure("graph")
	r.RecordFailure("graph")
	r.RegisterCircuit("graph")

	info := r.GetCircuitInfo("graph")
	if info.State != CircuitClosed {
		t.Errorf("State = %q, want %q", info.State, CircuitClosed)
	}
	if info.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", info.ConsecutiveFailures)
	}
}

func TestCircuitRegistry_CaseInsensitive(t *testing.T) {
	r := newTestRegistry()

	r.RegisterCircuit("Dataverse")
	r.RecordFailure("DATAVERSE")
	r.RecordFailure("dataverse")

	if got := r.GetCircuitInfo("DataVerse").ConsecutiveFailures; got != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", got)
	}
	if n := len(r.GetAllCircuits()); n != 1 {
		t.Errorf("expected one circuit, got %d", n)
	}
}

func TestCircuitRegistry_OpenRequiresBreakDuration(t *testing.T) {
	r := newTestRegistry()

	if err := r.RecordStateChange("graph", CircuitOpen, 0); err == nil {
		t.Fatal("expected error opening circuit without break duration")
	}
	if err := r.RecordStateChange("graph", CircuitUnknown, time.Second); err == nil {
		t.Fatal("expected error for Unknown target state")
	}
}

func TestCircuitRegistry_StateTransitions(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(WithClock(clock.Now))

	r.RecordFailure("graph")
	r.RecordFailure("graph")

	if err := r.RecordStateChange("graph", CircuitOpen, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := r.GetCircuitInfo("graph")
	if info.State != CircuitOpen || info.IsAvailable {
		t.Fatalf("expected open and unavailable, got %+v", info)
	}
	if info.OpenUntil == nil || !info.OpenUntil.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("OpenUntil = %v, want now+1m", info.OpenUntil)
	}
	if r.IsServiceAvailable("graph") {
		t.Error("open circuit should not be available before openUntil")
	}

	if err := r.RecordStateChange("graph", CircuitHalfOpen, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsServiceAvailable("graph") {
		t.Error("half-open circuit should be available")
	}

	if err := r.RecordStateChange("graph", CircuitClosed, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info = r.GetCircuitInfo("graph")
	if info.State != CircuitClosed || info.ConsecutiveFailures != 0 || !info.IsAvailable {
		t.Errorf("expected closed with reset counter, got %+v", info)
	}
}

func TestCircuitRegistry_StateChangeRegistersImplicitly(t *testing.T) {
	r := newTestRegistry()

	if err := r.RecordStateChange("storage", CircuitHalfOpen, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.GetCircuitInfo("storage").State; got != CircuitHalfOpen {
		t.Errorf("State = %q, want %q", got, CircuitHalfOpen)
	}
}

func TestCircuitRegistry_FailureAndSuccessDoNotChangeState(t *testing.T) {
	r := newTestRegistry()

	for i := 0; i < 10; i++ {
		r.RecordFailure("graph")
	}
	info := r.GetCircuitInfo("graph")
	if info.State != CircuitClosed {
		t.Errorf("State = %q, want %q", info.State, CircuitClosed)
	}
	if info.ConsecutiveFailures != 10 {
		t.Errorf("ConsecutiveFailures = %d, want 10", info.ConsecutiveFailures)
	}

	if err := r.RecordStateChange("graph", CircuitOpen, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info = r.RecordSuccess("graph")
	if info.State != CircuitOpen {
		t.Errorf("RecordSuccess changed state to %q", info.State)
	}
	if info.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", info.ConsecutiveFailures)
	}
}

func TestCircuitRegistry_LazyExpiryToHalfOpen(t *testing.T) {
	r := newTestRegistry()

	if err := r.RecordStateChange("graph", CircuitOpen, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if !r.IsServiceAvailable("graph") {
		t.Fatal("expired open circuit should be available")
	}
	info := r.GetCircuitInfo("graph")
	if info.State != CircuitHalfOpen {
		t.Errorf("State = %q, want %q", info.State, CircuitHalfOpen)
	}
	if info.OpenUntil != nil {
		t.Errorf("OpenUntil = %v, want nil", info.OpenUntil)
	}
}

func TestCircuitRegistry_ExpiryVisibleInSnapshot(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(WithClock(clock.Now))

	if err := r.RecordStateChange("graph", CircuitOpen, 30*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(30 * time.Second)

	all := r.GetAllCircuits()
	if len(all) != 1 || all[0].State != CircuitHalfOpen {
		t.Errorf("expected single half-open circuit, got %+v", all)
	}
}

func TestCircuitRegistry_GetAllCircuitsSorted(t *testing.T) {
	r := newTestRegistry()
	for _, name := range []string{"storage", "Dataverse", "graph", "auth"} {
		r.RegisterCircuit(name)
	}

	all := r.GetAllCircuits()
	want := []string{"auth", "Dataverse", "graph", "storage"}
	if len(all) != len(want) {
		t.Fatalf("got %d circuits, want %d", len(all), len(want))
	}
	for i, name := range want {
		if all[i].ServiceName != name {
			t.Errorf("all[%d] = %q, want %q", i, all[i].ServiceName, name)
		}
	}
}

func TestCircuitRegistry_StateListener(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var changes []CircuitState
	r := newTestRegistry(WithClock(clock.Now), WithStateListener(func(info CircuitInfo) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, info.State)
	}))

	_ = r.RecordStateChange("graph", CircuitOpen, time.Second)
	clock.Advance(2 * time.Second)
	r.IsServiceAvailable("graph")
	_ = r.RecordStateChange("graph", CircuitClosed, 0)

	mu.Lock()
	defer mu.Unlock()
	want := []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("changes[%d] = %q, want %q", i, changes[i], want[i])
		}
	}
}

func TestCircuitRegistry_ConcurrentFailures(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordFailure("graph")
				r.IsServiceAvailable("graph")
			}
		}()
	}
	wg.Wait()

	if got := r.GetCircuitInfo("graph").ConsecutiveFailures; got != 5000 {
		t.Errorf("ConsecutiveFailures = %d, want 5000", got)
	}
}
