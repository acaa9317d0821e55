package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink captures every write and can be told to fail.
type recordingSink struct {
	mu     sync.Mutex
	writes [][]string
	err    error
}

func (s *recordingSink) save(ctx context.Context, value []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := append([]string(nil), value...)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *recordingSink) last() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return nil
	}
	return s.writes[len(s.writes)-1]
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneStrings(v []string) []string { return append([]string(nil), v...) }

func newTestController(sink *recordingSink, debounce, grace time.Duration) *Controller[[]string] {
	return New([]string{"a"}, sink.save, Options[[]string]{
		Debounce:     debounce,
		GraceWindow:  grace,
		SavedDisplay: 20 * time.Millisecond,
		Equal:        stringsEqual,
		Clone:        cloneStrings,
	})
}

func waitForWrites(t *testing.T, sink *recordingSink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d writes, have %d", want, sink.count())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, 30*time.Millisecond, time.Hour)
	defer c.Close()

	for _, v := range []string{"b", "c", "d"} {
		c.Set([]string{v})
		time.Sleep(2 * time.Millisecond) // well inside the window
	}

	waitForWrites(t, sink, 1)
	time.Sleep(60 * time.Millisecond)
	if n := sink.count(); n != 1 {
		t.Fatalf("expected one coalesced write, got %d", n)
	}
	if got := sink.last(); !stringsEqual(got, []string{"d"}) {
		t.Errorf("expected final state written, got %v", got)
	}
}

func TestSpacedEditsEachWrite(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, 10*time.Millisecond, time.Hour)
	defer c.Close()

	c.Set([]string{"b"})
	waitForWrites(t, sink, 1)
	c.Set([]string{"c"})
	waitForWrites(t, sink, 2)
	c.Set([]string{"d"})
	waitForWrites(t, sink, 3)
}

func TestUnchangedValueWritesNothing(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, 10*time.Millisecond, time.Hour)
	defer c.Close()

	// Initial-load echo: same content as the seeded baseline.
	c.Set([]string{"a"})
	time.Sleep(40 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Errorf("expected no write for unchanged value, got %d", n)
	}
}

func TestGraceWindowSuppressesEcho(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, 5*time.Millisecond, 150*time.Millisecond)
	defer c.Close()

	c.Set([]string{"edited"})
	waitForWrites(t, sink, 1)

	// A stale echo inside the grace window must be dropped.
	if applied := c.ApplyRemote([]string{"a"}); applied {
		t.Error("expected snapshot inside grace window to be dropped")
	}
	if got := c.Value(); !stringsEqual(got, []string{"edited"}) {
		t.Errorf("local state clobbered by echo: %v", got)
	}

	// After the window elapses, remote snapshots apply.
	time.Sleep(180 * time.Millisecond)
	if applied := c.ApplyRemote([]string{"remote"}); !applied {
		t.Error("expected snapshot after grace window to apply")
	}
	if got := c.Value(); !stringsEqual(got, []string{"remote"}) {
		t.Errorf("expected remote state applied, got %v", got)
	}
}

func TestRemoteBeforeAnyWriteApplies(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, time.Hour, 150*time.Millisecond)
	defer c.Close()

	if applied := c.ApplyRemote([]string{"remote"}); !applied {
		t.Error("expected snapshot to apply when no local write has happened")
	}
}

func TestSaveStateLifecycle(t *testing.T) {
	sink := &recordingSink{}
	var mu sync.Mutex
	var states []State
	c := New([]string{"a"}, sink.save, Options[[]string]{
		Debounce:     5 * time.Millisecond,
		GraceWindow:  time.Hour,
		SavedDisplay: 20 * time.Millisecond,
		Equal:        stringsEqual,
		Clone:        cloneStrings,
		OnState: func(s State, _ error) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	defer c.Close()

	c.Set([]string{"b"})
	waitForWrites(t, sink, 1)
	time.Sleep(60 * time.Millisecond) // let saved display window elapse

	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()
	want := []State{StateSaving, StateSaved, StateIdle}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestSaveErrorKeepsValueAndRetriesNextCycle(t *testing.T) {
	sink := &recordingSink{}
	sink.fail(errors.New("store down"))
	c := newTestController(sink, 10*time.Millisecond, time.Hour)
	defer c.Close()

	c.Set([]string{"b"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, err := c.State(); s == StateError && err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("controller never entered error state")
		}
		time.Sleep(time.Millisecond)
	}
	if got := c.Value(); !stringsEqual(got, []string{"b"}) {
		t.Errorf("unsaved edit discarded on error: %v", got)
	}

	// No automatic retry: nothing happens until the next edit.
	time.Sleep(50 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Errorf("expected no successful writes yet, got %d", n)
	}

	sink.fail(nil)
	c.Set([]string{"c"})
	waitForWrites(t, sink, 1)
	if got := sink.last(); !stringsEqual(got, []string{"c"}) {
		t.Errorf("retry wrote %v", got)
	}
}

func TestFlushWritesPendingImmediately(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(sink, time.Hour, time.Hour)
	defer c.Close()

	c.Set([]string{"b"})
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := sink.count(); n != 1 {
		t.Fatalf("expected flush to write, got %d writes", n)
	}
	// A second flush with nothing dirty is a no-op.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if n := sink.count(); n != 1 {
		t.Errorf("expected no duplicate write, got %d", n)
	}
}

func TestEditDuringFlightTriggersFollowUpWrite(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var writes [][]string
	sink := func(ctx context.Context, value []string) error {
		mu.Lock()
		first := len(writes) == 0
		writes = append(writes, append([]string(nil), value...))
		mu.Unlock()
		if first {
			<-block
		}
		return nil
	}
	c := New([]string{"a"}, sink, Options[[]string]{
		Debounce:    5 * time.Millisecond,
		GraceWindow: time.Hour,
		Equal:       stringsEqual,
		Clone:       cloneStrings,
	})
	defer c.Close()

	c.Set([]string{"b"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(writes)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first write never started")
		}
		time.Sleep(time.Millisecond)
	}

	c.Set([]string{"c"}) // arrives while the first write is in flight
	close(block)

	deadline = time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(writes)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("follow-up write never happened")
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	last := writes[len(writes)-1]
	mu.Unlock()
	if !stringsEqual(last, []string{"c"}) {
		t.Errorf("follow-up write carried %v, want [c]", last)
	}
}

func TestFlushWaitsOutInFlightWrite(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var writes [][]string
	sink := func(ctx context.Context, value []string) error {
		mu.Lock()
		first := len(writes) == 0
		writes = append(writes, append([]string(nil), value...))
		mu.Unlock()
		if first {
			<-block
		}
		return nil
	}
	c := New([]string{"a"}, sink, Options[[]string]{
		Debounce:    5 * time.Millisecond,
		GraceWindow: time.Hour,
		Equal:       stringsEqual,
		Clone:       cloneStrings,
	})
	defer c.Close()

	c.Set([]string{"b"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(writes)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first write never started")
		}
		time.Sleep(time.Millisecond)
	}

	c.Set([]string{"c"}) // arrives while the first write is in flight

	flushed := make(chan error, 1)
	go func() { flushed <- c.Flush(context.Background()) }()

	select {
	case <-flushed:
		t.Fatal("Flush returned before the in-flight write settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	if err := <-flushed; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes after flush, got %d", len(writes))
	}
	if !stringsEqual(writes[1], []string{"c"}) {
		t.Errorf("second write = %v, want [c]", writes[1])
	}
}
