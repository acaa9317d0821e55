// Package syncer implements the optimistic autosave loop used for editable
// study collections: local edits apply synchronously, a trailing debounce
// coalesces bursts into single writes, and remote snapshots arriving inside
// a short grace window after a local write are dropped so a stale echo
// cannot clobber the edit. This is a timing heuristic, not conflict
// resolution: two clients writing inside the same window stay
// last-write-wins at the store.
package syncer

import (
	"context"
	"sync"
	"time"
)

// State is the save-cycle status surfaced to the UI.
type State string

const (
	StateIdle   State = "idle"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultGraceWindow  = 2 * time.Second
	DefaultSavedDisplay = 2 * time.Second
)

// Sink persists a snapshot. It is called at most once at a time.
type Sink[T any] func(ctx context.Context, value T) error

// Options configure a Controller. Equal is required: it distinguishes a real
// edit from the initial-load echo so unchanged values never hit the network.
type Options[T any] struct {
	Debounce     time.Duration
	GraceWindow  time.Duration
	SavedDisplay time.Duration

	Equal func(a, b T) bool
	// Clone guards the stored value against post-hoc mutation by callers.
	// Identity when nil.
	Clone func(T) T

	// OnState is invoked on every state change, under the controller lock:
	// it must not call back into the controller.
	OnState func(State, error)
}

// Controller holds the locally editable value for one collection and keeps
// it reconciled with the remote document.
type Controller[T any] struct {
	mu sync.Mutex

	value    T
	baseline T // last state known to match the store

	state   State
	lastErr error

	debounce     time.Duration
	grace        time.Duration
	savedDisplay time.Duration

	equal   func(a, b T) bool
	clone   func(T) T
	sink    Sink[T]
	onState func(State, error)

	debounceTimer *time.Timer
	savedTimer    *time.Timer

	saving bool
	// settled signals waiters whenever an in-flight write completes.
	settled        *sync.Cond
	lastLocalWrite time.Time

	closed bool
}

// New builds a Controller seeded with the initial remote value.
func New[T any](initial T, sink Sink[T], opts Options[T]) *Controller[T] {
	if opts.Equal == nil {
		panic("syncer: Options.Equal is required")
	}
	clone := opts.Clone
	if clone == nil {
		clone = func(v T) T { return v }
	}
	c := &Controller[T]{
		value:        clone(initial),
		baseline:     clone(initial),
		state:        StateIdle,
		debounce:     opts.Debounce,
		grace:        opts.GraceWindow,
		savedDisplay: opts.SavedDisplay,
		equal:        opts.Equal,
		clone:        clone,
		sink:         sink,
		onState:      opts.OnState,
	}
	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.grace <= 0 {
		c.grace = DefaultGraceWindow
	}
	if c.savedDisplay <= 0 {
		c.savedDisplay = DefaultSavedDisplay
	}
	c.settled = sync.NewCond(&c.mu)
	return c
}

// Value returns a copy of the current local state.
func (c *Controller[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clone(c.value)
}

// State returns the current save-cycle state and the last save error, if any.
func (c *Controller[T]) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// LastLocalWrite reports when the most recent write was issued; zero when no
// write has happened yet. Lets callers surface grace-window races.
func (c *Controller[T]) LastLocalWrite() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLocalWrite
}

// Set replaces the local value. The UI is never gated on the network: the
// value is visible immediately and the write happens after the debounce
// window. Setting a value equal to the baseline schedules nothing.
func (c *Controller[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.value = c.clone(value)
	if c.equal(c.value, c.baseline) {
		return
	}
	c.scheduleLocked()
}

// Update applies an in-place mutation to the local value.
func (c *Controller[T]) Update(mutate func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.value = mutate(c.value)
	if c.equal(c.value, c.baseline) {
		return
	}
	c.scheduleLocked()
}

// ApplyRemote reconciles an authoritative snapshot from the subscription.
// Inside the grace window after a local write the snapshot is dropped; it is
// assumed to be an echo of pre-write state. Applied snapshots become the new
// baseline and cancel any pending write.
func (c *Controller[T]) ApplyRemote(snapshot T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if !c.lastLocalWrite.IsZero() && time.Since(c.lastLocalWrite) < c.grace {
		return false
	}
	c.value = c.clone(snapshot)
	c.baseline = c.clone(snapshot)
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	return true
}

// Flush performs any pending write synchronously, waiting out an in-flight
// save first so edits made during the flight are not dropped. Used on session
// close and in tests that need determinism.
func (c *Controller[T]) Flush(ctx context.Context) error {
	c.mu.Lock()
	for c.saving {
		c.settled.Wait()
	}
	if c.closed || c.equal(c.value, c.baseline) {
		c.mu.Unlock()
		return nil
	}
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.mu.Unlock()
	return c.save(ctx)
}

// Close stops all timers. Pending unsaved edits are not flushed.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.savedTimer != nil {
		c.savedTimer.Stop()
		c.savedTimer = nil
	}
}

// scheduleLocked (re)arms the trailing debounce timer. Called with mu held.
func (c *Controller[T]) scheduleLocked() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.debounce, func() {
		_ = c.save(context.Background())
	})
}

func (c *Controller[T]) save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.saving {
		c.mu.Unlock()
		return nil
	}
	if c.equal(c.value, c.baseline) {
		c.mu.Unlock()
		return nil
	}
	snap := c.clone(c.value)
	c.saving = true
	c.lastLocalWrite = time.Now()
	c.setStateLocked(StateSaving, nil)
	c.mu.Unlock()

	err := c.sink(ctx, snap)

	c.mu.Lock()
	c.saving = false
	c.settled.Broadcast()
	if err != nil {
		// Keep the unsaved value; retry happens on the next debounce cycle.
		c.setStateLocked(StateError, err)
		c.mu.Unlock()
		return err
	}
	c.baseline = snap
	c.setStateLocked(StateSaved, nil)
	if c.savedTimer != nil {
		c.savedTimer.Stop()
	}
	c.savedTimer = time.AfterFunc(c.savedDisplay, c.revertSaved)
	// Edits made while the write was in flight fire a follow-up cycle.
	if !c.equal(c.value, c.baseline) && !c.closed {
		c.scheduleLocked()
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller[T]) revertSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateSaved {
		return
	}
	c.setStateLocked(StateIdle, nil)
}

func (c *Controller[T]) setStateLocked(s State, err error) {
	c.state = s
	c.lastErr = err
	if c.onState != nil {
		c.onState(s, err)
	}
}
