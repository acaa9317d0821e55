package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"costseg/internal/model"

	"github.com/google/uuid"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		var zero T
		return zero
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	id := uuid.New()
	stored := &model.Study{ID: id, Name: "12 Maple St"}
	b := NewBroker(func(ctx context.Context, got uuid.UUID) (*model.Study, error) {
		if got != id {
			t.Errorf("loaded wrong id %s", got)
		}
		return stored, nil
	})
	defer b.Close()

	got := make(chan *model.Study, 4)
	sub := b.Subscribe(id, func(s *model.Study) { got <- s })
	defer sub.Unsubscribe()

	if s := waitFor(t, got); s == nil || s.Name != "12 Maple St" {
		t.Errorf("initial snapshot = %+v", s)
	}
}

func TestSubscribeLoadErrorDegradesToNil(t *testing.T) {
	b := NewBroker(func(ctx context.Context, id uuid.UUID) (*model.Study, error) {
		return nil, errors.New("store unreachable")
	})
	defer b.Close()

	got := make(chan *model.Study, 4)
	sub := b.Subscribe(uuid.New(), func(s *model.Study) { got <- s })
	defer sub.Unsubscribe()

	if s := waitFor(t, got); s != nil {
		t.Errorf("expected nil fallback, got %+v", s)
	}
}

func TestPublishFansOutAndDeleteDeliversNil(t *testing.T) {
	id := uuid.New()
	b := NewBroker(nil)
	defer b.Close()

	got := make(chan *model.Study, 4)
	sub := b.Subscribe(id, func(s *model.Study) { got <- s })
	defer sub.Unsubscribe()

	waitFor(t, got) // initial nil snapshot (no loader)

	b.Publish(id, &model.Study{ID: id, Version: 2})
	if s := waitFor(t, got); s == nil || s.Version != 2 {
		t.Errorf("published snapshot = %+v", s)
	}

	b.Publish(id, nil) // deletion
	if s := waitFor(t, got); s != nil {
		t.Errorf("expected nil on deletion, got %+v", s)
	}
}

func TestPublishToOtherStudyNotDelivered(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	var calls int32
	sub := b.Subscribe(uuid.New(), func(*model.Study) { atomic.AddInt32(&calls, 1) })
	defer sub.Unsubscribe()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial snapshot never arrived")
		case <-time.After(time.Millisecond):
		}
	}

	b.Publish(uuid.New(), &model.Study{})
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected only the initial delivery, got %d calls", n)
	}
}

func TestUnsubscribeIdempotentAndStopsDelivery(t *testing.T) {
	id := uuid.New()
	b := NewBroker(nil)
	defer b.Close()

	var calls int32
	sub := b.Subscribe(id, func(*model.Study) { atomic.AddInt32(&calls, 1) })

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial snapshot never arrived")
		case <-time.After(time.Millisecond):
		}
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // second call must be a no-op, not a panic

	b.Publish(id, &model.Study{ID: id})
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %d calls", n)
	}
}

func TestSubscribeAllSeesEveryStudy(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	type feedEvent struct {
		id    uuid.UUID
		study *model.Study
	}
	got := make(chan feedEvent, 4)
	sub := b.SubscribeAll(func(id uuid.UUID, s *model.Study) { got <- feedEvent{id, s} })
	defer sub.Unsubscribe()

	first, second := uuid.New(), uuid.New()
	b.Publish(first, &model.Study{ID: first})
	if ev := waitFor(t, got); ev.study == nil || ev.id != first {
		t.Errorf("collection feed delivered %+v", ev)
	}
	b.Publish(second, &model.Study{ID: second})
	if ev := waitFor(t, got); ev.study == nil || ev.id != second {
		t.Errorf("collection feed delivered %+v", ev)
	}

	// Deletions still carry the id even though the snapshot is nil.
	b.Publish(first, nil)
	if ev := waitFor(t, got); ev.study != nil || ev.id != first {
		t.Errorf("deletion event = %+v", ev)
	}
}

func TestClosedBrokerDegradesSubscribe(t *testing.T) {
	b := NewBroker(nil)
	b.Close()
	b.Close() // idempotent

	got := make(chan *model.Study, 1)
	sub := b.Subscribe(uuid.New(), func(s *model.Study) { got <- s })
	if s := waitFor(t, got); s != nil {
		t.Errorf("expected single nil from closed broker, got %+v", s)
	}
	sub.Unsubscribe() // still safe
	sub.Unsubscribe()

	all := b.SubscribeAll(func(uuid.UUID, *model.Study) {
		t.Error("all-feed callback fired on a closed broker")
	})
	all.Unsubscribe()
	all.Unsubscribe()
}
