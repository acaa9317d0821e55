package pubsub

import (
	"context"
	"log"
	"sync"

	"costseg/internal/model"

	"github.com/google/uuid"
)

// SnapshotFunc loads the current state of a study for the initial callback
// delivered on subscribe. A nil study means "absent".
type SnapshotFunc func(ctx context.Context, id uuid.UUID) (*model.Study, error)

// Broker is an instance-scoped publish/subscribe channel for study
// snapshots. It is constructed in main and disposed with Close; there is no
// package-level registry, so nothing leaks across tests or processes.
//
// Each subscription gets its own dispatch goroutine, so callbacks for one
// subscriber never interleave. Snapshots conflate: a subscriber that falls
// behind sees the latest state, not every intermediate one.
type Broker struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]map[*Subscription]struct{}
	all      map[*Subscription]struct{}
	snapshot SnapshotFunc
	closed   bool
}

// Subscription is a live callback registration. Unsubscribe is idempotent.
type Subscription struct {
	broker  *Broker
	studyID uuid.UUID
	allFeed bool
	ch      chan event
	done    chan struct{}
	once    sync.Once
}

type event struct {
	studyID uuid.UUID
	study   *model.Study
}

func NewBroker(snapshot SnapshotFunc) *Broker {
	return &Broker{
		subs:     make(map[uuid.UUID]map[*Subscription]struct{}),
		all:      make(map[*Subscription]struct{}),
		snapshot: snapshot,
	}
}

// Subscribe registers fn for one study. fn fires once immediately with the
// current snapshot (nil when the study is absent or the load fails), then on
// every publish for that id, and with nil on deletion.
func (b *Broker) Subscribe(studyID uuid.UUID, fn func(*model.Study)) *Subscription {
	sub := &Subscription{
		broker:  b,
		studyID: studyID,
		ch:      make(chan event, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		// Degraded channel: a single immediate nil, nothing more.
		fn(nil)
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	if b.subs[studyID] == nil {
		b.subs[studyID] = make(map[*Subscription]struct{})
	}
	b.subs[studyID][sub] = struct{}{}
	b.mu.Unlock()

	go sub.dispatch(func(ev event) { fn(ev.study) })
	sub.deliver(event{studyID: studyID, study: b.load(studyID)})
	return sub
}

// SubscribeAll registers fn for every study publish (collection feed). The
// study id is passed separately so deletions, which carry a nil study, stay
// attributable. No initial snapshot is delivered.
func (b *Broker) SubscribeAll(fn func(uuid.UUID, *model.Study)) *Subscription {
	sub := &Subscription{
		broker:  b,
		allFeed: true,
		ch:      make(chan event, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	b.all[sub] = struct{}{}
	b.mu.Unlock()

	go sub.dispatch(func(ev event) { fn(ev.studyID, ev.study) })
	return sub
}

// Publish fans a fresh snapshot out to the study's subscribers and the
// collection feed. Pass nil to signal deletion.
func (b *Broker) Publish(studyID uuid.UUID, study *model.Study) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*Subscription, 0, len(b.subs[studyID])+len(b.all))
	for sub := range b.subs[studyID] {
		targets = append(targets, sub)
	}
	for sub := range b.all {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(event{studyID: studyID, study: study})
	}
}

// Close tears down every subscription. Further subscribes degrade to a
// single immediate nil callback.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var targets []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			targets = append(targets, sub)
		}
	}
	for sub := range b.all {
		targets = append(targets, sub)
	}
	b.subs = make(map[uuid.UUID]map[*Subscription]struct{})
	b.all = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range targets {
		sub.Unsubscribe()
	}
}

func (b *Broker) load(studyID uuid.UUID) *model.Study {
	if b.snapshot == nil {
		return nil
	}
	study, err := b.snapshot(context.Background(), studyID)
	if err != nil {
		// Errors degrade to a nil delivery on the normal callback path.
		log.Printf("pubsub: snapshot load for %s failed: %v", studyID, err)
		return nil
	}
	return study
}

// deliver conflates: if the subscriber has not consumed the previous
// snapshot yet, it is replaced by the newer one.
func (s *Subscription) deliver(ev event) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription) dispatch(fn func(event)) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.ch:
			select {
			case <-s.done:
				return
			default:
			}
			fn(ev)
		}
	}
}

// Unsubscribe removes the registration. Calling it twice is a no-op; once it
// returns, no further callbacks are delivered.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		b := s.broker
		if b != nil {
			b.mu.Lock()
			if s.allFeed {
				delete(b.all, s)
			} else if set, ok := b.subs[s.studyID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(b.subs, s.studyID)
				}
			}
			b.mu.Unlock()
		}
		close(s.done)
	})
}
