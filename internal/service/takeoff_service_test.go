package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"costseg/internal/model"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeStudyRepo is an in-memory StudyRepository for service tests.
type fakeStudyRepo struct {
	mu          sync.Mutex
	studies     map[uuid.UUID]*model.Study
	updateCalls int
	updateErr   error
	lastFields  map[string]interface{}
}

func newFakeStudyRepo(studies ...*model.Study) *fakeStudyRepo {
	r := &fakeStudyRepo{studies: make(map[uuid.UUID]*model.Study)}
	for _, s := range studies {
		r.studies[s.ID] = s
	}
	return r
}

func (r *fakeStudyRepo) Create(ctx context.Context, study *model.Study) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if study.ID == uuid.Nil {
		study.ID = uuid.New()
	}
	r.studies[study.ID] = study
	return nil
}

func (r *fakeStudyRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	study, ok := r.studies[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	clone := *study
	return &clone, nil
}

func (r *fakeStudyRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*model.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	r.lastFields = fields
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	study, ok := r.studies[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	if raw, ok := fields["takeoffs"].([]byte); ok {
		var items []model.Takeoff
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		study.Takeoffs = items
	}
	if step, ok := fields["current_step"].(string); ok {
		study.CurrentStep = step
	}
	study.Version++
	clone := *study
	return &clone, nil
}

func (r *fakeStudyRepo) Save(ctx context.Context, study *model.Study) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	study.Version++
	r.studies[study.ID] = study
	return nil
}

func (r *fakeStudyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.studies[id]; !ok {
		return apperror.ErrNotFound
	}
	delete(r.studies, id)
	return nil
}

func (r *fakeStudyRepo) List(ctx context.Context, filter repository.StudyFilter, page, limit int) ([]model.Study, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Study, 0, len(r.studies))
	for _, s := range r.studies {
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *fakeStudyRepo) updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateCalls
}

func takeoffStudy(items ...model.Takeoff) *model.Study {
	return &model.Study{
		ID:             uuid.New(),
		Name:           "warehouse",
		WorkflowStatus: model.StepEngineeringTakeoff,
		Takeoffs:       items,
	}
}

func newTakeoffService(repo repository.StudyRepository, broker *pubsub.Broker) *takeoffService {
	svc := NewTakeoffService(repo, broker).(*takeoffService)
	svc.debounce = 20 * time.Millisecond
	svc.grace = 60 * time.Millisecond
	return svc
}

func TestEnsureActiveTakeoffs(t *testing.T) {
	source := model.Takeoff{ID: "t1", Description: "drywall", Quantity: decimal.NewFromInt(40)}

	t.Run("copies extraction results once", func(t *testing.T) {
		study := takeoffStudy()
		study.TakeoffCopies = []model.Takeoff{source}
		repo := newFakeStudyRepo(study)
		broker := pubsub.NewBroker(nil)
		defer broker.Close()
		svc := newTakeoffService(repo, broker)
		defer svc.CloseAll()

		items, err := svc.EnsureActiveTakeoffs(context.Background(), study.ID.String())
		if err != nil {
			t.Fatalf("EnsureActiveTakeoffs: %v", err)
		}
		if len(items) != 1 || items[0].ID != "t1" {
			t.Fatalf("got %+v, want copy of extraction results", items)
		}

		// Second call must not duplicate.
		items, err = svc.EnsureActiveTakeoffs(context.Background(), study.ID.String())
		if err != nil {
			t.Fatalf("second EnsureActiveTakeoffs: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("idempotency violated: %d items", len(items))
		}
		if repo.updates() != 1 {
			t.Fatalf("update calls = %d, want 1", repo.updates())
		}
	})

	t.Run("nothing to copy", func(t *testing.T) {
		study := takeoffStudy()
		repo := newFakeStudyRepo(study)
		broker := pubsub.NewBroker(nil)
		defer broker.Close()
		svc := newTakeoffService(repo, broker)
		defer svc.CloseAll()

		items, err := svc.EnsureActiveTakeoffs(context.Background(), study.ID.String())
		if err != nil {
			t.Fatalf("EnsureActiveTakeoffs: %v", err)
		}
		if len(items) != 0 {
			t.Fatalf("got %d items, want 0", len(items))
		}
		if repo.updates() != 0 {
			t.Fatalf("no-op copy still wrote %d times", repo.updates())
		}
	})
}

func TestListTakeoffsMissingStudy(t *testing.T) {
	repo := newFakeStudyRepo()
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)

	items, err := svc.ListTakeoffs(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("ListTakeoffs: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("got %v, want empty non-nil list", items)
	}
}

func TestEditSessionValidation(t *testing.T) {
	study := takeoffStudy()
	repo := newFakeStudyRepo(study)
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)
	defer svc.CloseAll()

	session, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if _, err := session.AddItem(TakeoffRequest{Description: ""}); !apperror.IsValidation(err) {
		t.Fatalf("empty description: got %v, want validation error", err)
	}
	if _, err := session.AddItem(TakeoffRequest{Description: "pipe", Quantity: decimal.NewFromInt(-2)}); !apperror.IsValidation(err) {
		t.Fatalf("negative quantity: got %v, want validation error", err)
	}
	if repo.updates() != 0 {
		t.Fatalf("rejected edits reached the store: %d writes", repo.updates())
	}
}

func TestEditSessionDebouncedPersist(t *testing.T) {
	study := takeoffStudy()
	repo := newFakeStudyRepo(study)
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)
	defer svc.CloseAll()

	session, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	// Burst of edits inside one debounce window.
	first, err := session.AddItem(TakeoffRequest{Description: "conduit", Quantity: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := session.AddItem(TakeoffRequest{Description: "junction box", Quantity: decimal.NewFromInt(4)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := session.UpdateItem(first.ID, TakeoffRequest{Description: "emt conduit", Quantity: decimal.NewFromInt(12)}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	// Edits are visible locally before any write lands.
	if got := session.Takeoffs(); len(got) != 2 || got[0].Description != "emt conduit" {
		t.Fatalf("local state = %+v", got)
	}
	if repo.updates() != 0 {
		t.Fatalf("write before debounce elapsed: %d", repo.updates())
	}

	deadline := time.After(2 * time.Second)
	for repo.updates() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced write never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if repo.updates() != 1 {
		t.Fatalf("write calls = %d, want 1 coalesced write", repo.updates())
	}

	stored, err := repo.FindByID(context.Background(), study.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(stored.Takeoffs) != 2 || stored.Takeoffs[0].Description != "emt conduit" {
		t.Fatalf("persisted state = %+v", stored.Takeoffs)
	}
}

func TestEditSessionDeleteItem(t *testing.T) {
	study := takeoffStudy(
		model.Takeoff{ID: "t1", Description: "drywall", Quantity: decimal.NewFromInt(40)},
		model.Takeoff{ID: "t2", Description: "paint", Quantity: decimal.NewFromInt(8)},
	)
	repo := newFakeStudyRepo(study)
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)
	defer svc.CloseAll()

	session, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if err := session.DeleteItem("t1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := session.DeleteItem("ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("unknown id: got %v, want ErrNotFound", err)
	}

	if err := session.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), study.ID)
	if len(stored.Takeoffs) != 1 || stored.Takeoffs[0].ID != "t2" {
		t.Fatalf("persisted state = %+v", stored.Takeoffs)
	}
}

func TestEditSessionRemoteEcho(t *testing.T) {
	study := takeoffStudy()
	repo := newFakeStudyRepo(study)
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)
	defer svc.CloseAll()

	session, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if _, err := session.AddItem(TakeoffRequest{Description: "conduit", Quantity: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := session.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// A stale snapshot arriving right after the write must not clobber
	// the local edit.
	stale := *study
	stale.Takeoffs = nil
	broker.Publish(study.ID, &stale)

	time.Sleep(20 * time.Millisecond)
	if got := session.Takeoffs(); len(got) != 1 {
		t.Fatalf("stale echo clobbered local state: %+v", got)
	}

	// After the grace window the same snapshot is authoritative.
	time.Sleep(80 * time.Millisecond)
	broker.Publish(study.ID, &stale)
	deadline := time.After(2 * time.Second)
	for len(session.Takeoffs()) != 0 {
		select {
		case <-deadline:
			t.Fatal("post-grace snapshot never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOpenSessionReuse(t *testing.T) {
	study := takeoffStudy()
	repo := newFakeStudyRepo(study)
	broker := pubsub.NewBroker(nil)
	defer broker.Close()
	svc := newTakeoffService(repo, broker)
	defer svc.CloseAll()

	a, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	b, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if a != b {
		t.Fatal("second open returned a new session")
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c, err := svc.OpenSession(context.Background(), study.ID.String())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if c == a {
		t.Fatal("closed session was reused")
	}
}

func TestTakeoffsEqualPointerCosts(t *testing.T) {
	cost := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}

	base := model.Takeoff{ID: "t1", Description: "drywall", Quantity: decimal.NewFromInt(40), UnitCost: cost(12)}

	t.Run("equal pointer costs compare equal", func(t *testing.T) {
		other := base
		other.UnitCost = cost(12)
		if !takeoffsEqual([]model.Takeoff{base}, []model.Takeoff{other}) {
			t.Fatal("identical snapshots compared unequal")
		}
	})

	t.Run("differing pointer costs compare unequal", func(t *testing.T) {
		other := base
		other.UnitCost = cost(13)
		if takeoffsEqual([]model.Takeoff{base}, []model.Takeoff{other}) {
			t.Fatal("differing unit costs compared equal")
		}
	})

	t.Run("nil against set cost compares unequal", func(t *testing.T) {
		other := base
		other.UnitCost = nil
		if takeoffsEqual([]model.Takeoff{base}, []model.Takeoff{other}) {
			t.Fatal("nil unit cost compared equal to a set one")
		}
	})
}
