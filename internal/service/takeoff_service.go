package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"costseg/internal/model"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/internal/syncer"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TakeoffRequest struct {
	ID          string           `json:"id"`
	Description string           `json:"description" binding:"required"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	UnitCost    *decimal.Decimal `json:"unit_cost"`
	TotalCost   *decimal.Decimal `json:"total_cost"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	CostCode    string           `json:"cost_code"`
	Notes       string           `json:"notes"`
	AssetID     string           `json:"asset_id"`
}

type SaveStatus struct {
	State string `json:"state"` // idle, saving, saved, error
	Error string `json:"error,omitempty"`
}

type TakeoffService interface {
	// EnsureActiveTakeoffs duplicates the immutable extraction copy into the
	// editable collection. Idempotent: an already-materialized study is
	// returned as-is.
	EnsureActiveTakeoffs(ctx context.Context, studyID string) ([]model.Takeoff, error)
	// ListTakeoffs returns the editable collection; an absent study yields
	// an empty list, not an error.
	ListTakeoffs(ctx context.Context, studyID string) ([]model.Takeoff, error)

	OpenSession(ctx context.Context, studyID string) (*EditSession, error)
	CloseAll()
}

type takeoffService struct {
	repo   repository.StudyRepository
	broker *pubsub.Broker

	mu       sync.Mutex
	sessions map[string]*EditSession

	// autosave tuning; tests shorten these
	debounce time.Duration
	grace    time.Duration
}

func NewTakeoffService(repo repository.StudyRepository, broker *pubsub.Broker) TakeoffService {
	return &takeoffService{
		repo:     repo,
		broker:   broker,
		sessions: make(map[string]*EditSession),
		debounce: syncer.DefaultDebounce,
		grace:    syncer.DefaultGraceWindow,
	}
}

func (s *takeoffService) EnsureActiveTakeoffs(ctx context.Context, studyID string) ([]model.Takeoff, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(study.Takeoffs) > 0 || len(study.TakeoffCopies) == 0 {
		return study.Takeoffs, nil
	}

	active := make([]model.Takeoff, len(study.TakeoffCopies))
	copy(active, study.TakeoffCopies)

	study, err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"takeoffs": mustJSON(active),
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(id, study)
	return study.Takeoffs, nil
}

func (s *takeoffService) ListTakeoffs(ctx context.Context, studyID string) ([]model.Takeoff, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.Takeoff{}, nil
		}
		return nil, err
	}
	return study.Takeoffs, nil
}

// OpenSession returns the autosave editing session for a study, creating it
// on first use. A session holds the locally edited takeoff list, debounces
// writes to the study document, and reconciles remote snapshots from the
// broker subscription.
func (s *takeoffService) OpenSession(ctx context.Context, studyID string) (*EditSession, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}

	s.mu.Lock()
	if session, ok := s.sessions[studyID]; ok {
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	session := &EditSession{studyID: id, svc: s}
	session.controller = syncer.New[[]model.Takeoff](study.Takeoffs, session.persist, syncer.Options[[]model.Takeoff]{
		Debounce:    s.debounce,
		GraceWindow: s.grace,
		Equal:       takeoffsEqual,
		Clone:       cloneTakeoffs,
	})
	session.subscription = s.broker.Subscribe(id, session.onRemote)

	s.mu.Lock()
	if existing, ok := s.sessions[studyID]; ok {
		// Lost the race to another opener; discard ours.
		s.mu.Unlock()
		session.teardown()
		return existing, nil
	}
	s.sessions[studyID] = session
	s.mu.Unlock()
	return session, nil
}

func (s *takeoffService) CloseAll() {
	s.mu.Lock()
	sessions := make([]*EditSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*EditSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

func (s *takeoffService) dropSession(studyID string, session *EditSession) {
	s.mu.Lock()
	if s.sessions[studyID] == session {
		delete(s.sessions, studyID)
	}
	s.mu.Unlock()
}

// EditSession is the per-study autosave surface. All mutators apply to local
// state synchronously; persistence happens on the debounce cycle.
type EditSession struct {
	studyID      uuid.UUID
	svc          *takeoffService
	controller   *syncer.Controller[[]model.Takeoff]
	subscription *pubsub.Subscription
}

func (e *EditSession) Takeoffs() []model.Takeoff {
	return e.controller.Value()
}

func (e *EditSession) Status() SaveStatus {
	state, err := e.controller.State()
	status := SaveStatus{State: string(state)}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (e *EditSession) AddItem(req TakeoffRequest) (*model.Takeoff, error) {
	item, err := takeoffFromRequest(req)
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	e.controller.Update(func(items []model.Takeoff) []model.Takeoff {
		return append(items, *item)
	})
	return item, nil
}

func (e *EditSession) UpdateItem(id string, req TakeoffRequest) (*model.Takeoff, error) {
	item, err := takeoffFromRequest(req)
	if err != nil {
		return nil, err
	}
	item.ID = id

	found := false
	e.controller.Update(func(items []model.Takeoff) []model.Takeoff {
		for i := range items {
			if items[i].ID == id {
				items[i] = *item
				found = true
				break
			}
		}
		return items
	})
	if !found {
		return nil, apperror.ErrNotFound
	}
	return item, nil
}

func (e *EditSession) DeleteItem(id string) error {
	found := false
	e.controller.Update(func(items []model.Takeoff) []model.Takeoff {
		out := items[:0]
		for _, item := range items {
			if item.ID == id {
				found = true
				continue
			}
			out = append(out, item)
		}
		return out
	})
	if !found {
		return apperror.ErrNotFound
	}
	return nil
}

// Flush persists pending edits immediately (used by the explicit save
// endpoint; the debounce cycle handles the normal path).
func (e *EditSession) Flush(ctx context.Context) error {
	return e.controller.Flush(ctx)
}

// Close flushes pending edits and releases the session.
func (e *EditSession) Close(ctx context.Context) error {
	err := e.controller.Flush(ctx)
	e.svc.dropSession(e.studyID.String(), e)
	e.teardown()
	return err
}

func (e *EditSession) close() {
	_ = e.controller.Flush(context.Background())
	e.teardown()
}

func (e *EditSession) teardown() {
	e.subscription.Unsubscribe()
	e.controller.Close()
}

// persist is the controller sink: one debounced write of the latest state.
func (e *EditSession) persist(ctx context.Context, items []model.Takeoff) error {
	study, err := e.svc.repo.UpdateFields(ctx, e.studyID, map[string]interface{}{
		"takeoffs": mustJSON(items),
	})
	if err != nil {
		return err
	}
	e.svc.broker.Publish(e.studyID, study)
	return nil
}

// onRemote feeds authoritative snapshots into the controller, which drops
// echoes inside the grace window after a local write.
func (e *EditSession) onRemote(study *model.Study) {
	if study == nil {
		return
	}
	e.controller.ApplyRemote(study.Takeoffs)
}

func takeoffFromRequest(req TakeoffRequest) (*model.Takeoff, error) {
	if req.Description == "" {
		return nil, apperror.NewValidation("description", "description is required")
	}
	if req.Quantity.IsNegative() {
		return nil, apperror.NewValidation("quantity", "must be non-negative")
	}
	return &model.Takeoff{
		ID:          req.ID,
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		UnitCost:    req.UnitCost,
		TotalCost:   req.TotalCost,
		TaxRate:     req.TaxRate,
		CostCode:    req.CostCode,
		Notes:       req.Notes,
		AssetID:     req.AssetID,
	}, nil
}

func takeoffsEqual(a, b []model.Takeoff) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !takeoffEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func takeoffEqual(a, b model.Takeoff) bool {
	return a.ID == b.ID &&
		a.Description == b.Description &&
		a.Quantity.Equal(b.Quantity) &&
		a.Unit == b.Unit &&
		decimalPtrEqual(a.UnitCost, b.UnitCost) &&
		decimalPtrEqual(a.TotalCost, b.TotalCost) &&
		decimalPtrEqual(a.TaxRate, b.TaxRate) &&
		a.CostCode == b.CostCode &&
		a.Notes == b.Notes &&
		a.AssetID == b.AssetID
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneTakeoffs(items []model.Takeoff) []model.Takeoff {
	return append([]model.Takeoff(nil), items...)
}
