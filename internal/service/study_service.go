package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"costseg/internal/model"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/internal/workflow"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
)

// DTOs
type CreateStudyRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// UpdateStudyRequest carries a partial document update. Nil pointers mean
// "leave unchanged"; collections replace wholesale (no deep merge).
type UpdateStudyRequest struct {
	Name             *string                          `json:"name"`
	Address          *string                          `json:"address"`
	Rooms            *[]model.Room                    `json:"rooms"`
	Assets           *[]model.Asset                   `json:"assets"`
	PhotoAnnotations *map[string]model.PhotoAnnotation `json:"photo_annotations"`
}

type StudyListFilter struct {
	OwnerID        string
	Status         string
	WorkflowStatus string
}

type StudyService interface {
	CreateStudy(ctx context.Context, ownerID string, req CreateStudyRequest) (*model.Study, error)
	GetStudy(ctx context.Context, id string) (*model.Study, error)
	ListStudies(ctx context.Context, filter StudyListFilter, page, limit int) ([]model.Study, int64, error)
	UpdateStudy(ctx context.Context, userID, id string, req UpdateStudyRequest) (*model.Study, error)
	AdvanceWorkflow(ctx context.Context, userID, id, target string) (*model.Study, error)
	NavigateToStep(ctx context.Context, userID, id, target string) (*model.Study, error)
	DeleteStudy(ctx context.Context, userID, id string) error
}

type studyService struct {
	repo      repository.StudyRepository
	draftRepo repository.DraftRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	broker    *pubsub.Broker
}

func NewStudyService(
	repo repository.StudyRepository,
	draftRepo repository.DraftRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	broker *pubsub.Broker,
) StudyService {
	return &studyService{
		repo:      repo,
		draftRepo: draftRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		broker:    broker,
	}
}

func (s *studyService) CreateStudy(ctx context.Context, ownerID string, req CreateStudyRequest) (*model.Study, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, apperror.NewValidation("owner_id", "invalid uuid")
	}

	study := &model.Study{
		OwnerID: owner,
		Name:    req.Name,
		Address: req.Address,
	}
	if err := s.repo.Create(ctx, study); err != nil {
		return nil, err
	}

	s.audit(ctx, ownerID, model.ActionCreateStudy, study.ID.String(), study.Name, nil)
	s.broker.Publish(study.ID, study)
	return study, nil
}

func (s *studyService) GetStudy(ctx context.Context, id string) (*model.Study, error) {
	studyID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewValidation("id", "invalid uuid")
	}
	return s.repo.FindByID(ctx, studyID)
}

func (s *studyService) ListStudies(ctx context.Context, filter StudyListFilter, page, limit int) ([]model.Study, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	repoFilter := repository.StudyFilter{
		Status:         filter.Status,
		WorkflowStatus: filter.WorkflowStatus,
	}
	if filter.OwnerID != "" {
		owner, err := uuid.Parse(filter.OwnerID)
		if err != nil {
			return nil, 0, apperror.NewValidation("owner_id", "invalid uuid")
		}
		repoFilter.OwnerID = &owner
	}
	return s.repo.List(ctx, repoFilter, page, limit)
}

func (s *studyService) UpdateStudy(ctx context.Context, userID, id string, req UpdateStudyRequest) (*model.Study, error) {
	studyID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewValidation("id", "invalid uuid")
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Address != nil {
		fields["address"] = *req.Address
	}
	if req.Rooms != nil {
		fields["rooms"] = mustJSON(*req.Rooms)
	}
	if req.Assets != nil {
		if err := validateAssets(*req.Assets); err != nil {
			return nil, err
		}
		fields["assets"] = mustJSON(*req.Assets)
	}
	if req.PhotoAnnotations != nil {
		fields["photo_annotations"] = mustJSON(*req.PhotoAnnotations)
	}
	if len(fields) == 0 {
		return s.repo.FindByID(ctx, studyID)
	}

	study, err := s.repo.UpdateFields(ctx, studyID, fields)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(fields))
	for k := range fields {
		changed = append(changed, k)
	}
	s.audit(ctx, userID, model.ActionUpdateStudy, id, study.Name, map[string]interface{}{"fields": changed})
	s.broker.Publish(studyID, study)
	return study, nil
}

// AdvanceWorkflow moves the workflow status one step forward. Transitions
// are gated by the status graph: only the designated next step is accepted,
// so the coarse status can never regress or skip.
func (s *studyService) AdvanceWorkflow(ctx context.Context, userID, id, target string) (*model.Study, error) {
	studyID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewValidation("id", "invalid uuid")
	}

	var updated *model.Study
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		study, err := s.repo.FindByID(txCtx, studyID)
		if err != nil {
			return err
		}
		if !workflow.IsValidTransition(study.WorkflowStatus, target) {
			return apperror.NewValidation("workflow_status",
				fmt.Sprintf("cannot transition from %s to %s", study.WorkflowStatus, target))
		}

		study.WorkflowStatus = target
		study.CurrentStep = target
		if !containsString(study.VisitedSteps, target) {
			study.VisitedSteps = append(study.VisitedSteps, target)
		}
		study.Status = model.DeriveStatus(target)
		if target == model.StepCompleted && study.CompletedAt == nil {
			now := time.Now().UTC()
			study.CompletedAt = &now
		}
		if err := s.repo.Save(txCtx, study); err != nil {
			return err
		}
		updated = study
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, userID, model.ActionAdvanceWorkflow, id, updated.Name, map[string]interface{}{"to": target})
	s.broker.Publish(studyID, updated)
	return updated, nil
}

// NavigateToStep changes which step the user is viewing. Unlike
// AdvanceWorkflow it may move backward, but only to visited steps or the
// single step directly ahead of the workflow status.
func (s *studyService) NavigateToStep(ctx context.Context, userID, id, target string) (*model.Study, error) {
	studyID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewValidation("id", "invalid uuid")
	}

	study, err := s.repo.FindByID(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanNavigateTo(target, study.VisitedSteps, study.WorkflowStatus) {
		return nil, apperror.NewValidation("current_step",
			fmt.Sprintf("step %s is not reachable from %s", target, study.WorkflowStatus))
	}

	updated, err := s.repo.UpdateFields(ctx, studyID, map[string]interface{}{
		"current_step": target,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, userID, model.ActionNavigateStep, id, updated.Name, map[string]interface{}{"to": target})
	s.broker.Publish(studyID, updated)
	return updated, nil
}

func (s *studyService) DeleteStudy(ctx context.Context, userID, id string) error {
	studyID, err := uuid.Parse(id)
	if err != nil {
		return apperror.NewValidation("id", "invalid uuid")
	}

	if err := s.repo.Delete(ctx, studyID); err != nil {
		return err
	}
	// Drafts are scoped to the study; drop them alongside it.
	_ = s.draftRepo.DeleteForStudy(ctx, studyID)

	s.audit(ctx, userID, model.ActionDeleteStudy, id, "", nil)
	s.broker.Publish(studyID, nil)
	return nil
}

func (s *studyService) audit(ctx context.Context, userID, action, studyID, name string, details map[string]interface{}) {
	recordAudit(ctx, s.auditRepo, userID, action, studyID, name, details)
}

// recordAudit is best-effort; the primary operation has already committed.
func recordAudit(ctx context.Context, repo repository.AuditRepository, userID, action, studyID, name string, details map[string]interface{}) {
	entry := &model.AuditLog{
		Action:     action,
		StudyID:    studyID,
		EntityName: name,
	}
	if uid, err := uuid.Parse(userID); err == nil {
		entry.UserID = &uid
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = string(raw)
		}
	}
	_ = repo.Log(ctx, entry)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// mustJSON renders a collection for a jsonb column update.
func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// Collections are plain data structs; marshal cannot fail for them.
		panic(err)
	}
	return raw
}
