package service

import (
	"context"
	"encoding/json"

	"costseg/internal/model"
	"costseg/internal/repository"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SaveDraftRequest struct {
	AssetID string          `json:"asset_id" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type DraftService interface {
	// SaveDraft stores the in-progress editing state for one asset,
	// replacing any earlier draft for the same study and asset.
	SaveDraft(ctx context.Context, userID, studyID string, req SaveDraftRequest) (*model.EditingDraft, error)
	GetDraft(ctx context.Context, studyID, assetID string) (*model.EditingDraft, error)
	DiscardDraft(ctx context.Context, studyID, assetID string) error
}

type draftService struct {
	repo      repository.DraftRepository
	studyRepo repository.StudyRepository
}

func NewDraftService(repo repository.DraftRepository, studyRepo repository.StudyRepository) DraftService {
	return &draftService{repo: repo, studyRepo: studyRepo}
}

func (s *draftService) SaveDraft(ctx context.Context, userID, studyID string, req SaveDraftRequest) (*model.EditingDraft, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperror.NewValidation("user_id", "invalid uuid")
	}
	if req.AssetID == "" {
		return nil, apperror.NewValidation("asset_id", "asset id is required")
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return nil, apperror.NewValidation("payload", "payload must be valid json")
	}

	// Drafts only make sense against a live study.
	if _, err := s.studyRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	draft := &model.EditingDraft{
		StudyID: id,
		AssetID: req.AssetID,
		UserID:  uid,
		Payload: datatypes.JSON(req.Payload),
	}
	if err := s.repo.Upsert(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *draftService) GetDraft(ctx context.Context, studyID, assetID string) (*model.EditingDraft, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	return s.repo.Find(ctx, id, assetID)
}

func (s *draftService) DiscardDraft(ctx context.Context, studyID, assetID string) error {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return apperror.NewValidation("study_id", "invalid uuid")
	}
	return s.repo.Delete(ctx, id, assetID)
}
