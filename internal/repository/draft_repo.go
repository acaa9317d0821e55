package repository

import (
	"context"
	"errors"

	"costseg/internal/model"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DraftRepository persists per-study, per-asset editing snapshots. Drafts are
// resume-on-same-device conveniences; the study document always wins.
type DraftRepository interface {
	Upsert(ctx context.Context, draft *model.EditingDraft) error
	Find(ctx context.Context, studyID uuid.UUID, assetID string) (*model.EditingDraft, error)
	Delete(ctx context.Context, studyID uuid.UUID, assetID string) error
	DeleteForStudy(ctx context.Context, studyID uuid.UUID) error
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) (DraftRepository, error) {
	if db == nil {
		return nil, apperror.ErrNotConfigured
	}
	return &draftRepository{db: db}, nil
}

func (r *draftRepository) Upsert(ctx context.Context, draft *model.EditingDraft) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "study_id"}, {Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "user_id", "updated_at"}),
	}).Create(draft).Error
}

func (r *draftRepository) Find(ctx context.Context, studyID uuid.UUID, assetID string) (*model.EditingDraft, error) {
	var draft model.EditingDraft
	err := GetDB(ctx, r.db).
		Where("study_id = ? AND asset_id = ?", studyID, assetID).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &draft, nil
}

func (r *draftRepository) Delete(ctx context.Context, studyID uuid.UUID, assetID string) error {
	return GetDB(ctx, r.db).
		Where("study_id = ? AND asset_id = ?", studyID, assetID).
		Delete(&model.EditingDraft{}).Error
}

func (r *draftRepository) DeleteForStudy(ctx context.Context, studyID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Where("study_id = ?", studyID).
		Delete(&model.EditingDraft{}).Error
}
