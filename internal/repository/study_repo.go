package repository

import (
	"context"
	"errors"
	"time"

	"costseg/internal/model"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudyFilter narrows List results.
type StudyFilter struct {
	OwnerID        *uuid.UUID
	Status         string // pending, in_progress, completed or empty for all
	WorkflowStatus string
}

type StudyRepository interface {
	Create(ctx context.Context, study *model.Study) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Study, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*model.Study, error)
	Save(ctx context.Context, study *model.Study) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter StudyFilter, page, limit int) ([]model.Study, int64, error)
}

type studyRepository struct {
	db *gorm.DB
}

// NewStudyRepository fails fast when the database handle is absent so a
// misconfigured process surfaces at wiring time, not on first write.
func NewStudyRepository(db *gorm.DB) (StudyRepository, error) {
	if db == nil {
		return nil, apperror.ErrNotConfigured
	}
	return &studyRepository{db: db}, nil
}

func (r *studyRepository) Create(ctx context.Context, study *model.Study) error {
	if study.WorkflowStatus == "" {
		study.WorkflowStatus = model.StepUploadingDocuments
	}
	if study.CurrentStep == "" {
		study.CurrentStep = study.WorkflowStatus
	}
	if len(study.VisitedSteps) == 0 {
		study.VisitedSteps = []string{study.WorkflowStatus}
	}
	if study.Status == "" {
		study.Status = model.DeriveStatus(study.WorkflowStatus)
	}
	return GetDB(ctx, r.db).Create(study).Error
}

func (r *studyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Study, error) {
	var study model.Study
	if err := GetDB(ctx, r.db).First(&study, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	model.NormalizeStudy(&study)
	return &study, nil
}

// UpdateFields performs a shallow document-level merge: each key replaces the
// whole column (nested collections are replaced, not deep-merged). Nil values
// are stripped recursively first: they mean "absent", not "set to null".
// Every update stamps updated_at and bumps the version counter.
func (r *studyRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*model.Study, error) {
	clean := StripNilValues(fields)
	clean["updated_at"] = time.Now().UTC()
	clean["version"] = gorm.Expr("version + 1")

	res := GetDB(ctx, r.db).Model(&model.Study{}).
		Where("id = ?", id).
		Updates(clean)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperror.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *studyRepository) Save(ctx context.Context, study *model.Study) error {
	study.Version++
	return GetDB(ctx, r.db).Save(study).Error
}

func (r *studyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Study{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *studyRepository) List(ctx context.Context, filter StudyFilter, page, limit int) ([]model.Study, int64, error) {
	var studies []model.Study
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Study{})
	if filter.OwnerID != nil {
		db = db.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.WorkflowStatus != "" {
		db = db.Where("workflow_status = ?", filter.WorkflowStatus)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&studies).Error; err != nil {
		return nil, 0, err
	}

	for i := range studies {
		model.NormalizeStudy(&studies[i])
	}
	return studies, total, nil
}

// StripNilValues removes nil entries from a field map, descending into
// nested maps and slices. The backing store treats nil as "no value" and
// must never receive one.
func StripNilValues(fields map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			clean[k] = StripNilValues(typed)
		case []interface{}:
			clean[k] = stripNilSlice(typed)
		default:
			clean[k] = v
		}
	}
	return clean
}

func stripNilSlice(items []interface{}) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, v := range items {
		if v == nil {
			continue
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			out = append(out, StripNilValues(typed))
		case []interface{}:
			out = append(out, stripNilSlice(typed))
		default:
			out = append(out, v)
		}
	}
	return out
}
