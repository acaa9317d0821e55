package service

import (
	"context"
	"fmt"
	"time"

	"costseg/internal/export"
	"costseg/internal/model"
	"costseg/internal/repository"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExportResult carries a finished artifact plus the filename the handler
// should suggest to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte

	SuccessCount int
	ErrorCount   int
	Errors       []string
}

type ExportService interface {
	// ExportRoomPhotos builds the room/category photo archive for a study.
	// Partial download failures are reported in the result, not as an error.
	ExportRoomPhotos(ctx context.Context, userID, studyID string, progress export.ProgressFunc) (*ExportResult, error)
	// ExportDepreciationSchedule renders the per-category workbook with
	// percentages derived from current asset values.
	ExportDepreciationSchedule(ctx context.Context, userID, studyID string) (*ExportResult, error)
}

type exportService struct {
	repo      repository.StudyRepository
	auditRepo repository.AuditRepository
	pipeline  *export.Pipeline
}

func NewExportService(repo repository.StudyRepository, auditRepo repository.AuditRepository, pipeline *export.Pipeline) ExportService {
	return &exportService{repo: repo, auditRepo: auditRepo, pipeline: pipeline}
}

func (s *exportService) ExportRoomPhotos(ctx context.Context, userID, studyID string, progress export.ProgressFunc) (*ExportResult, error) {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if s.pipeline == nil {
		return nil, apperror.ErrNotConfigured
	}

	res, err := s.pipeline.BuildRoomArchive(ctx, study.Rooms, study.UploadedFiles, progress)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, userID, model.ActionExportPhotos, studyID, study.Name, map[string]interface{}{
		"success_count": res.SuccessCount,
		"error_count":   res.ErrorCount,
	})
	return &ExportResult{
		Filename:     exportFilename(study.Name, "photos", "zip"),
		ContentType:  "application/zip",
		Data:         res.Archive,
		SuccessCount: res.SuccessCount,
		ErrorCount:   res.ErrorCount,
		Errors:       res.Errors,
	}, nil
}

func (s *exportService) ExportDepreciationSchedule(ctx context.Context, userID, studyID string) (*ExportResult, error) {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}

	values := make([]decimal.Decimal, len(study.Assets))
	total := decimal.Zero
	for i, asset := range study.Assets {
		values[i] = asset.EstimatedValue
		total = total.Add(asset.EstimatedValue)
	}
	pcts := CalculatePercentages(values, total)
	percents := make(map[string]int, len(study.Assets))
	for i, asset := range study.Assets {
		percents[asset.ID] = pcts[i]
	}

	data, err := export.BuildDepreciationWorkbook(study, percents)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, userID, model.ActionExportSchedule, studyID, study.Name, map[string]interface{}{
		"asset_count": len(study.Assets),
	})
	return &ExportResult{
		Filename:    exportFilename(study.Name, "depreciation", "xlsx"),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
	}, nil
}

func (s *exportService) getStudy(ctx context.Context, studyID string) (*model.Study, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	return s.repo.FindByID(ctx, id)
}

func exportFilename(studyName, kind, ext string) string {
	name := studyName
	if name == "" {
		name = "study"
	}
	return fmt.Sprintf("%s-%s-%s.%s", name, kind, time.Now().UTC().Format("2006-01-02"), ext)
}
