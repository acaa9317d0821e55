package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"costseg/internal/model"
	"costseg/internal/pipeline"
	"costseg/internal/repository"
	"costseg/internal/workflow"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
)

type StartAnalysisRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Resume      bool     `json:"resume"`
}

type AnalysisService interface {
	// StartAnalysis kicks off the external classification run for a study
	// and advances the workflow out of document upload when applicable.
	StartAnalysis(ctx context.Context, userID, studyID string, req StartAnalysisRequest) (*pipeline.RunResponse, error)
	RunStage(ctx context.Context, studyID, stage string, docIDs []string) (*pipeline.RunResponse, error)
	Status(ctx context.Context, studyID string) (*pipeline.StatusResponse, error)
	Evidence(ctx context.Context, studyID string) (json.RawMessage, error)
	Healthy(ctx context.Context) bool
}

type analysisService struct {
	client    *pipeline.Client
	repo      repository.StudyRepository
	auditRepo repository.AuditRepository
	studies   StudyService
}

func NewAnalysisService(client *pipeline.Client, repo repository.StudyRepository, auditRepo repository.AuditRepository, studies StudyService) AnalysisService {
	return &analysisService{client: client, repo: repo, auditRepo: auditRepo, studies: studies}
}

func (s *analysisService) StartAnalysis(ctx context.Context, userID, studyID string, req StartAnalysisRequest) (*pipeline.RunResponse, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	if s.client == nil {
		return nil, apperror.ErrNotConfigured
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(req.DocumentIDs) == 0 {
		return nil, apperror.NewValidation("document_ids", "at least one document is required")
	}
	for _, docID := range req.DocumentIDs {
		if findFile(study.UploadedFiles, docID) == nil {
			return nil, apperror.NewValidation("document_ids", "unknown document "+docID)
		}
	}

	start := pipeline.StartRequest{StudyID: studyID, StudyDocIDs: req.DocumentIDs}
	var run *pipeline.RunResponse
	if req.Resume {
		run, err = s.client.ResumeWorkflow(ctx, start)
	} else {
		run, err = s.client.StartWorkflow(ctx, start)
	}
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, userID, model.ActionStartAnalysis, studyID, study.Name, map[string]interface{}{
		"document_count": len(req.DocumentIDs),
		"resume":         req.Resume,
		"run_status":     run.Status,
	})

	// A run accepted while the study is still in document upload moves it
	// into room analysis. A run started from a later step leaves the
	// workflow where it is.
	if workflow.IsValidTransition(study.WorkflowStatus, model.StepAnalyzingRooms) {
		if _, err := s.studies.AdvanceWorkflow(ctx, userID, studyID, model.StepAnalyzingRooms); err != nil &&
			!errors.Is(err, apperror.ErrNotFound) {
			log.Printf("analysis: advance workflow for %s failed: %v", studyID, err)
		}
	}
	return run, nil
}

func (s *analysisService) RunStage(ctx context.Context, studyID, stage string, docIDs []string) (*pipeline.RunResponse, error) {
	if s.client == nil {
		return nil, apperror.ErrNotConfigured
	}
	if stage == "" {
		return nil, apperror.NewValidation("stage", "stage is required")
	}
	return s.client.RunStage(ctx, stage, pipeline.StartRequest{StudyID: studyID, StudyDocIDs: docIDs})
}

func (s *analysisService) Status(ctx context.Context, studyID string) (*pipeline.StatusResponse, error) {
	if s.client == nil {
		return nil, apperror.ErrNotConfigured
	}
	return s.client.Status(ctx, studyID)
}

func (s *analysisService) Evidence(ctx context.Context, studyID string) (json.RawMessage, error) {
	if s.client == nil {
		return nil, apperror.ErrNotConfigured
	}
	return s.client.Evidence(ctx, studyID)
}

func (s *analysisService) Healthy(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	return s.client.Health(ctx) == nil
}
