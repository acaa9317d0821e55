package service

import (
	"context"

	"costseg/internal/model"
	"costseg/internal/navigator"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetResponse is an Asset plus its derived share of the study total.
// Percentages are never stored; they are recomputed from estimated values on
// every read so partial updates cannot leave them stale.
type AssetResponse struct {
	model.Asset
	PercentageOfTotal int `json:"percentage_of_total"`
}

type UpdateAssetRequest struct {
	Name               *string          `json:"name"`
	Description        *string          `json:"description"`
	Category           *string          `json:"category"`
	EstimatedValue     *decimal.Decimal `json:"estimated_value"`
	DepreciationPeriod *int             `json:"depreciation_period"`
}

type VerificationProgress struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	Percentage int `json:"percentage"`
}

type AssetService interface {
	ListAssets(ctx context.Context, studyID string) ([]AssetResponse, error)
	UpdateAsset(ctx context.Context, userID, studyID, assetID string, req UpdateAssetRequest) (*AssetResponse, error)
	VerifyAsset(ctx context.Context, userID, studyID, assetID string) error
	Progress(ctx context.Context, studyID string) (*VerificationProgress, error)
}

type assetService struct {
	repo      repository.StudyRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	broker    *pubsub.Broker
}

func NewAssetService(
	repo repository.StudyRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	broker *pubsub.Broker,
) AssetService {
	return &assetService{repo: repo, auditRepo: auditRepo, txManager: txManager, broker: broker}
}

// CalculatePercentages derives each value's rounded share of total. A zero
// total yields all zeros, never a division by zero.
func CalculatePercentages(values []decimal.Decimal, total decimal.Decimal) []int {
	out := make([]int, len(values))
	if total.IsZero() {
		return out
	}
	hundred := decimal.NewFromInt(100)
	for i, v := range values {
		out[i] = int(v.Div(total).Mul(hundred).Round(0).IntPart())
	}
	return out
}

func toAssetResponses(assets []model.Asset) []AssetResponse {
	total := decimal.Zero
	values := make([]decimal.Decimal, len(assets))
	for i, a := range assets {
		values[i] = a.EstimatedValue
		total = total.Add(a.EstimatedValue)
	}
	percents := CalculatePercentages(values, total)

	out := make([]AssetResponse, len(assets))
	for i, a := range assets {
		out[i] = AssetResponse{Asset: a, PercentageOfTotal: percents[i]}
	}
	return out
}

func (s *assetService) ListAssets(ctx context.Context, studyID string) ([]AssetResponse, error) {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return toAssetResponses(study.Assets), nil
}

func (s *assetService) UpdateAsset(ctx context.Context, userID, studyID, assetID string, req UpdateAssetRequest) (*AssetResponse, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}

	var updated []model.Asset
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		study, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		assets := []model.Asset(study.Assets)
		at := -1
		for i := range assets {
			if assets[i].ID == assetID {
				at = i
				break
			}
		}
		if at < 0 {
			return apperror.ErrNotFound
		}

		a := &assets[at]
		if req.Name != nil {
			a.Name = *req.Name
		}
		if req.Description != nil {
			a.Description = *req.Description
		}
		if req.Category != nil {
			if !model.ValidCategory(*req.Category) {
				return apperror.NewValidation("category", "must be 5-year, 15-year, or 27.5-year")
			}
			a.Category = *req.Category
		}
		if req.EstimatedValue != nil {
			if req.EstimatedValue.IsNegative() {
				return apperror.NewValidation("estimated_value", "must be non-negative")
			}
			a.EstimatedValue = *req.EstimatedValue
		}
		if req.DepreciationPeriod != nil {
			if *req.DepreciationPeriod <= 0 {
				return apperror.NewValidation("depreciation_period", "must be a positive number of years")
			}
			a.DepreciationPeriod = *req.DepreciationPeriod
		}

		study, err = s.repo.UpdateFields(txCtx, id, map[string]interface{}{
			"assets": mustJSON(assets),
		})
		if err != nil {
			return err
		}
		updated = study.Assets
		s.broker.Publish(id, study)
		return nil
	})
	if err != nil {
		return nil, err
	}

	responses := toAssetResponses(updated)
	for i := range responses {
		if responses[i].ID == assetID {
			return &responses[i], nil
		}
	}
	return nil, apperror.ErrNotFound
}

// VerifyAsset marks an asset as engineer-confirmed. The write commits before
// this returns, so navigator advancement after it observes the new state.
func (s *assetService) VerifyAsset(ctx context.Context, userID, studyID, assetID string) error {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return apperror.NewValidation("study_id", "invalid uuid")
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		study, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		assets := []model.Asset(study.Assets)
		found := false
		for i := range assets {
			if assets[i].ID == assetID {
				assets[i].Verified = true
				found = true
				break
			}
		}
		if !found {
			return apperror.ErrNotFound
		}

		study, err = s.repo.UpdateFields(txCtx, id, map[string]interface{}{
			"assets": mustJSON(assets),
		})
		if err != nil {
			return err
		}

		entry := &model.AuditLog{
			Action:  model.ActionVerifyAsset,
			StudyID: studyID,
			Details: `{"asset_id":"` + assetID + `"}`,
		}
		if uid, err := uuid.Parse(userID); err == nil {
			entry.UserID = &uid
		}
		_ = s.auditRepo.Log(txCtx, entry)

		s.broker.Publish(id, study)
		return nil
	})
}

func (s *assetService) Progress(ctx context.Context, studyID string) (*VerificationProgress, error) {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}

	verified := 0
	for _, a := range study.Assets {
		if a.Verified {
			verified++
		}
	}
	return &VerificationProgress{
		Total:      len(study.Assets),
		Verified:   verified,
		Percentage: navigator.ProgressPercentage(study.Assets),
	}, nil
}

func (s *assetService) getStudy(ctx context.Context, studyID string) (*model.Study, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	return s.repo.FindByID(ctx, id)
}

// validateAssets runs shape checks before a wholesale assets replacement.
func validateAssets(assets []model.Asset) error {
	for _, a := range assets {
		if a.ID == "" {
			return apperror.NewValidation("id", "asset id is required")
		}
		if a.Category != "" && !model.ValidCategory(a.Category) {
			return apperror.NewValidation("category", "must be 5-year, 15-year, or 27.5-year")
		}
		if a.EstimatedValue.IsNegative() {
			return apperror.NewValidation("estimated_value", "must be non-negative")
		}
	}
	return nil
}
