package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EditingDraft is a per-study, per-asset snapshot of in-progress edits so an
// engineer can resume on the same device. It is a cache only: the study
// document remains the source of truth and drafts are dropped on conflict.
type EditingDraft struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StudyID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_draft_study_asset,unique" json:"study_id"`
	AssetID   string         `gorm:"type:varchar(64);not null;index:idx_draft_study_asset,unique" json:"asset_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"` // asset + takeoff editable state
	UpdatedAt time.Time      `json:"updated_at"`
	CreatedAt time.Time      `json:"created_at"`
}
