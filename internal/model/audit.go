package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateStudy     = "CREATE_STUDY"
	ActionUpdateStudy     = "UPDATE_STUDY"
	ActionDeleteStudy     = "DELETE_STUDY"
	ActionAdvanceWorkflow = "ADVANCE_WORKFLOW"
	ActionNavigateStep    = "NAVIGATE_STEP"
	ActionVerifyAsset     = "VERIFY_ASSET"
	ActionUploadFile      = "UPLOAD_FILE"
	ActionDeleteFile      = "DELETE_FILE"
	ActionExportPhotos    = "EXPORT_PHOTOS"
	ActionExportSchedule  = "EXPORT_SCHEDULE"
	ActionStartAnalysis   = "START_ANALYSIS"
)

// AuditLog tracks Who, What, and When for critical study changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated pipeline
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	StudyID    string     `gorm:"type:varchar(50);index" json:"study_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
