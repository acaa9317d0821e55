package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WorkflowStatus constants in canonical pipeline order. The order of
// StepOrder is load-bearing: transitions are only valid between adjacent
// entries.
const (
	StepUploadingDocuments = "uploading_documents"
	StepAnalyzingRooms     = "analyzing_rooms"
	StepResourceExtraction = "resource_extraction"
	StepReviewingRooms     = "reviewing_rooms"
	StepEngineeringTakeoff = "engineering_takeoff"
	StepCompleted          = "completed"
)

// StepOrder is the canonical linear progression of a study.
var StepOrder = []string{
	StepUploadingDocuments,
	StepAnalyzingRooms,
	StepResourceExtraction,
	StepReviewingRooms,
	StepEngineeringTakeoff,
	StepCompleted,
}

// Coarse study status derived from workflow status
const (
	StudyPending    = "pending"
	StudyInProgress = "in_progress"
	StudyCompleted  = "completed"
)

// Room is one classified room inside a study document.
type Room struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	RoomType string   `json:"room_type"`
	Category string   `json:"category"` // export grouping, e.g. "interior"
	PhotoIDs []string `json:"photo_ids"`
}

// PhotoAnnotation is a reviewer note pinned to an uploaded photo.
type PhotoAnnotation struct {
	PhotoID   string    `json:"photo_id"`
	Note      string    `json:"note"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Study is the aggregate root for one property's cost-segregation analysis.
// The nested collections are owned by the study and persisted as jsonb
// columns; they have no independent lifecycle.
type Study struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name    string    `gorm:"type:varchar(255);not null" json:"name"`
	Address string    `gorm:"type:varchar(500)" json:"address"`

	// WorkflowStatus is the highest step reached; it never regresses.
	// CurrentStep is what the user is looking at and may move backward.
	WorkflowStatus string                     `gorm:"type:varchar(50);not null;default:'uploading_documents';index" json:"workflow_status"`
	CurrentStep    string                     `gorm:"type:varchar(50)" json:"current_step"`
	VisitedSteps   datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"visited_steps"`
	Status         string                     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	Rooms         datatypes.JSONSlice[Room]         `gorm:"type:jsonb" json:"rooms"`
	Assets        datatypes.JSONSlice[Asset]        `gorm:"type:jsonb" json:"assets"`
	Takeoffs      datatypes.JSONSlice[Takeoff]      `gorm:"type:jsonb" json:"takeoffs"`
	TakeoffCopies datatypes.JSONSlice[Takeoff]      `gorm:"type:jsonb" json:"takeoff_copies"`
	UploadedFiles datatypes.JSONSlice[UploadedFile] `gorm:"type:jsonb" json:"uploaded_files"`

	PhotoAnnotations datatypes.JSONType[map[string]PhotoAnnotation] `gorm:"type:jsonb" json:"photo_annotations"`

	// Version increments on every update. Not yet used for compare-and-swap;
	// it exists so a conflict check can be added without a migration.
	Version int64 `gorm:"not null;default:0" json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// StepIndex returns the position of status in the canonical order,
// or -1 when the status is unknown.
func StepIndex(status string) int {
	for i, s := range StepOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// DeriveStatus maps a workflow status onto the coarse pending/in_progress/
// completed classification.
func DeriveStatus(workflowStatus string) string {
	switch workflowStatus {
	case StepUploadingDocuments:
		return StudyPending
	case StepCompleted:
		return StudyCompleted
	default:
		return StudyInProgress
	}
}

// NormalizeStudy fills defaults on documents written before the visited-steps
// fields existed. All legacy-shape handling lives here, not at call sites.
func NormalizeStudy(s *Study) {
	if s == nil {
		return
	}
	if s.WorkflowStatus == "" {
		s.WorkflowStatus = StepUploadingDocuments
	}
	if s.CurrentStep == "" {
		s.CurrentStep = s.WorkflowStatus
	}
	if !containsStep(s.VisitedSteps, s.WorkflowStatus) {
		s.VisitedSteps = append(s.VisitedSteps, s.WorkflowStatus)
	}
	if s.Status == "" {
		s.Status = DeriveStatus(s.WorkflowStatus)
	}
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
