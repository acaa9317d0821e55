package model

import "strings"

// File category constants used for export grouping
const (
	FileCategorySitePhoto = "site_photo"
	FileCategoryDocument  = "document"
	FileCategoryPlan      = "plan"
)

// UploadedFile describes one object uploaded against a study. Binary content
// lives in the blob store under StoragePath; DownloadURL is a resolved URL
// cached after the first lookup.
type UploadedFile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Size        int64    `json:"size"`
	StoragePath string   `json:"storage_path"`
	DownloadURL string   `json:"download_url,omitempty"`
	Category    string   `json:"category,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
	AssetIDs    []string `json:"asset_ids,omitempty"`
}

// IsImage reports whether the file is eligible for the photo export
// (MIME type starting with image/).
func (f UploadedFile) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}
