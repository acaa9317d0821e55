package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"costseg/internal/model"
	"costseg/internal/pubsub"
	"costseg/internal/repository"
	"costseg/internal/storage"
	"costseg/pkg/apperror"

	"github.com/google/uuid"
)

type UploadFileRequest struct {
	Name        string
	ContentType string
	Size        int64
	Category    string
	RoomID      string
}

type FileService interface {
	// Upload streams the payload to blob storage, then appends the file
	// entry to the study document. Progress reports upload percent.
	Upload(ctx context.Context, userID, studyID string, req UploadFileRequest, r io.Reader, progress storage.ProgressFunc) (*model.UploadedFile, error)
	ListFiles(ctx context.Context, studyID string) ([]model.UploadedFile, error)
	// ResolveURL returns a time-limited download URL for a stored file.
	ResolveURL(ctx context.Context, studyID, fileID string) (string, error)
	Delete(ctx context.Context, userID, studyID, fileID string) error
	// LinkAssets replaces the set of assets a file is associated with.
	LinkAssets(ctx context.Context, studyID, fileID string, assetIDs []string) (*model.UploadedFile, error)
}

type fileService struct {
	repo      repository.StudyRepository
	auditRepo repository.AuditRepository
	blobs     storage.BlobStore
	broker    *pubsub.Broker

	// signed URLs are valid for an hour; cache them for a bit less so a
	// cached URL never outlives its signature.
	urlMu    sync.Mutex
	urlCache map[string]cachedURL
	urlTTL   time.Duration
}

type cachedURL struct {
	url     string
	expires time.Time
}

func NewFileService(repo repository.StudyRepository, auditRepo repository.AuditRepository, blobs storage.BlobStore, broker *pubsub.Broker) FileService {
	return &fileService{
		repo:      repo,
		auditRepo: auditRepo,
		blobs:     blobs,
		broker:    broker,
		urlCache:  make(map[string]cachedURL),
		urlTTL:    50 * time.Minute,
	}
}

func (s *fileService) Upload(ctx context.Context, userID, studyID string, req UploadFileRequest, r io.Reader, progress storage.ProgressFunc) (*model.UploadedFile, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	if req.Name == "" {
		return nil, apperror.NewValidation("name", "file name is required")
	}
	if req.Category != "" && !validFileCategory(req.Category) {
		return nil, apperror.NewValidation("category", "unknown file category")
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, apperror.ErrNotConfigured
	}

	file := model.UploadedFile{
		ID:          uuid.NewString(),
		Name:        req.Name,
		ContentType: req.ContentType,
		Size:        req.Size,
		Category:    req.Category,
		RoomID:      req.RoomID,
	}
	file.StoragePath = fmt.Sprintf("studies/%s/files/%s/%s", studyID, file.ID, safeObjectName(req.Name))

	if err := s.blobs.Upload(ctx, file.StoragePath, r, req.Size, req.ContentType, progress); err != nil {
		return nil, fmt.Errorf("upload %s: %w", req.Name, err)
	}

	files := append(cloneFiles(study.UploadedFiles), file)
	updated, err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"uploaded_files": mustJSON(files),
	})
	if err != nil {
		// The blob is orphaned; remove it so storage does not accumulate
		// objects no document references.
		_ = s.blobs.Delete(context.Background(), file.StoragePath)
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, userID, model.ActionUploadFile, studyID, file.Name, map[string]interface{}{
		"file_id":  file.ID,
		"category": file.Category,
		"size":     file.Size,
	})
	s.broker.Publish(id, updated)
	return &file, nil
}

func (s *fileService) ListFiles(ctx context.Context, studyID string) ([]model.UploadedFile, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}
	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return study.UploadedFiles, nil
}

func (s *fileService) ResolveURL(ctx context.Context, studyID, fileID string) (string, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return "", apperror.NewValidation("study_id", "invalid uuid")
	}

	s.urlMu.Lock()
	if entry, ok := s.urlCache[fileID]; ok && time.Now().Before(entry.expires) {
		s.urlMu.Unlock()
		return entry.url, nil
	}
	s.urlMu.Unlock()

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	file := findFile(study.UploadedFiles, fileID)
	if file == nil {
		return "", apperror.ErrNotFound
	}
	if file.DownloadURL != "" {
		return file.DownloadURL, nil
	}
	if s.blobs == nil {
		return "", apperror.ErrNotConfigured
	}

	url, err := s.blobs.ResolveURL(ctx, file.StoragePath)
	if err != nil {
		return "", err
	}
	s.urlMu.Lock()
	s.urlCache[fileID] = cachedURL{url: url, expires: time.Now().Add(s.urlTTL)}
	s.urlMu.Unlock()
	return url, nil
}

func (s *fileService) Delete(ctx context.Context, userID, studyID, fileID string) error {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return apperror.NewValidation("study_id", "invalid uuid")
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	file := findFile(study.UploadedFiles, fileID)
	if file == nil {
		return apperror.ErrNotFound
	}

	files := make([]model.UploadedFile, 0, len(study.UploadedFiles)-1)
	for _, f := range study.UploadedFiles {
		if f.ID != fileID {
			files = append(files, f)
		}
	}
	updated, err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"uploaded_files": mustJSON(files),
	})
	if err != nil {
		return err
	}

	if s.blobs != nil && file.StoragePath != "" {
		// Best effort: the document no longer references the blob either way.
		_ = s.blobs.Delete(ctx, file.StoragePath)
	}
	s.urlMu.Lock()
	delete(s.urlCache, fileID)
	s.urlMu.Unlock()

	recordAudit(ctx, s.auditRepo, userID, model.ActionDeleteFile, studyID, file.Name, map[string]interface{}{
		"file_id": fileID,
	})
	s.broker.Publish(id, updated)
	return nil
}

func (s *fileService) LinkAssets(ctx context.Context, studyID, fileID string, assetIDs []string) (*model.UploadedFile, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return nil, apperror.NewValidation("study_id", "invalid uuid")
	}

	study, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(study.Assets))
	for _, a := range study.Assets {
		known[a.ID] = struct{}{}
	}
	for _, aid := range assetIDs {
		if _, ok := known[aid]; !ok {
			return nil, apperror.NewValidation("asset_ids", fmt.Sprintf("unknown asset %q", aid))
		}
	}

	files := cloneFiles(study.UploadedFiles)
	var linked *model.UploadedFile
	for i := range files {
		if files[i].ID == fileID {
			files[i].AssetIDs = assetIDs
			linked = &files[i]
			break
		}
	}
	if linked == nil {
		return nil, apperror.ErrNotFound
	}

	updated, err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"uploaded_files": mustJSON(files),
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(id, updated)
	return linked, nil
}

func findFile(files []model.UploadedFile, fileID string) *model.UploadedFile {
	for i := range files {
		if files[i].ID == fileID {
			return &files[i]
		}
	}
	return nil
}

func cloneFiles(files []model.UploadedFile) []model.UploadedFile {
	return append([]model.UploadedFile(nil), files...)
}

func validFileCategory(category string) bool {
	switch category {
	case model.FileCategorySitePhoto, model.FileCategoryDocument, model.FileCategoryPlan:
		return true
	}
	return false
}

// safeObjectName keeps object keys free of path separators and control
// characters without mangling the original file name beyond recognition.
func safeObjectName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		return "file"
	}
	return name
}
