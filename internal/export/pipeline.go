// Package export builds downloadable artifacts from a study: the
// category/room photo archive and the depreciation schedule workbook.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"costseg/internal/model"
	"costseg/internal/storage"
	"costseg/pkg/apperror"
)

// ErrNothingToExport is returned when no photo is referenced by any room or
// the unassigned bucket. An empty archive is never produced.
var ErrNothingToExport = errors.New("no photos to export")

// ErrAllExportsFailed is returned when every item failed; partial failures
// still return an archive.
var ErrAllExportsFailed = errors.New("all photo exports failed")

// ProgressFunc reports completed items (success or failure) out of total.
type ProgressFunc func(completed, total int)

// Result carries the produced archive and the per-item failure summary.
type Result struct {
	Archive      []byte
	SuccessCount int
	ErrorCount   int
	Errors       []string
}

// Pipeline resolves photo bytes through the blob store (or a cached
// download URL) and packs them into a hierarchical zip.
type Pipeline struct {
	blobs storage.BlobStore
	http  *http.Client
}

func NewPipeline(blobs storage.BlobStore) *Pipeline {
	return &Pipeline{blobs: blobs, http: http.DefaultClient}
}

type photoRef struct {
	folder string
	file   model.UploadedFile
}

// BuildRoomArchive groups photos category → room → file, with photos not
// referenced by any room under an unassigned bucket. Per-item failures are
// recorded and siblings continue; the archive fails as a whole only when
// there is nothing to export, nothing succeeded, or the zip cannot be
// serialized.
func (p *Pipeline) BuildRoomArchive(ctx context.Context, rooms []model.Room, files []model.UploadedFile, progress ProgressFunc) (*Result, error) {
	byID := make(map[string]model.UploadedFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	res := &Result{}
	var refs []photoRef
	referenced := make(map[string]bool)

	for _, room := range rooms {
		category := room.Category
		if category == "" {
			category = "uncategorized"
		}
		folder := sanitizeName(category) + "/" + sanitizeName(room.Name)
		for _, photoID := range room.PhotoIDs {
			referenced[photoID] = true
			file, ok := byID[photoID]
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("room %s: file %s not found", room.Name, photoID))
				res.ErrorCount++
				continue
			}
			if !file.IsImage() {
				continue
			}
			refs = append(refs, photoRef{folder: folder, file: file})
		}
	}
	for _, f := range files {
		if !referenced[f.ID] && f.IsImage() {
			refs = append(refs, photoRef{folder: "unassigned", file: f})
		}
	}

	total := len(refs) + res.ErrorCount
	if total == 0 {
		return nil, ErrNothingToExport
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	completed := res.ErrorCount // missing ids count as attempted items
	report := func() {
		if progress != nil {
			progress(completed, total)
		}
	}
	report()

	for _, ref := range refs {
		if err := p.addPhoto(ctx, zw, ref); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s/%s: %v", ref.folder, ref.file.Name, err))
			res.ErrorCount++
		} else {
			res.SuccessCount++
		}
		completed++
		report()
	}

	if res.SuccessCount == 0 {
		_ = zw.Close()
		return nil, fmt.Errorf("%w: %s", ErrAllExportsFailed, strings.Join(res.Errors, "; "))
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("serialize archive: %w", err)
	}
	res.Archive = buf.Bytes()
	return res, nil
}

func (p *Pipeline) addPhoto(ctx context.Context, zw *zip.Writer, ref photoRef) error {
	body, err := p.open(ctx, ref.file)
	if err != nil {
		return err
	}
	defer body.Close()

	w, err := zw.Create(ref.folder + "/" + sanitizeName(ref.file.Name))
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// open fetches photo bytes: a cached download URL wins, otherwise the blob
// store resolves the storage path.
func (p *Pipeline) open(ctx context.Context, file model.UploadedFile) (io.ReadCloser, error) {
	if file.DownloadURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.DownloadURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", file.Name, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: HTTP %d", file.Name, resp.StatusCode)
		}
		return resp.Body, nil
	}
	if file.StoragePath == "" {
		return nil, errors.New("no storage path or download url")
	}
	if p.blobs == nil {
		return nil, apperror.ErrNotConfigured
	}
	return p.blobs.Download(ctx, file.StoragePath)
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeName collapses whitespace and replaces characters unsafe for
// archive paths.
func sanitizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = nonAlnum.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "unnamed"
	}
	return name
}
