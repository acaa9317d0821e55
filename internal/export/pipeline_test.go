package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"costseg/internal/model"
	"costseg/internal/storage"
)

// memBlobStore serves photo bytes from a map; absent paths fail.
type memBlobStore struct {
	objects map[string][]byte
}

func (s *memBlobStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[path] = data
	return nil
}

func (s *memBlobStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := s.objects[path]
	if !ok {
		return nil, errors.New("object missing")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) ResolveURL(ctx context.Context, path string) (string, error) {
	return "https://blobs.test/" + path, nil
}

func (s *memBlobStore) Delete(ctx context.Context, path string) error {
	delete(s.objects, path)
	return nil
}

func testFiles() []model.UploadedFile {
	return []model.UploadedFile{
		{ID: "p1", Name: "kitchen 1.jpg", ContentType: "image/jpeg", StoragePath: "studies/s1/p1.jpg"},
		{ID: "p2", Name: "kitchen 2.jpg", ContentType: "image/jpeg", StoragePath: "studies/s1/p2.jpg"},
		{ID: "p3", Name: "stray.png", ContentType: "image/png", StoragePath: "studies/s1/p3.png"},
		{ID: "d1", Name: "floorplan.pdf", ContentType: "application/pdf", StoragePath: "studies/s1/d1.pdf"},
	}
}

func testStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{
		"studies/s1/p1.jpg": []byte("photo-one"),
		"studies/s1/p2.jpg": []byte("photo-two"),
		"studies/s1/p3.png": []byte("photo-three"),
		"studies/s1/d1.pdf": []byte("not-a-photo"),
	}}
}

func archiveNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildRoomArchiveGroupsByCategoryAndRoom(t *testing.T) {
	p := NewPipeline(testStore())
	rooms := []model.Room{
		{ID: "r1", Name: "Kitchen", Category: "interior", PhotoIDs: []string{"p1", "p2"}},
	}

	var lastCompleted, lastTotal int
	res, err := p.BuildRoomArchive(context.Background(), rooms, testFiles(), func(completed, total int) {
		lastCompleted, lastTotal = completed, total
	})
	if err != nil {
		t.Fatalf("BuildRoomArchive: %v", err)
	}
	if res.SuccessCount != 3 || res.ErrorCount != 0 {
		t.Errorf("counts = %d/%d, want 3 successes", res.SuccessCount, res.ErrorCount)
	}
	if lastCompleted != lastTotal || lastTotal != 3 {
		t.Errorf("final progress %d/%d, want 3/3", lastCompleted, lastTotal)
	}

	names := archiveNames(t, res.Archive)
	want := map[string]bool{
		"interior/Kitchen/kitchen_1.jpg": false,
		"interior/Kitchen/kitchen_2.jpg": false,
		"unassigned/stray.png":           false, // p3 referenced by no room
	}
	for _, n := range names {
		if _, ok := want[n]; !ok {
			t.Errorf("unexpected entry %q", n)
		}
		want[n] = true
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("missing entry %q", n)
		}
	}
}

func TestBuildRoomArchiveSkipsNonImages(t *testing.T) {
	p := NewPipeline(testStore())
	rooms := []model.Room{
		{ID: "r1", Name: "Office", Category: "interior", PhotoIDs: []string{"p1", "d1"}},
	}
	files := []model.UploadedFile{testFiles()[0], testFiles()[3]}
	res, err := p.BuildRoomArchive(context.Background(), rooms, files, nil)
	if err != nil {
		t.Fatalf("BuildRoomArchive: %v", err)
	}
	for _, n := range archiveNames(t, res.Archive) {
		if strings.Contains(n, "floorplan") {
			t.Errorf("non-image file exported: %q", n)
		}
	}
}

func TestBuildRoomArchivePartialFailure(t *testing.T) {
	p := NewPipeline(testStore())
	rooms := []model.Room{
		{ID: "r1", Name: "Kitchen", Category: "interior", PhotoIDs: []string{"p1", "p2", "ghost"}},
	}
	files := testFiles()[:2] // p3 not present, ghost never existed

	res, err := p.BuildRoomArchive(context.Background(), rooms, files, nil)
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if res.SuccessCount != 2 || res.ErrorCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", res.SuccessCount, res.ErrorCount)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "ghost") {
		t.Errorf("errors = %v, want one naming the missing id", res.Errors)
	}
	if res.Archive == nil {
		t.Error("expected a non-nil archive alongside the failure summary")
	}
}

func TestBuildRoomArchiveNothingToExport(t *testing.T) {
	p := NewPipeline(testStore())
	_, err := p.BuildRoomArchive(context.Background(), nil, nil, nil)
	if !errors.Is(err, ErrNothingToExport) {
		t.Errorf("err = %v, want ErrNothingToExport", err)
	}
}

func TestBuildRoomArchiveAllFailures(t *testing.T) {
	p := NewPipeline(&memBlobStore{objects: map[string][]byte{}})
	rooms := []model.Room{
		{ID: "r1", Name: "Kitchen", Category: "interior", PhotoIDs: []string{"p1"}},
	}
	_, err := p.BuildRoomArchive(context.Background(), rooms, testFiles()[:1], nil)
	if !errors.Is(err, ErrAllExportsFailed) {
		t.Errorf("err = %v, want ErrAllExportsFailed", err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Kitchen  #2 (North)": "Kitchen_2_North",
		"a/b\\c":              "a_b_c",
		"   ":                 "unnamed",
		"plain.jpg":           "plain.jpg",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
