package ingest

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printpoint/kiosk/internal/config"
	"github.com/printpoint/kiosk/internal/core"
	"github.com/printpoint/kiosk/internal/db"
)

func TestMain(m *testing.M) {
	if err := db.Init(db.Config{Path: ":memory:"}); err != nil {
		panic(err)
	}
	code := m.Run()
	db.Close()
	os.Exit(code)
}

var (
	pdfBytes  = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, []byte("JFIF\x00fake-jpeg-body")...)
)

type fakeIntake struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIntake) Notify(id string) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
}

func (f *fakeIntake) notified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeMerger struct {
	fail   bool
	inputs []string
}

func (m *fakeMerger) Merge(ctx context.Context, inputs []string, outPath string) error {
	m.inputs = append([]string(nil), inputs...)
	if m.fail {
		return assert.AnError
	}
	return os.WriteFile(outPath, pdfBytes, 0o644)
}

func newTestService(t *testing.T, maxFileSize int64, merger Merger) (*Service, *fakeIntake) {
	t.Helper()
	intake := &fakeIntake{}
	svc, err := NewService(&config.StorageConfig{
		UploadDir:   t.TempDir(),
		MergedDir:   t.TempDir(),
		MaxFileSize: maxFileSize,
	}, merger, intake)
	require.NoError(t, err)
	return svc, intake
}

func defaultOptions() PrintOptions {
	return PrintOptions{Copies: 1, ColorMode: core.ColorModeBW}
}

func countDocuments(t *testing.T) int64 {
	t.Helper()
	n, err := db.Documents.CountDocuments(context.Background())
	require.NoError(t, err)
	return n
}

func TestUploadStoresPDF(t *testing.T) {
	svc, intake := newTestService(t, 1<<20, &fakeMerger{})

	doc, err := svc.Upload(context.Background(), File{
		Filename: "thesis.pdf",
		Reader:   bytes.NewReader(pdfBytes),
	}, PrintOptions{Copies: 3, ColorMode: core.ColorModeColor}, "")
	require.NoError(t, err)

	assert.Equal(t, "thesis.pdf", doc.OriginalFilename)
	assert.Equal(t, "application/pdf", doc.FileType)
	assert.Equal(t, int64(len(pdfBytes)), doc.FileSize)
	assert.Equal(t, "uploaded", doc.Status)
	assert.Equal(t, 3, doc.Copies)
	assert.Equal(t, core.ColorModeColor, doc.ColorMode)
	assert.False(t, doc.Merged)
	assert.Len(t, doc.SourceFiles, 1)
	assert.True(t, strings.HasSuffix(doc.StoredFilename, ".pdf"))

	_, err = os.Stat(doc.FilePath)
	assert.NoError(t, err, "stored artifact should exist")

	assert.Equal(t, []string{doc.ID}, intake.notified())
}

func TestUploadSniffsTypeIgnoringFilename(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})

	// jpeg content behind a pdf name still stores as jpeg
	doc, err := svc.Upload(context.Background(), File{
		Filename: "photo.pdf",
		Reader:   bytes.NewReader(jpegBytes),
	}, defaultOptions(), "")
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", doc.FileType)
	assert.True(t, strings.HasSuffix(doc.StoredFilename, ".jpg"))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc, intake := newTestService(t, 16, &fakeMerger{})
	before := countDocuments(t)

	_, err := svc.Upload(context.Background(), File{
		Filename: "big.pdf",
		Reader:   bytes.NewReader(pdfBytes),
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrFileTooLarge)

	assert.Equal(t, before, countDocuments(t))
	assert.Empty(t, intake.notified())
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})
	before := countDocuments(t)

	_, err := svc.Upload(context.Background(), File{
		Filename: "notes.txt",
		Reader:   strings.NewReader("just some plain text, nothing printable here"),
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
	assert.Equal(t, before, countDocuments(t))
}

func TestUploadRejectsBadPrintOptions(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})

	cases := []PrintOptions{
		{Copies: 0, ColorMode: core.ColorModeBW},
		{Copies: 101, ColorMode: core.ColorModeBW},
		{Copies: 1, ColorMode: "grayscale"},
		{Copies: 1, ColorMode: ""},
	}
	for _, opts := range cases {
		_, err := svc.Upload(context.Background(), File{
			Filename: "doc.pdf",
			Reader:   bytes.NewReader(pdfBytes),
		}, opts, "")
		assert.ErrorIs(t, err, core.ErrValidation, "options %+v should be rejected", opts)
	}
}

func TestMergeAndUpload(t *testing.T) {
	merger := &fakeMerger{}
	svc, intake := newTestService(t, 1<<20, merger)

	doc, err := svc.MergeAndUpload(context.Background(), []File{
		{Filename: "cover.pdf", Reader: bytes.NewReader(pdfBytes)},
		{Filename: "body.pdf", Reader: bytes.NewReader(pdfBytes)},
	}, defaultOptions(), "")
	require.NoError(t, err)

	assert.Equal(t, "cover.pdf (+1 more)", doc.OriginalFilename)
	assert.True(t, doc.Merged)
	assert.Len(t, doc.SourceFiles, 2)
	assert.Equal(t, "application/pdf", doc.FileType)
	assert.Equal(t, doc.FilePath, doc.PrintPath, "merged output is already print-ready")
	assert.Equal(t, doc.SourceFiles, merger.inputs)

	_, err = os.Stat(doc.FilePath)
	assert.NoError(t, err)

	assert.Equal(t, []string{doc.ID}, intake.notified())
}

func TestMergeRequiresAtLeastTwoFiles(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})
	before := countDocuments(t)

	_, err := svc.MergeAndUpload(context.Background(), nil, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.MergeAndUpload(context.Background(), []File{
		{Filename: "only.pdf", Reader: bytes.NewReader(pdfBytes)},
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, before, countDocuments(t))
}

func TestMergeFailureLeavesNothingBehind(t *testing.T) {
	merger := &fakeMerger{fail: true}
	svc, intake := newTestService(t, 1<<20, merger)
	before := countDocuments(t)

	_, err := svc.MergeAndUpload(context.Background(), []File{
		{Filename: "a.pdf", Reader: bytes.NewReader(pdfBytes)},
		{Filename: "b.pdf", Reader: bytes.NewReader(pdfBytes)},
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrMerge)

	assert.Equal(t, before, countDocuments(t))
	assert.Empty(t, intake.notified())

	// stored inputs were cleaned up on failure
	for _, p := range merger.inputs {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), "expected %s to be removed", p)
	}
}

func TestMergeRejectsUnsupportedInput(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})
	before := countDocuments(t)

	_, err := svc.MergeAndUpload(context.Background(), []File{
		{Filename: "a.pdf", Reader: bytes.NewReader(pdfBytes)},
		{Filename: "b.txt", Reader: strings.NewReader("plain text is not printable")},
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
	assert.Equal(t, before, countDocuments(t))
}

func TestOversizeCutsOffAtLimit(t *testing.T) {
	// exactly at the limit passes, one byte over fails
	svc, _ := newTestService(t, int64(len(pdfBytes)), &fakeMerger{})

	_, err := svc.Upload(context.Background(), File{
		Filename: "exact.pdf",
		Reader:   bytes.NewReader(pdfBytes),
	}, defaultOptions(), "")
	require.NoError(t, err)

	over := append(append([]byte(nil), pdfBytes...), '\n')
	_, err = svc.Upload(context.Background(), File{
		Filename: "over.pdf",
		Reader:   bytes.NewReader(over),
	}, defaultOptions(), "")
	assert.ErrorIs(t, err, core.ErrFileTooLarge)
}

func TestUploadRecordsOwner(t *testing.T) {
	svc, _ := newTestService(t, 1<<20, &fakeMerger{})

	user := &db.User{ID: "owner-1", Name: "Ada", Email: "owner-1@example.com", PasswordHash: "x"}
	require.NoError(t, db.Users.CreateUser(context.Background(), user))

	doc, err := svc.Upload(context.Background(), File{
		Filename: "mine.pdf",
		Reader:   bytes.NewReader(pdfBytes),
	}, defaultOptions(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, doc.OwnerID)
}
