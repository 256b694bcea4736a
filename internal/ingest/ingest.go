package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/printpoint/kiosk/internal/config"
	"github.com/printpoint/kiosk/internal/core"
	"github.com/printpoint/kiosk/internal/db"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeJPEG = "image/jpeg"
)

// extByMIME maps an accepted content type to the extension the stored
// artifact gets, regardless of what the client named the file.
var extByMIME = map[string]string{
	mimePDF:  ".pdf",
	mimeDOCX: ".docx",
	mimeJPEG: ".jpg",
}

// Intake receives ids of freshly created documents.
type Intake interface {
	Notify(id string)
}

// Merger combines stored artifacts into a single print-ready PDF.
type Merger interface {
	Merge(ctx context.Context, inputs []string, outPath string) error
}

// File is one uploaded artifact as received from a client.
type File struct {
	Filename string
	Reader   io.Reader
}

// PrintOptions are the client-chosen print parameters, validated at upload.
type PrintOptions struct {
	Copies    int
	ColorMode string
}

// Service validates uploads, persists artifacts and creates documents. Each
// call is independent; concurrent uploads share nothing but the store.
type Service struct {
	uploadDir   string
	mergedDir   string
	maxFileSize int64
	merger      Merger
	intake      Intake
}

func NewService(cfg *config.StorageConfig, merger Merger, intake Intake) (*Service, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.MkdirAll(cfg.MergedDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create merged directory: %w", err)
	}

	return &Service{
		uploadDir:   cfg.UploadDir,
		mergedDir:   cfg.MergedDir,
		maxFileSize: cfg.MaxFileSize,
		merger:      merger,
		intake:      intake,
	}, nil
}

// Upload validates and stores a single artifact and creates its document in
// state uploaded.
func (s *Service) Upload(ctx context.Context, file File, opts PrintOptions, ownerID string) (*db.Document, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	stored, err := s.storeFile(file)
	if err != nil {
		return nil, err
	}

	doc := &db.Document{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		OriginalFilename: file.Filename,
		StoredFilename:   stored.name,
		FilePath:         stored.path,
		FileSize:         stored.size,
		FileType:         stored.mime,
		SourceFiles:      []string{stored.path},
		Copies:           opts.Copies,
		ColorMode:        opts.ColorMode,
		Status:           string(core.StatusUploaded),
	}

	if err := db.Documents.CreateDocument(ctx, doc); err != nil {
		os.Remove(stored.path)
		return nil, err
	}

	log.Printf("[ingest] stored %s as %s (%d bytes, %s)", file.Filename, stored.name, stored.size, stored.mime)
	s.intake.Notify(doc.ID)

	return db.Documents.GetDocumentByID(ctx, doc.ID)
}

// MergeAndUpload validates each artifact, concatenates them in the given
// order into one print-ready PDF, and creates a single merged document. On
// any failure nothing is persisted.
func (s *Service) MergeAndUpload(ctx context.Context, files []File, opts PrintOptions, ownerID string) (*db.Document, error) {
	if len(files) < 2 {
		return nil, fmt.Errorf("%w: merging requires at least two files", core.ErrValidation)
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	var storedPaths []string
	cleanup := func() {
		for _, p := range storedPaths {
			os.Remove(p)
		}
	}

	var totalName string
	for i, file := range files {
		stored, err := s.storeFile(file)
		if err != nil {
			cleanup()
			return nil, err
		}
		storedPaths = append(storedPaths, stored.path)
		if i == 0 {
			totalName = file.Filename
		}
	}

	mergedName := uuid.NewString() + ".pdf"
	mergedPath := filepath.Join(s.mergedDir, mergedName)

	if err := s.merger.Merge(ctx, storedPaths, mergedPath); err != nil {
		cleanup()
		os.Remove(mergedPath)
		return nil, fmt.Errorf("%w: %v", core.ErrMerge, err)
	}

	info, err := os.Stat(mergedPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: merged output missing: %v", core.ErrMerge, err)
	}

	doc := &db.Document{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		OriginalFilename: fmt.Sprintf("%s (+%d more)", totalName, len(files)-1),
		StoredFilename:   mergedName,
		FilePath:         mergedPath,
		FileSize:         info.Size(),
		FileType:         mimePDF,
		Merged:           true,
		SourceFiles:      storedPaths,
		PrintPath:        mergedPath,
		Copies:           opts.Copies,
		ColorMode:        opts.ColorMode,
		Status:           string(core.StatusUploaded),
	}

	if err := db.Documents.CreateDocument(ctx, doc); err != nil {
		cleanup()
		os.Remove(mergedPath)
		return nil, err
	}

	log.Printf("[ingest] merged %d files into %s (%d bytes)", len(files), mergedName, info.Size())
	s.intake.Notify(doc.ID)

	return db.Documents.GetDocumentByID(ctx, doc.ID)
}

func validateOptions(opts PrintOptions) error {
	if opts.Copies < 1 || opts.Copies > 100 {
		return fmt.Errorf("%w: copies must be between 1 and 100, got %d", core.ErrValidation, opts.Copies)
	}
	switch opts.ColorMode {
	case core.ColorModeBW, core.ColorModeColor:
	default:
		return fmt.Errorf("%w: color mode must be bw or color, got %q", core.ErrValidation, opts.ColorMode)
	}
	return nil
}

type storedFile struct {
	name string
	path string
	size int64
	mime string
}

// storeFile writes the artifact to the upload directory under a fresh name,
// enforcing the size ceiling while copying and the accepted content types by
// sniffing the stored bytes. The client-supplied filename is never trusted.
func (s *Service) storeFile(file File) (storedFile, error) {
	tmpPath := filepath.Join(s.uploadDir, uuid.NewString()+".tmp")

	out, err := os.Create(tmpPath)
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to store upload: %w", err)
	}

	written, err := io.Copy(out, io.LimitReader(file.Reader, s.maxFileSize+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return storedFile{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if written > s.maxFileSize {
		os.Remove(tmpPath)
		return storedFile{}, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.maxFileSize)
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return storedFile{}, fmt.Errorf("failed to detect file type: %w", err)
	}

	ext, ok := extByMIME[mtype.String()]
	if !ok {
		os.Remove(tmpPath)
		return storedFile{}, fmt.Errorf("%w: %s (accepted: pdf, docx, jpeg)", core.ErrUnsupportedType, mtype.String())
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.uploadDir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return storedFile{}, fmt.Errorf("failed to store upload: %w", err)
	}

	return storedFile{name: name, path: path, size: written, mime: mtype.String()}, nil
}
