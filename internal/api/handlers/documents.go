package handlers

import (
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printpoint/kiosk/internal/api/middleware"
	"github.com/printpoint/kiosk/internal/core"
	"github.com/printpoint/kiosk/internal/db"
	"github.com/printpoint/kiosk/internal/ingest"
)

type PrintOptionsResponse struct {
	Copies    int    `json:"copies"`
	ColorMode string `json:"color_mode"`
}

type DocumentResponse struct {
	ID               string               `json:"id"`
	OriginalFilename string               `json:"original_filename"`
	FileSize         int64                `json:"file_size"`
	FileType         string               `json:"file_type"`
	Merged           bool                 `json:"merged"`
	SourceFiles      int                  `json:"source_files"`
	Status           string               `json:"status"`
	FailureReason    string               `json:"failure_reason,omitempty"`
	PrintOptions     PrintOptionsResponse `json:"print_options"`
	UploadTime       time.Time            `json:"upload_time"`
}

type PrintRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

type DocumentHandler struct {
	ingest    *ingest.Service
	scheduler *core.Scheduler
}

func NewDocumentHandler(ingestService *ingest.Service, scheduler *core.Scheduler) *DocumentHandler {
	return &DocumentHandler{
		ingest:    ingestService,
		scheduler: scheduler,
	}
}

func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	opts, ok := parsePrintOptions(c)
	if !ok {
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	doc, err := h.ingest.Upload(c.Request.Context(), ingest.File{
		Filename: fileHeader.Filename,
		Reader:   f,
	}, opts, middleware.UserID(c))
	if err != nil {
		respondIngestError(c, err)
		return
	}

	c.JSON(http.StatusCreated, docToResponse(doc))
}

func (h *DocumentHandler) MergeAndUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
		return
	}

	headers := form.File["files"]
	opts, ok := parsePrintOptions(c)
	if !ok {
		return
	}

	files := make([]ingest.File, 0, len(headers))
	readers := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
			return
		}
		readers = append(readers, f)
		files = append(files, ingest.File{Filename: fh.Filename, Reader: f})
	}

	doc, err := h.ingest.MergeAndUpload(c.Request.Context(), files, opts, middleware.UserID(c))
	if err != nil {
		respondIngestError(c, err)
		return
	}

	c.JSON(http.StatusCreated, docToResponse(doc))
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	id := c.Param("id")

	doc, err := db.Documents.GetDocumentByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get document"})
		return
	}

	c.JSON(http.StatusOK, docToResponse(doc))
}

// TriggerPrint releases a document for printing. Requests on documents that
// are already printing or terminal are a no-op reporting current status.
func (h *DocumentHandler) TriggerPrint(c *gin.Context) {
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
		return
	}

	doc, err := h.scheduler.TriggerPrint(c.Request.Context(), req.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger print"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": doc.ID,
		"status":      doc.Status,
		"message":     "print requested",
	})
}

func (h *DocumentHandler) RegisterRoutes(r *gin.Engine, auth *middleware.Auth) {
	r.POST("/upload", auth.OptionalUser(), h.UploadDocument)
	r.POST("/merge-and-upload", auth.OptionalUser(), h.MergeAndUpload)
	r.GET("/status/:id", h.GetStatus)
	r.POST("/print", h.TriggerPrint)
}

func parsePrintOptions(c *gin.Context) (ingest.PrintOptions, bool) {
	opts := ingest.PrintOptions{
		Copies:    1,
		ColorMode: c.DefaultPostForm("color_mode", core.ColorModeBW),
	}

	if v := c.PostForm("copies"); v != "" {
		copies, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "copies must be an integer"})
			return opts, false
		}
		opts.Copies = copies
	}

	return opts, true
}

func respondIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrUnsupportedType), errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrMerge):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process upload"})
	}
}

func docToResponse(doc *db.Document) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID,
		OriginalFilename: doc.OriginalFilename,
		FileSize:         doc.FileSize,
		FileType:         doc.FileType,
		Merged:           doc.Merged,
		SourceFiles:      len(doc.SourceFiles),
		Status:           doc.Status,
		FailureReason:    doc.FailureReason,
		PrintOptions: PrintOptionsResponse{
			Copies:    doc.Copies,
			ColorMode: doc.ColorMode,
		},
		UploadTime: doc.UploadTime,
	}
}
