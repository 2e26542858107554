package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hybridrag/internal/app"
	"hybridrag/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
	maxUploadBytes  int64
}

type uploadOutcome struct {
	Name      string      `json:"name"`
	Document  interface{} `json:"document,omitempty"`
	Duplicate bool        `json:"duplicate"`
	Error     string      `json:"error,omitempty"`
}

func NewDocumentHandler(documentService *app.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, maxUploadBytes: maxUploadBytes}
}

// Upload accepts one or more PDFs in the multipart field "files" (or "file"),
// stores them and rebuilds the index once.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	files := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["file"]))
	files = append(files, form.File["files"]...)
	files = append(files, form.File["file"]...)
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing files (form field 'files')")
		return
	}

	outcomes := make([]uploadOutcome, 0, len(files))
	var firstErr error
	stored := 0
	for _, fh := range files {
		outcome := uploadOutcome{Name: fh.Filename}
		res, err := h.ingest(c, userID, fh)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			outcome.Error = err.Error()
		} else {
			outcome.Document = res.Document
			outcome.Duplicate = res.Duplicate
			if !res.Duplicate {
				stored++
			}
		}
		outcomes = append(outcomes, outcome)
	}
	if stored == 0 && firstErr != nil && len(files) == 1 {
		writeDocumentError(c, firstErr, "upload failed")
		return
	}

	data := gin.H{"files": outcomes, "index": h.documentService.Stats()}
	if stored > 0 {
		stats, err := h.documentService.Process(c.Request.Context())
		if err != nil {
			writeDocumentError(c, err, "process documents failed")
			return
		}
		data["index"] = stats
	}
	response.OK(c, data)
}

func (h *DocumentHandler) ingest(c *gin.Context, userID uint, fh *multipart.FileHeader) (*app.IngestResult, error) {
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return nil, app.ErrNotPDF
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return nil, app.ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload failed: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	return h.documentService.Ingest(c.Request.Context(), app.IngestInput{
		UserID: userID,
		Name:   fh.Filename,
		Data:   data,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documentService.List()
	if err != nil {
		writeDocumentError(c, err, "list documents failed")
		return
	}
	response.OK(c, gin.H{"documents": docs, "index": h.documentService.Stats()})
}

func (h *DocumentHandler) Process(c *gin.Context) {
	stats, err := h.documentService.Process(c.Request.Context())
	if err != nil {
		writeDocumentError(c, err, "process documents failed")
		return
	}
	response.OK(c, stats)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	stats, err := h.documentService.Delete(c.Request.Context(), id)
	if err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id, "index": stats})
}

func (h *DocumentHandler) Clear(c *gin.Context) {
	if err := h.documentService.Clear(c.Request.Context()); err != nil {
		writeDocumentError(c, err, "clear documents failed")
		return
	}
	response.OK(c, gin.H{"index": h.documentService.Stats()})
}

// Page serves the stored text of one page for source links.
func (h *DocumentHandler) Page(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	number, err := strconv.Atoi(c.Param("page"))
	if err != nil || number <= 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid page number")
		return
	}
	page, err := h.documentService.Page(id, number)
	if err != nil {
		writeDocumentError(c, err, "get page failed")
		return
	}
	response.OK(c, page)
}

// Triples lists the knowledge graph of the current corpus.
func (h *DocumentHandler) Triples(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	triples, err := h.documentService.Triples(limit)
	if err != nil {
		writeDocumentError(c, err, "list kg triples failed")
		return
	}
	response.OK(c, triples)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrNotPDF):
		response.Error(c, http.StatusBadRequest, response.CodeNotPDF, err.Error())
	case errors.Is(err, app.ErrNoExtractableText):
		response.Error(c, http.StatusBadRequest, response.CodeNoExtractableText, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrNoDocuments):
		response.Error(c, http.StatusConflict, response.CodeNoDocuments, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrPageNotFound):
		response.Error(c, http.StatusNotFound, response.CodePageNotFound, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
