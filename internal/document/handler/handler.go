package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/newsinsight/docservice/internal/analysis"
	"github.com/newsinsight/docservice/internal/document"
	"github.com/newsinsight/docservice/internal/document/service"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/middleware"
)

// Enqueuer hands registered documents to the out-of-band analyzer.
type Enqueuer interface {
	Enqueue(ctx context.Context, job analysis.Job) error
}

// DocumentHandler adapts the document service to HTTP.
type DocumentHandler struct {
	svc   service.Service
	queue Enqueuer
}

// NewDocumentHandler builds the handler. queue may be nil, in which case the
// analyzer is expected to be triggered by some other caller.
func NewDocumentHandler(svc service.Service, queue Enqueuer) *DocumentHandler {
	return &DocumentHandler{svc: svc, queue: queue}
}

type updateResultRequest struct {
	Result   map[string]any `json:"result" binding:"required"`
	Status   *string        `json:"status"`
	Revision *int64         `json:"revision"`
}

// Register mounts the document routes on rg. resultGuards run in front of the
// result callback only.
func (h *DocumentHandler) Register(rg *gin.RouterGroup, resultGuards ...gin.HandlerFunc) {
	rg.POST("/register", h.RegisterDocument)
	rg.GET("/list", h.ListDocuments)
	rg.GET("/:id", h.GetDocument)
	rg.PATCH("/:id/result", append(resultGuards, h.UpdateResult)...)
}

// RegisterDocument uploads the multipart "file" field and records it as processing.
func (h *DocumentHandler) RegisterDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fh = nil
	}
	ctx := c.Request.Context()
	key, name, err := h.svc.UploadToBlobStore(ctx, fh)
	if err != nil {
		writeError(c, err)
		return
	}
	dto, err := h.svc.RegisterDocument(ctx, name, key, middleware.UploaderID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if h.queue != nil {
		job := analysis.Job{DocumentID: dto.ID, FileURL: dto.FileURL}
		if err := h.queue.Enqueue(ctx, job); err != nil {
			// the record stays processing; the stale sweep fails it eventually
			logger.Warnf("enqueue analysis for document %d: %v", dto.ID, err)
		}
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	list, err := h.svc.ListDocuments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	dto, err := h.svc.GetDocumentByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if dto == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// UpdateResult is the reconciliation callback used by the analyzer worker.
func (h *DocumentHandler) UpdateResult(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := document.StatusCompleted
	if req.Status != nil && *req.Status != "" {
		status = document.Status(*req.Status)
	}
	dto, err := h.svc.UpdateResult(c.Request.Context(), id, req.Result, status, req.Revision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUpload):
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload Failed", "details": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, service.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConfiguration):
		logger.Errorf("configuration error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "service misconfigured"})
	default:
		logger.Errorf("document request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
