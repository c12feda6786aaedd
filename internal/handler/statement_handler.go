package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/condoql/internal/filestore"
	"github.com/xxxsen/condoql/internal/model"
	"github.com/xxxsen/condoql/internal/pkg/errcode"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
	"github.com/xxxsen/condoql/internal/pkg/response"
	"github.com/xxxsen/condoql/internal/service"
)

type StatementHandler struct {
	ingest *service.IngestService
	files  filestore.Store
}

func NewStatementHandler(ingest *service.IngestService, files filestore.Store) *StatementHandler {
	return &StatementHandler{ingest: ingest, files: files}
}

func (h *StatementHandler) List(c *gin.Context) {
	docs, err := h.ingest.ListDocuments(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	response.Success(c, gin.H{"items": docs})
}

func (h *StatementHandler) Get(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		response.Error(c, errcode.ErrInvalid, "document id is required")
		return
	}
	doc, err := h.ingest.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// Download streams the archived raw statement file for a document.
func (h *StatementHandler) Download(c *gin.Context) {
	documentID := c.Param("id")
	doc, err := h.ingest.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		handleError(c, err)
		return
	}
	if doc.FileKey == "" || h.files == nil {
		handleError(c, appErr.ErrNotFound)
		return
	}
	body, err := h.files.Open(c.Request.Context(), doc.FileKey)
	if err != nil {
		handleError(c, appErr.ErrNotFound)
		return
	}
	defer body.Close()
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=\""+doc.FileKey+"\"")
	c.Status(200)
	_, _ = io.Copy(c.Writer, body)
}
