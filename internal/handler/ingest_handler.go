package handler

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xxxsen/condoql/internal/filestore"
	"github.com/xxxsen/condoql/internal/pkg/errcode"
	"github.com/xxxsen/condoql/internal/pkg/response"
	"github.com/xxxsen/condoql/internal/service"
)

type IngestHandler struct {
	ingest *service.IngestService
	files  filestore.Store
}

func NewIngestHandler(ingest *service.IngestService, files filestore.Store) *IngestHandler {
	return &IngestHandler{ingest: ingest, files: files}
}

// Ingest accepts either a JSON payload of records or a multipart upload of
// a record file. Uploaded files are archived before ingestion so the raw
// statement stays retrievable.
func (h *IngestHandler) Ingest(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.ingestUpload(c)
		return
	}
	data, err := c.GetRawData()
	if err != nil || len(data) == 0 {
		response.Error(c, errcode.ErrInvalid, "request body is required")
		return
	}
	records, err := service.ParseRecords(data)
	if err != nil {
		handleError(c, err)
		return
	}
	result, err := h.ingest.IngestRecords(c.Request.Context(), records)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *IngestHandler) ingestUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "file field is required")
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		handleError(c, err)
		return
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(src); err != nil {
		handleError(c, err)
		return
	}
	records, err := service.ParseRecords(buf.Bytes())
	if err != nil {
		handleError(c, err)
		return
	}

	fileKey := uuid.NewString() + ".json"
	if h.files != nil {
		if err := h.files.Save(c.Request.Context(), fileKey, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
			handleError(c, err)
			return
		}
	}
	result, err := h.ingest.IngestRecords(c.Request.Context(), records)
	if err != nil {
		handleError(c, err)
		return
	}
	if h.files != nil {
		seen := make(map[string]struct{})
		for _, rec := range records {
			if rec.DocumentID == "" {
				continue
			}
			if _, ok := seen[rec.DocumentID]; ok {
				continue
			}
			seen[rec.DocumentID] = struct{}{}
			if err := h.ingest.AttachFileKey(c.Request.Context(), rec.DocumentID, fileKey); err != nil {
				handleError(c, err)
				return
			}
		}
	}
	response.Success(c, gin.H{
		"file_key":         fileKey,
		"records_ingested": result.Records,
		"records_skipped":  result.Skipped,
		"chunks_written":   result.Chunks,
	})
}

func (h *IngestHandler) Reset(c *gin.Context) {
	if err := h.ingest.Reset(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"reset": true})
}
