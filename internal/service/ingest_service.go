package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/condoql/internal/chunker"
	"github.com/xxxsen/condoql/internal/chunkstore"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
	"github.com/xxxsen/condoql/internal/repo"
)

type IngestResult struct {
	Records int `json:"records_ingested"`
	Skipped int `json:"records_skipped"`
	Chunks  int `json:"chunks_written"`
}

// IngestService drives the offline path: validate records, build chunks,
// upsert into the index, register source documents. Chunk ids are content
// derived, so running the same batch twice converges instead of duplicating.
type IngestService struct {
	builder *chunker.Builder
	store   chunkstore.Store
	docs    *repo.SourceDocumentRepo
}

// NewIngestService wires the ingestion pipeline. docs may be nil when
// running without a database (memory store); the registry is then skipped.
func NewIngestService(builder *chunker.Builder, store chunkstore.Store, docs *repo.SourceDocumentRepo) *IngestService {
	return &IngestService{builder: builder, store: store, docs: docs}
}

func (s *IngestService) IngestRecords(ctx context.Context, records []model.FinancialRecord) (*IngestResult, error) {
	logger := logutil.GetLogger(ctx)
	if len(records) == 0 {
		return &IngestResult{}, nil
	}

	valid := make([]model.FinancialRecord, 0, len(records))
	skippedByDoc := make(map[string]int)
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			// One malformed record never sinks the batch.
			logger.Warn("skipping malformed record",
				zap.Int("index", i),
				zap.String("document_id", rec.DocumentID),
				zap.Error(err),
			)
			skippedByDoc[rec.DocumentID]++
			continue
		}
		valid = append(valid, rec)
	}

	chunks, err := s.builder.Build(valid)
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, chunks); err != nil {
		return nil, err
	}
	if err := s.registerDocuments(ctx, valid, skippedByDoc); err != nil {
		return nil, err
	}

	result := &IngestResult{
		Records: len(valid),
		Skipped: len(records) - len(valid),
		Chunks:  len(chunks),
	}
	logger.Info("ingestion completed",
		zap.Int("records", result.Records),
		zap.Int("skipped", result.Skipped),
		zap.Int("chunks", result.Chunks),
	)
	return result, nil
}

// recordFile is the on-disk exchange format with the extraction pipeline:
// either a bare JSON array of records or an object with a "records" key.
type recordFile struct {
	Records []model.FinancialRecord `json:"records"`
}

func (s *IngestService) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	records, err := ParseRecords(data)
	if err != nil {
		return nil, err
	}
	return s.IngestRecords(ctx, records)
}

func ParseRecords(data []byte) ([]model.FinancialRecord, error) {
	var records []model.FinancialRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}
	var wrapped recordFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: records payload is neither an array nor a records object", appErr.ErrInvalid)
	}
	return wrapped.Records, nil
}

func (s *IngestService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if s.docs != nil {
		if err := s.docs.Clear(ctx); err != nil {
			return err
		}
	}
	logutil.GetLogger(ctx).Info("index reset")
	return nil
}

func (s *IngestService) ListDocuments(ctx context.Context) ([]model.SourceDocument, error) {
	if s.docs == nil {
		return nil, nil
	}
	return s.docs.List(ctx)
}

func (s *IngestService) GetDocument(ctx context.Context, documentID string) (*model.SourceDocument, error) {
	if s.docs == nil {
		return nil, appErr.ErrNotFound
	}
	return s.docs.Get(ctx, documentID)
}

// AttachFileKey links an archived statement file to its document registry
// row after the raw upload has been stored.
func (s *IngestService) AttachFileKey(ctx context.Context, documentID, fileKey string) error {
	if s.docs == nil {
		return nil
	}
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	doc.FileKey = fileKey
	doc.Mtime = time.Now().UnixMilli()
	return s.docs.Upsert(ctx, doc)
}

func (s *IngestService) registerDocuments(ctx context.Context, records []model.FinancialRecord, skipped map[string]int) error {
	if s.docs == nil {
		return nil
	}
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.DocumentID]++
	}
	now := time.Now().UnixMilli()
	for docID, count := range counts {
		existing, err := s.docs.Get(ctx, docID)
		ctime := now
		fileKey := ""
		if err == nil {
			ctime = existing.Ctime
			fileKey = existing.FileKey
		} else if !appErr.IsNotFound(err) {
			return err
		}
		if err := s.docs.Upsert(ctx, &model.SourceDocument{
			DocumentID:   docID,
			FileKey:      fileKey,
			RecordCount:  count,
			SkippedCount: skipped[docID],
			Ctime:        ctime,
			Mtime:        now,
		}); err != nil {
			return err
		}
	}
	return nil
}
