package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/condoql/internal/service"
)

// IngestInboxJob sweeps a drop directory for record files produced by the
// statement extraction pipeline and feeds them to the ingest service.
// Processed files are moved to the done directory so a crashed sweep can
// safely be rerun.
type IngestInboxJob struct {
	ingest   *service.IngestService
	inboxDir string
	doneDir  string
}

func NewIngestInboxJob(ingest *service.IngestService, inboxDir, doneDir string) *IngestInboxJob {
	return &IngestInboxJob{ingest: ingest, inboxDir: inboxDir, doneDir: doneDir}
}

func (j *IngestInboxJob) Name() string {
	return "ingest_inbox"
}

func (j *IngestInboxJob) Run(ctx context.Context) error {
	if j.inboxDir == "" {
		return nil
	}
	entries, err := os.ReadDir(j.inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read inbox dir: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(j.inboxDir, entry.Name())
		result, err := j.ingest.IngestFile(ctx, path)
		if err != nil {
			// Leave the file in place so the next sweep retries it.
			logger.Error("inbox file ingestion failed", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		logger.Info("inbox file ingested",
			zap.String("file", entry.Name()),
			zap.Int("records", result.Records),
			zap.Int("skipped", result.Skipped),
			zap.Int("chunks", result.Chunks),
		)
		if err := j.moveToDone(path, entry.Name()); err != nil {
			logger.Error("move ingested file failed", zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

func (j *IngestInboxJob) moveToDone(path, name string) error {
	if j.doneDir == "" {
		return os.Remove(path)
	}
	if err := os.MkdirAll(j.doneDir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(j.doneDir, name))
}
