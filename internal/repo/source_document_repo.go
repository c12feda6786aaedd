package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

type SourceDocumentRepo struct {
	db *sql.DB
}

func NewSourceDocumentRepo(db *sql.DB) *SourceDocumentRepo {
	return &SourceDocumentRepo{db: db}
}

func (r *SourceDocumentRepo) Upsert(ctx context.Context, doc *model.SourceDocument) error {
	const query = `
		INSERT INTO source_documents (document_id, file_key, record_count, skipped_count, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id) DO UPDATE SET
			file_key = EXCLUDED.file_key,
			record_count = EXCLUDED.record_count,
			skipped_count = EXCLUDED.skipped_count,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.DocumentID, doc.FileKey, doc.RecordCount, doc.SkippedCount, doc.Ctime, doc.Mtime)
	return err
}

func (r *SourceDocumentRepo) Get(ctx context.Context, documentID string) (*model.SourceDocument, error) {
	where := map[string]interface{}{
		"document_id": documentID,
	}
	sqlStr, args, err := builder.BuildSelect("source_documents", where,
		[]string{"document_id", "file_key", "record_count", "skipped_count", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr = sqlx.Rebind(sqlx.DOLLAR, sqlStr)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var doc model.SourceDocument
	if err := row.Scan(&doc.DocumentID, &doc.FileKey, &doc.RecordCount, &doc.SkippedCount, &doc.Ctime, &doc.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *SourceDocumentRepo) List(ctx context.Context) ([]model.SourceDocument, error) {
	where := map[string]interface{}{
		"_orderby": "document_id",
	}
	sqlStr, args, err := builder.BuildSelect("source_documents", where,
		[]string{"document_id", "file_key", "record_count", "skipped_count", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr = sqlx.Rebind(sqlx.DOLLAR, sqlStr)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.SourceDocument
	for rows.Next() {
		var doc model.SourceDocument
		if err := rows.Scan(&doc.DocumentID, &doc.FileKey, &doc.RecordCount, &doc.SkippedCount, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *SourceDocumentRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM source_documents`)
	return err
}
