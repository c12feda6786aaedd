package chunkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/model"
	appErr "github.com/xxxsen/condoql/internal/pkg/errors"
)

const embeddingModelMetaKey = "embedding_model"

func init() {
	Register("postgres", createPostgresStore)
}

func createPostgresStore(args interface{}, deps Deps) (Store, error) {
	_ = args
	if deps.DB == nil {
		return nil, fmt.Errorf("postgres chunk store requires a database handle")
	}
	return NewPostgresStore(deps.DB, deps.Embedder), nil
}

// PostgresStore persists chunks in a pgvector-enabled table. Metadata
// filters compile to WHERE clauses, so filter exactness comes from SQL, and
// ranking uses cosine distance on the embedding column.
type PostgresStore struct {
	db       *sql.DB
	embedder ai.IEmbedder
}

func NewPostgresStore(db *sql.DB, embedder ai.IEmbedder) *PostgresStore {
	return &PostgresStore{db: db, embedder: embedder}
}

func (s *PostgresStore) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.checkVersion(ctx, true); err != nil {
		return err
	}
	const query = `
		INSERT INTO chunks (
			chunk_id, granularity, chunk_text, category, subcategory, vendor,
			period, record_date, amount, currency, document_ids, item_count,
			embedding, mtime
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (chunk_id) DO UPDATE SET
			granularity = EXCLUDED.granularity,
			chunk_text = EXCLUDED.chunk_text,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			vendor = EXCLUDED.vendor,
			period = EXCLUDED.period,
			record_date = EXCLUDED.record_date,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			document_ids = EXCLUDED.document_ids,
			item_count = EXCLUDED.item_count,
			embedding = EXCLUDED.embedding,
			mtime = EXCLUDED.mtime
	`
	now := time.Now().UnixMilli()
	for _, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk.Text, taskTypeDocument)
		if err != nil {
			return err
		}
		meta := chunk.Metadata
		if _, err := s.db.ExecContext(ctx, query,
			chunk.ChunkID,
			string(chunk.Granularity),
			chunk.Text,
			meta.Category,
			meta.Subcategory,
			meta.Vendor,
			meta.Period,
			meta.Date,
			meta.Amount,
			meta.Currency,
			pq.Array(meta.DocumentIDs),
			meta.ItemCount,
			pgvector.NewVector(vec),
			now,
		); err != nil {
			return classifyPGError(err)
		}
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, queryText string, filter Filter, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := s.checkVersion(ctx, false); err != nil {
		return nil, err
	}
	queryVec, err := s.embedder.Embed(ctx, queryText, taskTypeQuery)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT chunk_id, granularity, chunk_text, category, subcategory, vendor,
			period, record_date, amount, currency, document_ids, item_count,
			1 - (embedding <=> ?) AS score
		FROM chunks
	`
	args := []interface{}{pgvector.NewVector(queryVec)}
	where, whereArgs := buildWhere(filter)
	query += where
	args = append(args, whereArgs...)
	query += ` ORDER BY embedding <=> ?, chunk_id LIMIT ?`
	args = append(args, pgvector.NewVector(queryVec), k)

	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPGError(err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var item Scored
		var granularity string
		var docIDs pq.StringArray
		meta := &item.Chunk.Metadata
		if err := rows.Scan(
			&item.Chunk.ChunkID,
			&granularity,
			&item.Chunk.Text,
			&meta.Category,
			&meta.Subcategory,
			&meta.Vendor,
			&meta.Period,
			&meta.Date,
			&meta.Amount,
			&meta.Currency,
			&docIDs,
			&meta.ItemCount,
			&item.Score,
		); err != nil {
			return nil, err
		}
		item.Chunk.Granularity = model.Granularity(granularity)
		meta.DocumentIDs = []string(docIDs)
		results = append(results, item)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, classifyPGError(err)
	}
	return count, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE chunks`); err != nil {
		return classifyPGError(err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_meta WHERE meta_key = $1`, embeddingModelMetaKey); err != nil {
		return classifyPGError(err)
	}
	return nil
}

func (s *PostgresStore) Values(ctx context.Context) (FilterValues, error) {
	var values FilterValues
	queries := []struct {
		sql string
		dst *[]string
	}{
		{`SELECT DISTINCT category FROM chunks WHERE category <> '' ORDER BY category`, &values.Categories},
		{`SELECT DISTINCT period FROM chunks WHERE period <> '' ORDER BY period`, &values.Periods},
		{`SELECT DISTINCT vendor FROM chunks WHERE vendor <> '' ORDER BY vendor`, &values.Vendors},
	}
	for _, q := range queries {
		rows, err := s.db.QueryContext(ctx, q.sql)
		if err != nil {
			return FilterValues{}, classifyPGError(err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return FilterValues{}, err
			}
			*q.dst = append(*q.dst, v)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return FilterValues{}, err
		}
		rows.Close()
	}
	return values, nil
}

func buildWhere(filter Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if filter.Period != "" {
		clauses = append(clauses, "period = ?")
		args = append(args, filter.Period)
	}
	if len(filter.Categories) > 0 {
		clauses = append(clauses, "category IN (?)")
		args = append(args, filter.Categories)
	}
	if filter.Vendor != "" {
		clauses = append(clauses, "vendor = ?")
		args = append(args, filter.Vendor)
	}
	if len(filter.Granularities) > 0 {
		granularities := make([]string, 0, len(filter.Granularities))
		for _, g := range filter.Granularities {
			granularities = append(granularities, string(g))
		}
		clauses = append(clauses, "granularity IN (?)")
		args = append(args, granularities)
	}
	if filter.DocumentID != "" {
		clauses = append(clauses, "? = ANY(document_ids)")
		args = append(args, filter.DocumentID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func (s *PostgresStore) checkVersion(ctx context.Context, stamp bool) error {
	current := s.embedder.ModelName()
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM index_meta WHERE meta_key = $1`, embeddingModelMetaKey,
	).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if !stamp {
			return nil
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO index_meta (meta_key, meta_value)
			VALUES ($1, $2)
			ON CONFLICT (meta_key) DO NOTHING
		`, embeddingModelMetaKey, current)
		return classifyPGError(err)
	case err != nil:
		return classifyPGError(err)
	}
	if stored != current {
		return fmt.Errorf("%w: index built with %q, configured embedder is %q",
			appErr.ErrSchemaVersion, stored, current)
	}
	return nil
}

// classifyPGError maps driver failures onto the service taxonomy: a missing
// relation means the index was never built (distinct from an empty one);
// anything else driver-level is a retryable unavailability.
func classifyPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42P01" {
			return fmt.Errorf("%w: %s", appErr.ErrNotFound, pgErr.Message)
		}
		return err
	}
	return fmt.Errorf("%w: %v", appErr.ErrUnavailable, err)
}
