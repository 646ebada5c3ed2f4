package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/doc-ocr/internal/domain"
)

// ErrNotFound is returned when no stored result matches.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StoredResult is one persisted document result.
type StoredResult struct {
	ID          uuid.UUID
	ContentHash string
	Filename    string
	Engine      string
	Format      domain.OutputFormat
	Settings    string
	PageCount   int
	Document    *domain.DocumentResult
	CreatedAt   time.Time
}

// ResultRepository handles OCR result persistence.
type ResultRepository struct {
	db DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save inserts res, replacing any earlier result for the same content,
// engine, format and settings fingerprint. res.ID is set to the stored row's ID.
func (r *ResultRepository) Save(ctx context.Context, res *StoredResult) error {
	if res.Document == nil {
		return domain.ValidationError("stored result has no document", nil)
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.CreatedAt = time.Now().UTC()
	res.PageCount = len(res.Document.Pages)

	js, err := json.Marshal(res.Document)
	if err != nil {
		return domain.StorageError("marshal result", err)
	}

	query := `
		INSERT INTO ocr_results (id, content_hash, filename, engine, format, settings, page_count, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (content_hash, engine, format, settings) DO UPDATE SET
			filename = excluded.filename,
			page_count = excluded.page_count,
			result_json = excluded.result_json,
			created_at = excluded.created_at
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		res.ID.String(), res.ContentHash, res.Filename, res.Engine, string(res.Format),
		res.Settings, res.PageCount, string(js), res.CreatedAt,
	).Scan(&res.ID)
	if err != nil {
		return domain.StorageError("save result", err)
	}
	return nil
}

// Find retrieves the result for a document hash rendered by engine in
// format under the settings fingerprint.
func (r *ResultRepository) Find(ctx context.Context, contentHash, engine string, format domain.OutputFormat, settings string) (*StoredResult, error) {
	query := `
		SELECT id, content_hash, filename, engine, format, settings, page_count, result_json, created_at
		FROM ocr_results WHERE content_hash = $1 AND engine = $2 AND format = $3 AND settings = $4
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, contentHash, engine, string(format), settings))
}

// GetByID retrieves a stored result by ID.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*StoredResult, error) {
	query := `
		SELECT id, content_hash, filename, engine, format, settings, page_count, result_json, created_at
		FROM ocr_results WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListRecent returns up to limit results, newest first.
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]*StoredResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, content_hash, filename, engine, format, settings, page_count, result_json, created_at
		FROM ocr_results ORDER BY created_at DESC LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.StorageError("list results", err)
	}
	defer rows.Close()

	var results []*StoredResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list results", err)
	}
	return results, nil
}

// DeleteByHash removes every stored rendering of a document.
func (r *ResultRepository) DeleteByHash(ctx context.Context, contentHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ocr_results WHERE content_hash = $1`, contentHash)
	if err != nil {
		return 0, domain.StorageError("delete results", err)
	}
	return res.RowsAffected()
}

func (r *ResultRepository) scanOne(row *sql.Row) (*StoredResult, error) {
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(s scanner) (*StoredResult, error) {
	var (
		res    StoredResult
		format string
		js     []byte
	)
	if err := s.Scan(&res.ID, &res.ContentHash, &res.Filename, &res.Engine, &format,
		&res.Settings, &res.PageCount, &js, &res.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, domain.StorageError("scan result", err)
	}
	res.Format = domain.OutputFormat(format)

	var doc domain.DocumentResult
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, domain.StorageError("decode stored result", err)
	}
	res.Document = &doc
	return &res, nil
}
