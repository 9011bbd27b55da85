package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/newsinsight/docservice/internal/document"
)

// Schema creates the documents table. result and status are always present
// columns; result is NULL until reconciliation.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          BIGSERIAL PRIMARY KEY,
	file_name   TEXT        NOT NULL,
	blob_key    TEXT        NOT NULL,
	uploader_id BIGINT      NOT NULL DEFAULT 0,
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status      TEXT        NOT NULL DEFAULT 'processing',
	result      JSONB,
	revision    BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS documents_status_updated_idx ON documents (status, updated_at);
`

var documentColumns = []string{"id", "file_name", "blob_key", "uploader_id", "uploaded_at", "updated_at", "status", "result", "revision"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepo stores documents in Postgres. Every method runs its statement on
// a pooled connection that is returned when the call ends.
type PostgresRepo struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepo)(nil)

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// EnsureSchema applies Schema; safe to run on every start.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return storageErr("ensure schema", err)
	}
	return nil
}

func (r *PostgresRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	q, args, err := insertQuery(doc)
	if err != nil {
		return nil, storageErr("build insert", err)
	}
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, storageErr("insert", err)
	}
	return d, nil
}

func (r *PostgresRepo) FindAll(ctx context.Context) ([]*document.Document, error) {
	return r.query(ctx, psql.Select(documentColumns...).From("documents").OrderBy("id"))
}

func (r *PostgresRepo) FindByID(ctx context.Context, id int64) (*document.Document, error) {
	q, args, err := psql.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, storageErr("build select", err)
	}
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("select", err)
	}
	return d, nil
}

func (r *PostgresRepo) UpdateResult(ctx context.Context, id int64, result map[string]any, status *document.Status, expectedRevision *int64) (*document.Document, error) {
	q, args, err := updateResultQuery(id, result, status, expectedRevision)
	if err != nil {
		return nil, storageErr("build update", err)
	}
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("update result", err)
	}
	if expectedRevision == nil {
		return nil, ErrNotFound
	}
	existing, ferr := r.FindByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, ErrRevisionConflict
}

func (r *PostgresRepo) FindStale(ctx context.Context, status document.Status, updatedBefore time.Time) ([]*document.Document, error) {
	return r.query(ctx, staleQuery(status, updatedBefore))
}

// staleQuery selects on the effective status; an empty status column counts
// as processing until a result is stored.
func staleQuery(status document.Status, updatedBefore time.Time) sq.SelectBuilder {
	b := psql.Select(documentColumns...).From("documents").Where(sq.Lt{"updated_at": updatedBefore})
	switch status {
	case document.StatusProcessing:
		b = b.Where(sq.Or{sq.Eq{"status": string(status)}, sq.And{sq.Eq{"status": ""}, sq.Eq{"result": nil}}})
	case document.StatusCompleted:
		b = b.Where(sq.Or{sq.Eq{"status": string(status)}, sq.And{sq.Eq{"status": ""}, sq.NotEq{"result": nil}}})
	default:
		b = b.Where(sq.Eq{"status": string(status)})
	}
	return b.OrderBy("id")
}

func (r *PostgresRepo) query(ctx context.Context, b sq.SelectBuilder) ([]*document.Document, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, storageErr("build select", err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("select", err)
	}
	defer rows.Close()
	out := []*document.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

func insertQuery(doc *document.Document) (string, []any, error) {
	res, err := encodeResult(doc.Result)
	if err != nil {
		return "", nil, err
	}
	return psql.Insert("documents").
		Columns("file_name", "blob_key", "uploader_id", "status", "result").
		Values(doc.FileName, doc.BlobKey, doc.UploaderID, string(doc.EffectiveStatus()), res).
		Suffix("RETURNING " + strings.Join(documentColumns, ", ")).
		ToSql()
}

// updateResultQuery writes result and status. Postgres evaluates every SET
// expression against the old row, so the CASE sees the previous result and
// status and only bumps the revision when one of them changes.
func updateResultQuery(id int64, result map[string]any, status *document.Status, expectedRevision *int64) (string, []any, error) {
	res, err := encodeResult(result)
	if err != nil {
		return "", nil, err
	}
	b := psql.Update("documents").
		Set("result", res).
		Set("updated_at", sq.Expr("NOW()"))
	if status != nil {
		b = b.Set("status", string(*status)).
			Set("revision", sq.Expr("CASE WHEN result IS NOT DISTINCT FROM ?::jsonb AND status = ? THEN revision ELSE revision + 1 END", res, string(*status)))
	} else {
		b = b.Set("revision", sq.Expr("CASE WHEN result IS NOT DISTINCT FROM ?::jsonb THEN revision ELSE revision + 1 END", res))
	}
	b = b.Where(sq.Eq{"id": id})
	if expectedRevision != nil {
		b = b.Where(sq.Eq{"revision": *expectedRevision})
	}
	return b.Suffix("RETURNING " + strings.Join(documentColumns, ", ")).ToSql()
}

// encodeResult returns the JSON text for the result column. A string is used
// because lib/pq sends []byte as bytea, which JSONB rejects.
func encodeResult(result map[string]any) (any, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		d      document.Document
		status string
		raw    []byte
	)
	if err := row.Scan(&d.ID, &d.FileName, &d.BlobKey, &d.UploaderID, &d.UploadedAt, &d.UpdatedAt, &status, &raw, &d.Revision); err != nil {
		return nil, err
	}
	d.Status = document.Status(status)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	d.UploadedAt = d.UploadedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
