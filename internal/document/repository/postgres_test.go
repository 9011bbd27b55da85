package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newsinsight/docservice/internal/document"
	"github.com/stretchr/testify/require"
)

func TestInsertQuery(t *testing.T) {
	q, args, err := insertQuery(&document.Document{FileName: "report.pdf", BlobKey: "documents/abc-report.pdf", UploaderID: 7, Status: document.StatusProcessing})
	require.NoError(t, err)
	require.Contains(t, q, "INSERT INTO documents (file_name,blob_key,uploader_id,status,result) VALUES ($1,$2,$3,$4,$5)")
	require.Contains(t, q, "RETURNING id, file_name")
	require.Equal(t, []any{"report.pdf", "documents/abc-report.pdf", int64(7), "processing", nil}, args)
}

func TestUpdateResultQuery(t *testing.T) {
	st := document.StatusFailed
	rev := int64(3)
	q, args, err := updateResultQuery(12, map[string]any{"error": "boom"}, &st, &rev)
	require.NoError(t, err)
	require.Contains(t, q, "UPDATE documents SET result = $1, updated_at = NOW(), status = $2, "+
		"revision = CASE WHEN result IS NOT DISTINCT FROM $3::jsonb AND status = $4 THEN revision ELSE revision + 1 END")
	require.Contains(t, q, "WHERE id = $5 AND revision = $6")
	require.Len(t, args, 6)
	require.JSONEq(t, `{"error":"boom"}`, args[0].(string))
	require.Equal(t, "failed", args[1])
	require.Equal(t, args[0], args[2])
	require.Equal(t, "failed", args[3])
	require.Equal(t, int64(12), args[4])
	require.Equal(t, int64(3), args[5])
}

func TestUpdateResultQueryWithoutStatus(t *testing.T) {
	q, args, err := updateResultQuery(5, map[string]any{"k": 1}, nil, nil)
	require.NoError(t, err)
	set := q[:strings.Index(q, "RETURNING")]
	require.NotContains(t, set, "status")
	require.Contains(t, set, "revision = CASE WHEN result IS NOT DISTINCT FROM $2::jsonb THEN revision ELSE revision + 1 END WHERE id = $3")
	require.Len(t, args, 3)
}

func TestStaleQuery(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args, err := staleQuery(document.StatusProcessing, cutoff).ToSql()
	require.NoError(t, err)
	require.Contains(t, q, "WHERE updated_at < $1 AND (status = $2 OR (status = $3 AND result IS NULL))")
	require.Contains(t, q, "ORDER BY id")
	require.Equal(t, []any{cutoff, "processing", ""}, args)

	q, args, err = staleQuery(document.StatusFailed, cutoff).ToSql()
	require.NoError(t, err)
	require.Contains(t, q, "WHERE updated_at < $1 AND status = $2")
	require.Equal(t, []any{cutoff, "failed"}, args)
}

type fakeRow struct {
	vals []any
	err  error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, v := range f.vals {
		switch p := dest[i].(type) {
		case *int64:
			*p = v.(int64)
		case *string:
			*p = v.(string)
		case *time.Time:
			*p = v.(time.Time)
		case *[]byte:
			if v != nil {
				*p = v.([]byte)
			}
		}
	}
	return nil
}

func TestScanDocument(t *testing.T) {
	now := time.Now()
	d, err := scanDocument(fakeRow{vals: []any{int64(1), "a.pdf", "documents/a.pdf", int64(0), now, now, "completed", []byte(`{"sentiment":"positive"}`), int64(1)}})
	require.NoError(t, err)
	require.Equal(t, document.StatusCompleted, d.Status)
	require.Equal(t, "positive", d.Result["sentiment"])

	d2, err := scanDocument(fakeRow{vals: []any{int64(2), "b.pdf", "documents/b.pdf", int64(0), now, now, "processing", nil, int64(0)}})
	require.NoError(t, err)
	require.Nil(t, d2.Result)

	_, err = scanDocument(fakeRow{err: errors.New("scan failed")})
	require.Error(t, err)
}
