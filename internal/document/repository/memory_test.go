package repository

import (
	"context"
	"testing"
	"time"

	"github.com/newsinsight/docservice/internal/document"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := &document.Document{FileName: "report.pdf", BlobKey: "documents/abc-report.pdf", Status: document.StatusProcessing}
	created, err := r.Create(ctx, d)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.False(t, created.UploadedAt.IsZero())
	require.Equal(t, created.UploadedAt, created.UpdatedAt)
	require.Zero(t, d.ID, "input must not be mutated")

	got, err := r.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", got.FileName)
	require.Nil(t, got.Result)

	list, err := r.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	completed := document.StatusCompleted
	upd, err := r.UpdateResult(ctx, created.ID, map[string]any{"sentiment": "positive"}, &completed, nil)
	require.NoError(t, err)
	require.Equal(t, document.StatusCompleted, upd.Status)
	require.Equal(t, int64(1), upd.Revision)
	require.Equal(t, "documents/abc-report.pdf", upd.BlobKey)

	got2, err := r.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "positive", got2.Result["sentiment"])
}

func TestMemoryRepoFindByIDAbsent(t *testing.T) {
	r := NewMemoryRepo()
	got, err := r.FindByID(context.Background(), 9999)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryRepoUpdateResultNotFound(t *testing.T) {
	r := NewMemoryRepo()
	_, err := r.UpdateResult(context.Background(), 42, map[string]any{"a": 1}, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
	list, err := r.FindAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMemoryRepoUpdateResultKeepsStatusWhenNil(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	created, err := r.Create(ctx, &document.Document{FileName: "a.pdf", BlobKey: "documents/a.pdf", Status: document.StatusProcessing})
	require.NoError(t, err)

	upd, err := r.UpdateResult(ctx, created.ID, map[string]any{"k": "v"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, document.StatusProcessing, upd.Status)
}

func TestMemoryRepoRevisionConflict(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	created, err := r.Create(ctx, &document.Document{FileName: "a.pdf", BlobKey: "documents/a.pdf", Status: document.StatusProcessing})
	require.NoError(t, err)

	rev := int64(0)
	_, err = r.UpdateResult(ctx, created.ID, map[string]any{"n": 1}, nil, &rev)
	require.NoError(t, err)

	// same expected revision again is now stale
	_, err = r.UpdateResult(ctx, created.ID, map[string]any{"n": 2}, nil, &rev)
	require.ErrorIs(t, err, ErrRevisionConflict)

	got, err := r.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Result["n"])
}

func TestMemoryRepoFindStale(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	old, err := r.Create(ctx, &document.Document{FileName: "old.pdf", BlobKey: "documents/old.pdf", Status: document.StatusProcessing})
	require.NoError(t, err)

	r.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = r.Create(ctx, &document.Document{FileName: "new.pdf", BlobKey: "documents/new.pdf", Status: document.StatusProcessing})
	require.NoError(t, err)

	stale, err := r.FindStale(ctx, document.StatusProcessing, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, old.ID, stale[0].ID)
}

func TestMemoryRepoIdenticalWriteKeepsRevision(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	created, err := r.Create(ctx, &document.Document{FileName: "a.pdf", BlobKey: "documents/a.pdf", Status: document.StatusProcessing})
	require.NoError(t, err)

	completed := document.StatusCompleted
	first, err := r.UpdateResult(ctx, created.ID, map[string]any{"sentiment": "positive", "score": 0.9}, &completed, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Revision)

	second, err := r.UpdateResult(ctx, created.ID, map[string]any{"score": 0.9, "sentiment": "positive"}, &completed, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), second.Revision)

	failed := document.StatusFailed
	third, err := r.UpdateResult(ctx, created.ID, map[string]any{"score": 0.9, "sentiment": "positive"}, &failed, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), third.Revision)

	fourth, err := r.UpdateResult(ctx, created.ID, map[string]any{"sentiment": "negative"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), fourth.Revision)
}

func TestChanges(t *testing.T) {
	completed := document.StatusCompleted
	d := &document.Document{Status: document.StatusCompleted, Result: map[string]any{"k": []any{"a", "b"}, "n": 1}}

	require.False(t, changes(d, map[string]any{"n": 1, "k": []any{"a", "b"}}, &completed))
	require.False(t, changes(d, map[string]any{"n": 1, "k": []any{"a", "b"}}, nil))
	require.True(t, changes(d, map[string]any{"n": 2, "k": []any{"a", "b"}}, nil))
	require.True(t, changes(d, map[string]any{}, nil))
	require.True(t, changes(&document.Document{}, map[string]any{}, nil))

	failed := document.StatusFailed
	require.True(t, changes(d, d.Result, &failed))
}

func TestMemoryRepoFindStaleUsesEffectiveStatus(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	legacy, err := r.Create(ctx, &document.Document{FileName: "legacy.pdf", BlobKey: "documents/legacy.pdf"})
	require.NoError(t, err)
	_, err = r.Create(ctx, &document.Document{FileName: "done.pdf", BlobKey: "documents/done.pdf", Result: map[string]any{"k": "v"}})
	require.NoError(t, err)

	stale, err := r.FindStale(ctx, document.StatusProcessing, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, legacy.ID, stale[0].ID)
}
