package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/newsinsight/docservice/internal/document"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrStorage          = errors.New("document storage failure")
	ErrRevisionConflict = errors.New("document revision conflict")
)

// Repository is the durable store for Document records. Implementations
// acquire and release their storage handles inside each call.
type Repository interface {
	// Create persists doc and fills ID, UploadedAt, UpdatedAt and Revision.
	Create(ctx context.Context, doc *document.Document) (*document.Document, error)
	// FindAll re-queries storage on every call and returns records ordered by id.
	FindAll(ctx context.Context) ([]*document.Document, error)
	// FindByID returns (nil, nil) when no record matches.
	FindByID(ctx context.Context, id int64) (*document.Document, error)
	// UpdateResult overwrites the result, and the status when non-nil. The
	// revision is bumped only when result or status actually change, so a
	// repeated identical write leaves everything but updatedAt as it was.
	// When expectedRevision is non-nil the write only applies if the stored
	// revision matches.
	UpdateResult(ctx context.Context, id int64, result map[string]any, status *document.Status, expectedRevision *int64) (*document.Document, error)
	// FindStale returns records in status whose last write predates updatedBefore.
	FindStale(ctx context.Context, status document.Status, updatedBefore time.Time) ([]*document.Document, error)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// changes reports whether writing result and status onto d would alter it.
// Results are compared by their JSON encoding, which sorts map keys and hides
// driver specific map and number types.
func changes(d *document.Document, result map[string]any, status *document.Status) bool {
	if status != nil && *status != d.Status {
		return true
	}
	if (result == nil) != (d.Result == nil) {
		return true
	}
	a, aerr := json.Marshal(result)
	b, berr := json.Marshal(d.Result)
	if aerr != nil || berr != nil {
		return true
	}
	return !bytes.Equal(a, b)
}
