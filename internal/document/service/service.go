package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/newsinsight/docservice/internal/document"
	"github.com/newsinsight/docservice/internal/document/repository"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/metrics"
)

var (
	ErrUpload         = errors.New("upload failed")
	ErrNotFound       = errors.New("document not found")
	ErrConfiguration  = errors.New("missing deployment configuration")
	ErrInvalidStatus  = errors.New("status must be completed or failed")
	ErrConflict       = errors.New("document was updated concurrently")
	ErrStorage        = repository.ErrStorage
	errMissingFile    = errors.New("file not provided")
	errEmptyBlobReply = errors.New("blob store returned an empty key or name")
)

// BlobStore uploads raw bytes under a generated key. Implementations own
// their timeout.
type BlobStore interface {
	Upload(ctx context.Context, fileName string, r io.Reader, size int64, contentType string) (key string, name string, err error)
}

// URLBuilder derives a public URL from a blob key.
type URLBuilder interface {
	FileURL(key string) (string, error)
}

// Service defines the document operations used by the handler layer.
type Service interface {
	UploadToBlobStore(ctx context.Context, fh *multipart.FileHeader) (blobKey, fileName string, err error)
	RegisterDocument(ctx context.Context, fileName, blobKey string, uploaderID int64) (*DocumentDTO, error)
	UpdateResult(ctx context.Context, id int64, result map[string]any, status document.Status, expectedRevision *int64) (*DocumentDTO, error)
	ListDocuments(ctx context.Context) ([]*DocumentDTO, error)
	GetDocumentByID(ctx context.Context, id int64) (*DocumentDTO, error)
}

// DocumentService sequences the blob upload, the repository writes and the
// DTO projection. It holds no locks of its own; the repository is the only
// point of mutual exclusion.
type DocumentService struct {
	repo  repository.Repository
	blobs BlobStore
	urls  URLBuilder
}

var _ Service = (*DocumentService)(nil)

func NewService(repo repository.Repository, blobs BlobStore, urls URLBuilder) *DocumentService {
	return &DocumentService{repo: repo, blobs: blobs, urls: urls}
}

// UploadToBlobStore streams the uploaded file to the blob store. Nothing is
// persisted in the repository here, so a failure leaves no record behind.
func (s *DocumentService) UploadToBlobStore(ctx context.Context, fh *multipart.FileHeader) (string, string, error) {
	if fh == nil {
		metrics.UploadFailures.Inc()
		return "", "", fmt.Errorf("%w: %v", ErrUpload, errMissingFile)
	}
	if s.blobs == nil {
		metrics.UploadFailures.Inc()
		return "", "", fmt.Errorf("%w: blob store not configured", ErrUpload)
	}
	f, err := fh.Open()
	if err != nil {
		metrics.UploadFailures.Inc()
		return "", "", fmt.Errorf("%w: open %s: %v", ErrUpload, fh.Filename, err)
	}
	defer f.Close()

	key, name, err := s.blobs.Upload(ctx, fh.Filename, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		metrics.UploadFailures.Inc()
		logger.Warnf("blob upload of %q failed: %v", fh.Filename, err)
		return "", "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if key == "" || name == "" {
		metrics.UploadFailures.Inc()
		return "", "", fmt.Errorf("%w: %v", ErrUpload, errEmptyBlobReply)
	}
	logger.Debugf("uploaded %q as %s", name, key)
	return key, name, nil
}

// RegisterDocument creates the record for an already uploaded blob. It is the
// only creation path and always starts the document in processing.
func (s *DocumentService) RegisterDocument(ctx context.Context, fileName, blobKey string, uploaderID int64) (*DocumentDTO, error) {
	doc := &document.Document{
		FileName:   fileName,
		BlobKey:    blobKey,
		UploaderID: uploaderID,
		Status:     document.StatusProcessing,
		Result:     nil,
	}
	saved, err := s.repo.Create(ctx, doc)
	if err != nil {
		logger.Errorf("register document %s: %v", blobKey, err)
		return nil, err
	}
	metrics.DocumentsRegistered.Inc()
	logger.Infof("document %d registered (key=%s uploader=%d)", saved.ID, saved.BlobKey, saved.UploaderID)
	return s.ToDTO(saved)
}

// UpdateResult reconciles an analysis result onto an existing document. An
// empty status means completed. Repeated calls overwrite, last write wins,
// unless expectedRevision pins the write to a known revision.
func (s *DocumentService) UpdateResult(ctx context.Context, id int64, result map[string]any, status document.Status, expectedRevision *int64) (*DocumentDTO, error) {
	if status == "" {
		status = document.StatusCompleted
	}
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidStatus, status)
	}
	if result == nil {
		result = map[string]any{}
	}
	doc, err := s.repo.UpdateResult(ctx, id, result, &status, expectedRevision)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: id=%d", ErrNotFound, id)
		case errors.Is(err, repository.ErrRevisionConflict):
			return nil, fmt.Errorf("%w: id=%d revision=%d", ErrConflict, id, *expectedRevision)
		}
		logger.Errorf("update result for document %d: %v", id, err)
		return nil, err
	}
	metrics.DocumentsReconciled.WithLabelValues(string(doc.EffectiveStatus())).Inc()
	logger.Infof("document %d reconciled as %s (revision %d)", doc.ID, doc.EffectiveStatus(), doc.Revision)
	return s.ToDTO(doc)
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]*DocumentDTO, error) {
	docs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dto, err := s.ToDTO(d)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// GetDocumentByID returns (nil, nil) when the document does not exist.
func (s *DocumentService) GetDocumentByID(ctx context.Context, id int64) (*DocumentDTO, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return s.ToDTO(d)
}
