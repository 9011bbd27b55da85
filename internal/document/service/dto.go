package service

import (
	"fmt"
	"time"

	"github.com/newsinsight/docservice/internal/document"
)

// TimeLayout is the ISO-8601 form used for every timestamp in a DTO.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DocumentDTO is the externally visible projection of a Document.
type DocumentDTO struct {
	ID         int64          `json:"id"`
	FileName   string         `json:"fileName"`
	BlobKey    string         `json:"blobKey"`
	FileURL    string         `json:"fileUrl"`
	UploaderID int64          `json:"uploaderId"`
	UploadedAt *string        `json:"uploadedAt"`
	UpdatedAt  *string        `json:"updatedAt"`
	Result     map[string]any `json:"result"`
	Status     string         `json:"status"`
	Revision   int64          `json:"revision"`
}

// ToDTO projects d for clients. A missing bucket/region configuration is a
// deployment fault and is reported as ErrConfiguration.
func (s *DocumentService) ToDTO(d *document.Document) (*DocumentDTO, error) {
	if s.urls == nil {
		return nil, fmt.Errorf("%w: no url builder", ErrConfiguration)
	}
	fileURL, err := s.urls.FileURL(d.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &DocumentDTO{
		ID:         d.ID,
		FileName:   d.FileName,
		BlobKey:    d.BlobKey,
		FileURL:    fileURL,
		UploaderID: d.UploaderID,
		UploadedAt: isoTime(d.UploadedAt),
		UpdatedAt:  isoTime(d.UpdatedAt),
		Result:     d.Result,
		Status:     string(d.EffectiveStatus()),
		Revision:   d.Revision,
	}, nil
}

func isoTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(TimeLayout)
	return &s
}
