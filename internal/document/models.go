package document

import "time"

// Status is the analysis lifecycle state of a Document.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AnonymousUploader is recorded when no session is attached to an upload.
const AnonymousUploader int64 = 0

// Terminal reports whether s can only be reached through reconciliation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is the persisted record for one uploaded artifact and its analysis
// lifecycle. Result and Status are always present in storage; Result stays nil
// until an analysis result is reconciled.
type Document struct {
	ID         int64          `json:"id" bson:"id"`
	FileName   string         `json:"fileName" bson:"fileName"`
	BlobKey    string         `json:"blobKey" bson:"blobKey"`
	UploaderID int64          `json:"uploaderId" bson:"uploaderId"`
	UploadedAt time.Time      `json:"uploadedAt" bson:"uploadedAt"`
	UpdatedAt  time.Time      `json:"updatedAt" bson:"updatedAt"`
	Status     Status         `json:"status" bson:"status"`
	Result     map[string]any `json:"result" bson:"result"`
	Revision   int64          `json:"revision" bson:"revision"`
}

// EffectiveStatus returns the recorded status, or infers one for records
// written before status was tracked: completed when a result exists,
// processing otherwise.
func (d *Document) EffectiveStatus() Status {
	if d.Status != "" {
		return d.Status
	}
	if d.Result != nil {
		return StatusCompleted
	}
	return StatusProcessing
}
