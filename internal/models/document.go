package models

import (
	"time"

	"github.com/google/uuid"
)

const ContentTypePDF = "application/pdf"

// PropertyDocument is attachment metadata; the bytes live in the blob
// store under StorageKey.
type PropertyDocument struct {
	ID          uuid.UUID `json:"id"`
	PropertyID  uuid.UUID `json:"property_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	StorageKey  string    `json:"storage_key"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// IsPDF reports whether the document should be considered for
// PDF-scoped scans.
func (d *PropertyDocument) IsPDF() bool {
	return d.ContentType == ContentTypePDF
}
