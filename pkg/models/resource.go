package models

import "time"

// ResourceStatus tracks text extraction for an uploaded document.
type ResourceStatus string

const (
	ResourceStatusProcessing ResourceStatus = "processing"
	ResourceStatusCompleted  ResourceStatus = "completed"
	ResourceStatusError      ResourceStatus = "error"
)

// Resource is an uploaded or integrated document (drawing, spreadsheet,
// standard) with extracted text content, attachable to workflows. The
// extracted text is what execution feeds to the model as context.
type Resource struct {
	ID            string         `json:"id"`
	Title         string         `json:"title" validate:"required"`
	Description   string         `json:"description"`
	ContentAsText string         `json:"content_as_text"`
	FileType      string         `json:"file_type"`
	Status        ResourceStatus `json:"status"`
	Owner         string         `json:"owner"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
