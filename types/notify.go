package types

const (
	NotifyTypeUploadEnd     = "upload_end"
	NotifyTypeUploadFailed  = "upload_failed"
	NotifyTypeImageDeleted  = "image_deleted"
	NotifyTypeSubmitted     = "submission_complete"
	NotifyTypeProductUpdate = "product_updated"
)

// Notification represents a notification message structure
type Notification struct {
	Type    string         `json:"type,omitempty"`    // Notification type, e.g. "upload_start", "upload_end", etc.
	Title   string         `json:"title,omitempty"`   // Notification title
	Message string         `json:"message,omitempty"` // Notification message/content
	Data    map[string]any `json:"data,omitempty"`    // Additional data fields
}
