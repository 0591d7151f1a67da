package model

import "time"

// 通知类型
const (
	NotificationDocumentProcessed = "document_processed"
	NotificationDocumentFailed    = "document_failed"
	NotificationReindexQueued     = "reindex_queued"
)

// Notification 通过 Redis pub/sub 推送给在线用户。
type Notification struct {
	Type       string    `json:"type"`
	DocumentID uint      `json:"document_id,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Category   string    `json:"category,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
