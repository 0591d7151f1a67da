// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask 是一条文档后台处理任务。
// Reindex 为 true 时跳过文本提取，直接使用数据库中已有的文本重新写入索引。
type DocumentProcessingTask struct {
	DocumentID uint   `json:"document_id"`
	UserID     uint   `json:"user_id"`
	ObjectKey  string `json:"object_key"`
	Filename   string `json:"filename"`
	Reindex    bool   `json:"reindex,omitempty"`
}
