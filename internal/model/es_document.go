package model

import "time"

// DocumentIndexEntry 定义了存储在 Elasticsearch 中的文档结构，每个 Document 对应一条。
type DocumentIndexEntry struct {
	DocumentID       uint      `json:"document_id"`
	UserID           uint      `json:"user_id"`
	OriginalFilename string    `json:"original_filename"`
	Category         string    `json:"category"`
	ExtractedText    string    `json:"extracted_text"`
	DetectedIntent   string    `json:"detected_intent,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	Keywords         []string  `json:"keywords,omitempty"`
	UploadDate       time.Time `json:"upload_date"`
	Vector           []float32 `json:"vector,omitempty"`
	ModelVersion     string    `json:"model_version,omitempty"`
}
