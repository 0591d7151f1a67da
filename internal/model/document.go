package model

import "time"

// ProcessingStatus 表示文档后台处理的状态。
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document 定义了 documents 表的 ORM 模型，记录用户上传文件的元数据、提取文本与 AI 分析结果。
type Document struct {
	ID                 uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             uint             `gorm:"index;not null" json:"user_id"`
	OriginalFilename   string           `gorm:"type:varchar(255);not null" json:"original_filename"`
	ObjectKey          string           `gorm:"type:varchar(512);not null" json:"-"`
	Category           string           `gorm:"type:varchar(50);index;not null;default:other" json:"category"`
	CategoryConfidence float64          `gorm:"not null;default:0" json:"category_confidence"`
	UploadDate         time.Time        `gorm:"index;not null" json:"upload_date"`
	FileSize           int64            `gorm:"not null" json:"file_size"`
	ContentType        string           `gorm:"type:varchar(128)" json:"content_type"`
	ExtractedText      string           `gorm:"type:longtext" json:"extracted_text,omitempty"`
	DetectedIntent     string           `gorm:"type:varchar(255)" json:"detected_intent"`
	ProcessingStatus   ProcessingStatus `gorm:"type:varchar(16);index;not null;default:pending" json:"processing_status"`
	ProcessedAt        *time.Time       `json:"processed_at"`
	Summary            string           `gorm:"type:text" json:"summary"`
	Keywords           []string         `gorm:"serializer:json;type:json" json:"keywords"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
