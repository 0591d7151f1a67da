package repository

import (
	"context"
	"doc-organizer-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, id uint, status model.ProcessingStatus) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	FindByIDForUser(ctx context.Context, userID, id uint) (*model.Document, error)
	// FindByIDsForUser 批量取回属于该用户的文档，不存在的 id 直接忽略，返回顺序不保证。
	FindByIDsForUser(ctx context.Context, userID uint, ids []uint) ([]model.Document, error)
	ListByUser(ctx context.Context, userID uint, category string, offset, limit int) ([]model.Document, int64, error)
	// ListForLocalSearch 返回该用户（可选分类）下的全部文档，作为本地检索语料。
	ListForLocalSearch(ctx context.Context, userID uint, category string) ([]model.Document, error)
	ListByStatus(ctx context.Context, status model.ProcessingStatus) ([]model.Document, error)
	CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int64, error)
	CategoryCounts(ctx context.Context, userID uint) (map[string]int64, error)
	Delete(ctx context.Context, id uint) error
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) Update(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// UpdateStatus 只更新处理状态；completed 与 failed 同时写入 processed_at。
func (r *documentRepository) UpdateStatus(ctx context.Context, id uint, status model.ProcessingStatus) error {
	updates := map[string]interface{}{"processing_status": status}
	if status == model.StatusCompleted || status == model.StatusFailed {
		updates["processed_at"] = time.Now()
	}
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByIDForUser(ctx context.Context, userID, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByIDsForUser(ctx context.Context, userID uint, ids []uint) ([]model.Document, error) {
	var docs []model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ? AND user_id = ?", ids, userID).Find(&docs).Error
	return docs, err
}

// ListByUser 分页列出用户文档，按上传时间倒序。
func (r *documentRepository) ListByUser(ctx context.Context, userID uint, category string, offset, limit int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Document{}).Where("user_id = ?", userID)
	if category != "" {
		db = db.Where("category = ?", category)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Omit("extracted_text").Order("upload_date DESC").Offset(offset).Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *documentRepository) ListForLocalSearch(ctx context.Context, userID uint, category string) ([]model.Document, error) {
	var docs []model.Document
	db := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		db = db.Where("category = ?", category)
	}
	err := db.Order("upload_date DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) ListByStatus(ctx context.Context, status model.ProcessingStatus) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("processing_status = ?", status).Order("id").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) CountByStatus(ctx context.Context) (map[model.ProcessingStatus]int64, error) {
	var rows []struct {
		ProcessingStatus model.ProcessingStatus
		Total            int64
	}
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Select("processing_status, COUNT(*) AS total").
		Group("processing_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.ProcessingStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.ProcessingStatus] = row.Total
	}
	return counts, nil
}

func (r *documentRepository) CategoryCounts(ctx context.Context, userID uint) (map[string]int64, error) {
	var rows []struct {
		Category string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Select("category, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Total
	}
	return counts, nil
}

func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, id).Error
}

func (r *documentRepository) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Document{})
	return res.RowsAffected, res.Error
}
