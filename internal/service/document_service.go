package service

import (
	"context"
	"doc-organizer-go/internal/category"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/kafka"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/storage"
	"doc-organizer-go/pkg/tasks"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDocumentNotFound    = errors.New("文档不存在或无权访问")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyFile           = errors.New("empty file")
)

const downloadURLExpiry = time.Hour

// ObjectStorage 是对象存储的抽象，由 storage.ObjectStore 实现。
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	PresignedGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// DocumentIndexer 是检索索引的写入端，由 es.Indexer 实现。
type DocumentIndexer interface {
	Enabled() bool
	IndexDocument(ctx context.Context, doc model.DocumentIndexEntry) error
	DeleteDocument(ctx context.Context, documentID uint) error
	DeleteByUser(ctx context.Context, userID uint) error
}

// UploadRequest 是一次文件上传的输入。
type UploadRequest struct {
	Filename    string
	Size        int64
	ContentType string
	Category    string
	Body        io.Reader
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// PreviewInfoDTO 封装了文件预览所需的信息。
type PreviewInfoDTO struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
	FileSize int64  `json:"fileSize"`
}

// CategoryInfo 是分类列表中的一项，附带当前用户在该分类下的文档数。
type CategoryInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Description   string `json:"description"`
	DocumentCount int64  `json:"document_count"`
}

// DocumentPage 是文档列表的一页。
type DocumentPage struct {
	Documents []model.Document `json:"documents"`
	Total     int64            `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, user *model.User, req UploadRequest) (*model.Document, error)
	List(ctx context.Context, userID uint, categoryInput string, limit, offset int) (*DocumentPage, error)
	Get(ctx context.Context, userID, documentID uint) (*model.Document, error)
	Preview(ctx context.Context, userID, documentID uint) (*PreviewInfoDTO, error)
	GenerateDownloadURL(ctx context.Context, userID, documentID uint) (*DownloadInfoDTO, error)
	Delete(ctx context.Context, userID, documentID uint) error
	Categories(ctx context.Context, userID uint) ([]CategoryInfo, error)
	PurgeUser(ctx context.Context, userID uint) error
}

type documentService struct {
	docRepo   repository.DocumentRepository
	store     ObjectStorage
	indexer   DocumentIndexer
	producer  kafka.TaskProducer
	uploadCfg config.UploadConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	store ObjectStorage,
	indexer DocumentIndexer,
	producer kafka.TaskProducer,
	uploadCfg config.UploadConfig,
) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		store:     store,
		indexer:   indexer,
		producer:  producer,
		uploadCfg: uploadCfg,
	}
}

func (s *documentService) validateUpload(req UploadRequest) error {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if len(s.uploadCfg.AllowedExtensions) > 0 {
		allowed := false
		for _, a := range s.uploadCfg.AllowedExtensions {
			if strings.EqualFold(a, ext) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
		}
	}
	if req.Size <= 0 {
		return ErrEmptyFile
	}
	if limitMB := s.uploadCfg.MaxFileSizeMB; limitMB > 0 && req.Size > limitMB<<20 {
		return fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, limitMB)
	}
	return nil
}

// Upload 保存文件到对象存储，创建 pending 记录并投递处理任务。
// 未指定分类时先根据文件名自动分类，文本提取后由处理流水线再次分类。
func (s *documentService) Upload(ctx context.Context, user *model.User, req UploadRequest) (*model.Document, error) {
	req.Filename = filepath.Base(strings.TrimSpace(req.Filename))
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}

	doc := &model.Document{
		UserID:           user.ID,
		OriginalFilename: req.Filename,
		UploadDate:       time.Now(),
		FileSize:         req.Size,
		ContentType:      req.ContentType,
		ProcessingStatus: model.StatusPending,
	}
	if strings.TrimSpace(req.Category) != "" {
		name, ok := category.Normalize(req.Category)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
		}
		doc.Category = name
		doc.CategoryConfidence = 1
	} else {
		res := category.AutoCategorize(req.Filename, "")
		doc.Category = res.Category
		doc.CategoryConfidence = res.Confidence
	}

	doc.ObjectKey = storage.ObjectKey(user.ID, req.Filename)
	if err := s.store.Put(ctx, doc.ObjectKey, req.Body, req.Size, req.ContentType); err != nil {
		return nil, err
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		_ = s.store.Remove(ctx, doc.ObjectKey)
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档上传成功, user: %d, document: %d, category: %s", user.ID, doc.ID, doc.Category)

	task := tasks.DocumentProcessingTask{
		DocumentID: doc.ID,
		UserID:     user.ID,
		ObjectKey:  doc.ObjectKey,
		Filename:   doc.OriginalFilename,
	}
	if err := s.producer.Produce(ctx, task); err != nil {
		log.Errorf("[DocumentService] 投递处理任务失败, document: %d, error: %v", doc.ID, err)
		if err := s.docRepo.UpdateStatus(ctx, doc.ID, model.StatusFailed); err == nil {
			doc.ProcessingStatus = model.StatusFailed
		}
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, userID uint, categoryInput string, limit, offset int) (*DocumentPage, error) {
	if limit == 0 {
		limit = 20
	}
	if limit < 1 || limit > 100 || offset < 0 {
		return nil, ErrInvalidPagination
	}
	cat := ""
	if strings.TrimSpace(categoryInput) != "" {
		name, ok := category.Normalize(categoryInput)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, categoryInput)
		}
		cat = name
	}
	docs, total, err := s.docRepo.ListByUser(ctx, userID, cat, offset, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return &DocumentPage{Documents: docs, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *documentService) Get(ctx context.Context, userID, documentID uint) (*model.Document, error) {
	doc, err := s.docRepo.FindByIDForUser(ctx, userID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Preview 返回处理流水线提取出的纯文本。
func (s *documentService) Preview(ctx context.Context, userID, documentID uint) (*PreviewInfoDTO, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	return &PreviewInfoDTO{
		FileName: doc.OriginalFilename,
		Content:  doc.ExtractedText,
		FileSize: doc.FileSize,
	}, nil
}

// GenerateDownloadURL 生成文件的临时下载链接，有效期为 1 小时。
func (s *documentService) GenerateDownloadURL(ctx context.Context, userID, documentID uint) (*DownloadInfoDTO, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	downloadURL, err := s.store.PresignedGet(ctx, doc.ObjectKey, doc.OriginalFilename, downloadURLExpiry)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{
		FileName:    doc.OriginalFilename,
		DownloadURL: downloadURL,
		FileSize:    doc.FileSize,
		ExpiresIn:   int64(downloadURLExpiry.Seconds()),
	}, nil
}

// Delete 删除对象、索引条目和数据库记录。对象与索引删除失败只记录日志。
func (s *documentService) Delete(ctx context.Context, userID, documentID uint) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, doc.ObjectKey); err != nil {
		log.Warnf("[DocumentService] 删除对象失败, document: %d, error: %v", doc.ID, err)
	}
	if s.indexer != nil && s.indexer.Enabled() {
		if err := s.indexer.DeleteDocument(ctx, doc.ID); err != nil {
			log.Warnf("[DocumentService] 删除索引条目失败, document: %d, error: %v", doc.ID, err)
		}
	}
	if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档已删除, user: %d, document: %d", userID, doc.ID)
	return nil
}

func (s *documentService) Categories(ctx context.Context, userID uint) ([]CategoryInfo, error) {
	counts, err := s.docRepo.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	all := category.All()
	out := make([]CategoryInfo, 0, len(all))
	for _, c := range all {
		out = append(out, CategoryInfo{
			Name:          c.Name,
			DisplayName:   c.DisplayName,
			Description:   c.Description,
			DocumentCount: counts[c.Name],
		})
	}
	return out, nil
}

// PurgeUser 删除用户的全部文档，用于注销账户。
func (s *documentService) PurgeUser(ctx context.Context, userID uint) error {
	docs, err := s.docRepo.ListForLocalSearch(ctx, userID, "")
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.store.Remove(ctx, doc.ObjectKey); err != nil {
			log.Warnf("[DocumentService] 删除对象失败, document: %d, error: %v", doc.ID, err)
		}
	}
	if s.indexer != nil && s.indexer.Enabled() {
		if err := s.indexer.DeleteByUser(ctx, userID); err != nil {
			log.Warnf("[DocumentService] 删除用户索引失败, user: %d, error: %v", userID, err)
		}
	}
	n, err := s.docRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	log.Infof("[DocumentService] 已删除用户 %d 的 %d 个文档", userID, n)
	return nil
}
