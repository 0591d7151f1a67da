// Package pipeline 定义了文件处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"doc-organizer-go/internal/category"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/embedding"
	"doc-organizer-go/pkg/llm"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/tasks"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
)

// maxEmbeddingChars 截断送入 embedding 模型的正文。
const maxEmbeddingChars = 8000

// ObjectReader 读取上传的原始文件。
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor 从文件中提取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	Enabled() bool
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Indexer 写入检索索引，由 es.Indexer 实现。
type Indexer interface {
	Enabled() bool
	IndexDocument(ctx context.Context, doc model.DocumentIndexEntry) error
}

// Notifier 推送处理结果，由 repository.NotificationRepository 实现。
type Notifier interface {
	Publish(ctx context.Context, userID uint, n model.Notification) error
}

// Processor 封装了文件处理的所有依赖和逻辑。
// llmClient 与 embedder 可以为 nil，此时跳过对应步骤。
type Processor struct {
	docRepo   repository.DocumentRepository
	store     ObjectReader
	extractor TextExtractor
	llmClient llm.Client
	embedder  embedding.Client
	indexer   Indexer
	notifier  Notifier
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	docRepo repository.DocumentRepository,
	store ObjectReader,
	extractor TextExtractor,
	llmClient llm.Client,
	embedder embedding.Client,
	indexer Indexer,
	notifier Notifier,
) *Processor {
	return &Processor{
		docRepo:   docRepo,
		store:     store,
		extractor: extractor,
		llmClient: llmClient,
		embedder:  embedder,
		indexer:   indexer,
		notifier:  notifier,
	}
}

// Process 是文件处理的主函数。返回错误时消费者会重新投递该任务。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, document: %d, file: %s, reindex: %t", task.DocumentID, task.Filename, task.Reindex)

	doc, err := p.docRepo.FindByID(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 文档在排队期间被删除
			log.Warnf("[Processor] 文档 %d 不存在, 跳过", task.DocumentID)
			return nil
		}
		return fmt.Errorf("读取文档记录失败: %w", err)
	}

	if err := p.docRepo.UpdateStatus(ctx, doc.ID, model.StatusProcessing); err != nil {
		log.Warnf("[Processor] 更新处理状态失败, document: %d, error: %v", doc.ID, err)
	}

	if err := p.process(ctx, doc, task.Reindex); err != nil {
		log.Errorf("[Processor] 文档处理失败, document: %d, error: %v", doc.ID, err)
		if uerr := p.docRepo.UpdateStatus(ctx, doc.ID, model.StatusFailed); uerr != nil {
			log.Warnf("[Processor] 更新失败状态出错, document: %d, error: %v", doc.ID, uerr)
		}
		p.notify(ctx, doc, model.NotificationDocumentFailed, "文档处理失败")
		return err
	}

	p.notify(ctx, doc, model.NotificationDocumentProcessed, "文档处理完成")
	log.Infof("[Processor] 文档处理成功完成, document: %d, category: %s", doc.ID, doc.Category)
	return nil
}

func (p *Processor) process(ctx context.Context, doc *model.Document, reindex bool) error {
	// 1. 提取文本；重建索引时复用已有文本
	if !reindex || doc.ExtractedText == "" {
		text, err := p.extract(ctx, doc)
		if err != nil {
			return err
		}
		doc.ExtractedText = text
		log.Infof("[Processor] 步骤1: 文本提取完成, 内容长度: %d 字符", utf8.RuneCountInString(text))
	}

	// 2. 用户未指定分类时根据正文重新分类
	if doc.CategoryConfidence < 1 {
		res := category.AutoCategorize(doc.OriginalFilename, doc.ExtractedText)
		if res.Confidence >= doc.CategoryConfidence {
			doc.Category = res.Category
			doc.CategoryConfidence = res.Confidence
		}
		log.Infof("[Processor] 步骤2: 自动分类为 %s, 置信度 %.2f, 命中 %v", doc.Category, doc.CategoryConfidence, res.MatchedKeywords)
	}

	// 3. 模型分析，失败不影响后续步骤
	if p.llmClient != nil && doc.ExtractedText != "" {
		insight, err := p.llmClient.AnalyzeDocument(ctx, doc.OriginalFilename, doc.ExtractedText)
		if err != nil {
			log.Warnf("[Processor] 步骤3: 模型分析失败, document: %d, error: %v", doc.ID, err)
		} else {
			doc.Summary = insight.Summary
			doc.Keywords = insight.Keywords
			doc.DetectedIntent = insight.Intent
		}
	}

	// 4. 写入检索索引
	if p.indexer != nil && p.indexer.Enabled() {
		entry := model.DocumentIndexEntry{
			DocumentID:       doc.ID,
			UserID:           doc.UserID,
			OriginalFilename: doc.OriginalFilename,
			Category:         doc.Category,
			ExtractedText:    doc.ExtractedText,
			DetectedIntent:   doc.DetectedIntent,
			Summary:          doc.Summary,
			Keywords:         doc.Keywords,
			UploadDate:       doc.UploadDate,
		}
		if p.embedder != nil {
			vector, err := p.embedder.CreateEmbedding(ctx, embeddingInput(doc))
			if err != nil {
				log.Warnf("[Processor] 步骤4: 向量化失败, 仅写入文本字段, document: %d, error: %v", doc.ID, err)
			} else {
				entry.Vector = vector
				entry.ModelVersion = p.embedder.ModelVersion()
			}
		}
		if err := p.indexer.IndexDocument(ctx, entry); err != nil {
			return fmt.Errorf("索引文档失败: %w", err)
		}
		log.Infof("[Processor] 步骤4: 文档 %d 已写入索引", doc.ID)
	}

	doc.ProcessingStatus = model.StatusCompleted
	if err := p.docRepo.Update(ctx, doc); err != nil {
		return fmt.Errorf("保存处理结果失败: %w", err)
	}
	if err := p.docRepo.UpdateStatus(ctx, doc.ID, model.StatusCompleted); err != nil {
		return fmt.Errorf("更新处理状态失败: %w", err)
	}
	return nil
}

func (p *Processor) extract(ctx context.Context, doc *model.Document) (string, error) {
	object, err := p.store.Get(ctx, doc.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return "", fmt.Errorf("读取文件内容失败: %w", err)
	}
	if size == 0 {
		return "", errors.New("文件内容为空")
	}

	if p.extractor != nil && p.extractor.Enabled() {
		return p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), doc.OriginalFilename)
	}
	// 没有 Tika 时只处理纯文本文件
	if strings.HasPrefix(doc.ContentType, "text/") || strings.HasSuffix(strings.ToLower(doc.OriginalFilename), ".txt") {
		return strings.TrimSpace(strings.ToValidUTF8(buf.String(), "")), nil
	}
	log.Warnf("[Processor] 未配置文本提取服务, 文档 %d 只按文件名索引", doc.ID)
	return "", nil
}

func embeddingInput(doc *model.Document) string {
	parts := []string{doc.OriginalFilename}
	if doc.Summary != "" {
		parts = append(parts, doc.Summary)
	}
	parts = append(parts, doc.ExtractedText)
	input := strings.Join(parts, "\n")
	if runes := []rune(input); len(runes) > maxEmbeddingChars {
		input = string(runes[:maxEmbeddingChars])
	}
	return input
}

func (p *Processor) notify(ctx context.Context, doc *model.Document, kind, message string) {
	if p.notifier == nil {
		return
	}
	n := model.Notification{
		Type:       kind,
		DocumentID: doc.ID,
		Filename:   doc.OriginalFilename,
		Category:   doc.Category,
		Message:    message,
	}
	if err := p.notifier.Publish(ctx, doc.UserID, n); err != nil {
		log.Warnf("[Processor] 推送通知失败, document: %d, error: %v", doc.ID, err)
	}
}
