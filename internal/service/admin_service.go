// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/es"
	"doc-organizer-go/pkg/kafka"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/tasks"
	"errors"
	"fmt"
	"time"
)

// ErrIndexNotConfigured 表示未配置托管检索索引，无法重建。
var ErrIndexNotConfigured = errors.New("search index is not configured")

const statusCheckTimeout = 3 * time.Second

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID    uint            `json:"userId"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	CreatedAt model.LocalTime `json:"createdAt"`
}

// ComponentStatus 是单个依赖的连通性。
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SearchStatus 汇总检索相关依赖的状态。
type SearchStatus struct {
	Database           ComponentStatus                  `json:"database"`
	Redis              ComponentStatus                  `json:"redis"`
	Elasticsearch      ComponentStatus                  `json:"elasticsearch"`
	Index              *es.IndexStats                   `json:"index,omitempty"`
	SemanticConfigured bool                             `json:"semantic_configured"`
	MinScore           float64                          `json:"min_score"`
	Documents          map[model.ProcessingStatus]int64 `json:"documents"`
	CheckedAt          model.LocalTime                  `json:"checked_at"`
}

// ReindexResult 是一次重建索引请求的结果。
type ReindexResult struct {
	Queued int `json:"queued"`
	Failed int `json:"failed"`
}

// IndexInspector 查询检索集群状态，由 es.Indexer 实现。
type IndexInspector interface {
	Enabled() bool
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*es.IndexStats, error)
}

// Notifier 推送用户通知，由 repository.NotificationRepository 实现。
type Notifier interface {
	Publish(ctx context.Context, userID uint, n model.Notification) error
}

// PingFunc 检查一个依赖是否可用。
type PingFunc func(ctx context.Context) error

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	SearchStatus(ctx context.Context) *SearchStatus
	Reindex(ctx context.Context, admin *model.User) (*ReindexResult, error)
	ListUsers(page, size int) (*UserListResponse, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo  repository.UserRepository
	docRepo   repository.DocumentRepository
	index     IndexInspector
	semantic  SemanticSearcher
	producer  kafka.TaskProducer
	notifier  Notifier
	threshold *ScoreThreshold
	dbPing    PingFunc
	redisPing PingFunc
}

// NewAdminService 创建一个新的 AdminService 实例。dbPing 与 redisPing 为 nil 时对应组件报告为 disabled。
func NewAdminService(
	userRepo repository.UserRepository,
	docRepo repository.DocumentRepository,
	index IndexInspector,
	semantic SemanticSearcher,
	producer kafka.TaskProducer,
	notifier Notifier,
	threshold *ScoreThreshold,
	dbPing, redisPing PingFunc,
) AdminService {
	return &adminService{
		userRepo:  userRepo,
		docRepo:   docRepo,
		index:     index,
		semantic:  semantic,
		producer:  producer,
		notifier:  notifier,
		threshold: threshold,
		dbPing:    dbPing,
		redisPing: redisPing,
	}
}

func checkComponent(ctx context.Context, ping PingFunc) ComponentStatus {
	if ping == nil {
		return ComponentStatus{Status: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return ComponentStatus{Status: "down", Error: err.Error()}
	}
	return ComponentStatus{Status: "up"}
}

// SearchStatus 检查数据库、Redis、Elasticsearch 的连通性并汇总索引统计。
// 单个依赖失败只体现在对应字段上。
func (s *adminService) SearchStatus(ctx context.Context) *SearchStatus {
	status := &SearchStatus{
		Database:           checkComponent(ctx, s.dbPing),
		Redis:              checkComponent(ctx, s.redisPing),
		SemanticConfigured: s.semantic != nil && s.semantic.Configured(),
		MinScore:           s.threshold.Load(),
		Documents:          map[model.ProcessingStatus]int64{},
		CheckedAt:          model.LocalTime(time.Now()),
	}

	if s.index == nil || !s.index.Enabled() {
		status.Elasticsearch = ComponentStatus{Status: "disabled"}
	} else {
		status.Elasticsearch = checkComponent(ctx, s.index.Ping)
		if status.Elasticsearch.Status == "up" {
			stats, err := s.index.Stats(ctx)
			if err != nil {
				log.Warnf("[AdminService] 读取索引统计失败: %v", err)
			} else {
				status.Index = stats
			}
		}
	}

	if status.Database.Status != "down" {
		counts, err := s.docRepo.CountByStatus(ctx)
		if err != nil {
			log.Warnf("[AdminService] 统计文档状态失败: %v", err)
		} else {
			status.Documents = counts
		}
	}
	return status
}

// Reindex 为所有处理完成的文档投递重建索引任务，任务复用已提取的文本。
func (s *adminService) Reindex(ctx context.Context, admin *model.User) (*ReindexResult, error) {
	if s.index == nil || !s.index.Enabled() {
		return nil, ErrIndexNotConfigured
	}
	docs, err := s.docRepo.ListByStatus(ctx, model.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("查询待重建文档失败: %w", err)
	}

	result := &ReindexResult{}
	for _, doc := range docs {
		task := tasks.DocumentProcessingTask{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			ObjectKey:  doc.ObjectKey,
			Filename:   doc.OriginalFilename,
			Reindex:    true,
		}
		if err := s.producer.Produce(ctx, task); err != nil {
			log.Errorf("[AdminService] 投递重建任务失败, document: %d, error: %v", doc.ID, err)
			result.Failed++
			continue
		}
		result.Queued++
	}
	log.Infof("[AdminService] 管理员 %s 触发重建索引, queued: %d, failed: %d", admin.Username, result.Queued, result.Failed)

	if s.notifier != nil {
		n := model.Notification{
			Type:    model.NotificationReindexQueued,
			Message: fmt.Sprintf("已投递 %d 个重建索引任务", result.Queued),
		}
		if err := s.notifier.Publish(ctx, admin.ID, n); err != nil {
			log.Warnf("[AdminService] 推送重建通知失败: %v", err)
		}
	}
	return result, nil
}

// ListUsers 以分页的形式返回用户列表
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(offset, size)
	if err != nil {
		return nil, err
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		userResponses = append(userResponses, UserDetailResponse{
			UserID:    u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Role:      u.Role,
			CreatedAt: model.LocalTime(u.CreatedAt),
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}

	return &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}
