package repository

import (
	"context"
	"doc-organizer-go/internal/model"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SearchLogRepository 定义了搜索历史的持久化操作。
type SearchLogRepository interface {
	Create(ctx context.Context, entry *model.SearchQueryLog) error
	ListRecent(ctx context.Context, userID uint, limit int) ([]model.SearchQueryLog, error)
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
	Popular(ctx context.Context, limit int) ([]model.PopularSearch, error)
}

// searchLogRepository 是 GORM+Redis 实现，热门搜索结果缓存在 Redis 中。
type searchLogRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewSearchLogRepository 创建一个新的 SearchLogRepository 实例，redisClient 为 nil 时不缓存。
func NewSearchLogRepository(db *gorm.DB, redisClient *redis.Client, cacheTTL time.Duration) SearchLogRepository {
	return &searchLogRepository{db: db, redisClient: redisClient, cacheTTL: cacheTTL}
}

func popularCacheKey(limit int) string {
	return fmt.Sprintf("search:popular:%d", limit)
}

func (r *searchLogRepository) Create(ctx context.Context, entry *model.SearchQueryLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListRecent 返回用户最近的搜索记录，最新的在前。
func (r *searchLogRepository) ListRecent(ctx context.Context, userID uint, limit int) ([]model.SearchQueryLog, error) {
	var logs []model.SearchQueryLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *searchLogRepository) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.SearchQueryLog{})
	return res.RowsAffected, res.Error
}

// Popular 按查询文本聚合所有用户的搜索，按次数倒序。
func (r *searchLogRepository) Popular(ctx context.Context, limit int) ([]model.PopularSearch, error) {
	key := popularCacheKey(limit)
	if r.redisClient != nil {
		if cached, err := r.redisClient.Get(ctx, key).Bytes(); err == nil {
			var out []model.PopularSearch
			if json.Unmarshal(cached, &out) == nil {
				return out, nil
			}
		}
	}

	var rows []struct {
		QueryText string
		Total     int64
		AvgTime   float64
	}
	err := r.db.WithContext(ctx).Model(&model.SearchQueryLog{}).
		Select("query_text, COUNT(id) AS total, AVG(execution_time_ms) AS avg_time").
		Group("query_text").
		Order("total DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.PopularSearch, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.PopularSearch{
			Query:              row.QueryText,
			SearchCount:        row.Total,
			AvgExecutionTimeMs: float64(int64(row.AvgTime*100+0.5)) / 100,
		})
	}

	if r.redisClient != nil && r.cacheTTL > 0 {
		if b, err := json.Marshal(out); err == nil {
			_ = r.redisClient.Set(ctx, key, b, r.cacheTTL).Err()
		}
	}
	return out, nil
}
