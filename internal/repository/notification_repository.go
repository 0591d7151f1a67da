package repository

import (
	"context"
	"doc-organizer-go/internal/model"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// NotificationRepository 基于 Redis pub/sub 投递用户通知，离线用户不会收到补发。
type NotificationRepository interface {
	Publish(ctx context.Context, userID uint, n model.Notification) error
	Subscribe(ctx context.Context, userID uint) *redis.PubSub
}

type notificationRepository struct {
	redisClient *redis.Client
}

// NewNotificationRepository 创建一个新的 NotificationRepository 实例。
func NewNotificationRepository(redisClient *redis.Client) NotificationRepository {
	return &notificationRepository{redisClient: redisClient}
}

// NotificationChannel 返回用户的通知频道名。
func NotificationChannel(userID uint) string {
	return "notifications:" + strconv.FormatUint(uint64(userID), 10)
}

func (r *notificationRepository) Publish(ctx context.Context, userID uint, n model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.redisClient.Publish(ctx, NotificationChannel(userID), payload).Err()
}

func (r *notificationRepository) Subscribe(ctx context.Context, userID uint) *redis.PubSub {
	return r.redisClient.Subscribe(ctx, NotificationChannel(userID))
}
