// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/tasks"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// ErrProducerNotInitialized 表示生产者尚未初始化。
var ErrProducerNotInitialized = errors.New("kafka producer is not initialized")

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// TaskProducer 发送文档处理任务。
type TaskProducer interface {
	Produce(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// Producer 是基于 kafka.Writer 的 TaskProducer。
type Producer struct {
	writer *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers(cfg)...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// Produce 发送一个文档处理任务，以文档 ID 作为消息 key。
func (p *Producer) Produce(ctx context.Context, task tasks.DocumentProcessingTask) error {
	if p == nil || p.writer == nil {
		return ErrProducerNotInitialized
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprint(task.DocumentID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// AttemptCounter 记录每个文档任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, documentID uint) (int64, error)
	Reset(ctx context.Context, documentID uint) error
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 创建基于 Redis 的失败计数器，计数 24 小时后过期。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func attemptsKey(documentID uint) string {
	return fmt.Sprintf("kafka:attempts:%d", documentID)
}

func (c *redisAttemptCounter) Incr(ctx context.Context, documentID uint) (int64, error) {
	key := attemptsKey(documentID)
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, documentID uint) error {
	return c.rdb.Del(ctx, attemptsKey(documentID)).Err()
}

// Consumer 从 Kafka 读取任务并交给 TaskProcessor 同步处理。
type Consumer struct {
	cfg         config.KafkaConfig
	processor   TaskProcessor
	attempts    AttemptCounter
	maxAttempts int64
}

// NewConsumer 创建消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	maxAttempts := int64(cfg.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{cfg: cfg, processor: processor, attempts: attempts, maxAttempts: maxAttempts}
}

// Run 阻塞读取消息直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(c.cfg),
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			time.Sleep(time.Second)
			continue
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		if c.Handle(ctx, m.Value) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// Handle 处理一条消息，返回是否应该提交 offset。
// 成功、消息格式错误或失败次数达到上限时提交；否则不提交，交给 Kafka 重新投递。
func (c *Consumer) Handle(ctx context.Context, value []byte) bool {
	var task tasks.DocumentProcessingTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理文档任务: document=%d, filename=%s, reindex=%t", task.DocumentID, task.Filename, task.Reindex)
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("处理文档任务失败: document=%d, error: %v", task.DocumentID, err)
		attempts, incErr := c.attempts.Incr(ctx, task.DocumentID)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if attempts >= c.maxAttempts {
			log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: document=%d", c.maxAttempts, task.DocumentID)
			_ = c.attempts.Reset(ctx, task.DocumentID)
			return true
		}
		return false
	}

	log.Infof("文档任务处理成功: document=%d", task.DocumentID)
	_ = c.attempts.Reset(ctx, task.DocumentID)
	return true
}
