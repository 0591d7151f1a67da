// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/pkg/log"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyEmbedding 表示模型返回了空向量。
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

type openAIClient struct {
	cfg    config.EmbeddingConfig
	client *openai.Client
}

// NewClient creates an OpenAI-compatible embedding client. It returns nil when no API key is configured.
func NewClient(cfg config.EmbeddingConfig) Client {
	if cfg.APIKey == "" {
		log.Warnf("[EmbeddingClient] 未配置 api_key, 向量检索与文档向量化将被跳过")
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// CreateEmbedding returns the vector for the given text.
func (c *openAIClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}

func (c *openAIClient) ModelVersion() string {
	return c.cfg.Model
}
