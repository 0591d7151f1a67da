// Package llm 调用大语言模型为文档生成摘要、关键词与意图。
package llm

import (
	"context"
	"doc-organizer-go/internal/config"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse 表示模型没有返回任何内容。
var ErrEmptyResponse = errors.New("llm returned empty response")

// Insight 是模型对单个文档的分析结果。
type Insight struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Intent   string   `json:"intent"`
}

// Client defines the interface for an LLM client.
type Client interface {
	AnalyzeDocument(ctx context.Context, filename, text string) (*Insight, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient 创建 OpenAI 兼容的客户端，未配置 api_key 时返回 nil。
func NewClient(cfg config.LLMConfig) Client {
	if cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIClient{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

const systemPrompt = `You analyze personal documents such as receipts, bills, warranty cards and medical records.
Reply with a JSON object with exactly these fields:
"summary": one or two sentences describing the document,
"keywords": up to 8 short lowercase keywords,
"intent": a short phrase naming what the user would use this document for.`

// AnalyzeDocument 请求模型分析文档，返回值经过 JSON 修复后解析。
func (c *openAIClient) AnalyzeDocument(ctx context.Context, filename, text string) (*Insight, error) {
	if c.cfg.MaxInputChars > 0 {
		if runes := []rune(text); len(runes) > c.cfg.MaxInputChars {
			text = string(runes[:c.cfg.MaxInputChars])
		}
	}
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Filename: %s\n\nContent:\n%s\n\nPlease respond with valid JSON only.", filename, text)},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("调用 LLM 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return ParseInsight(resp.Choices[0].Message.Content)
}

// ParseInsight 解析模型输出，容忍代码块包裹、尾逗号等常见格式问题。
func ParseInsight(raw string) (*Insight, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("修复 LLM 输出失败: %w", err)
	}
	var insight Insight
	if err := json.Unmarshal([]byte(repaired), &insight); err != nil {
		return nil, fmt.Errorf("解析 LLM 输出失败: %w", err)
	}

	insight.Summary = strings.TrimSpace(insight.Summary)
	insight.Intent = strings.TrimSpace(insight.Intent)
	keywords := make([]string, 0, len(insight.Keywords))
	seen := make(map[string]struct{}, len(insight.Keywords))
	for _, kw := range insight.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}
	insight.Keywords = keywords
	return &insight, nil
}
