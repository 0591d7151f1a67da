package es

import (
	"bytes"
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/pkg/embedding"
	"doc-organizer-go/pkg/log"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// errDegradedConfig 表示服务可达，但语义重排序配置缺失或被拒绝。
var errDegradedConfig = errors.New("semantic reranker configuration unavailable")

// StatusError 是 Elasticsearch 返回的非 2xx 响应。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elasticsearch returned status %d: %s", e.StatusCode, e.Body)
}

// searchFields 是关键词检索覆盖的字段，文件名权重最高。
var searchFields = []string{"original_filename^3", "extracted_text", "summary^2", "detected_intent", "category^2", "keywords^2"}

const (
	captionField     = "extracted_text"
	rerankWindowSize = 50
	maxErrorBody     = 64 << 10
)

// Elasticsearch 的服务端上限，超出时请求会被 400 拒绝。
const (
	maxNumCandidates = 10000
	maxResultWindow  = 10000
)

// SemanticClient 是托管检索服务的适配器，每次调用都归类为 model.SemanticOutcome，
// 除熔断器与限流器的计数外不修改任何本地状态。
type SemanticClient struct {
	client      *elasticsearch.Client
	index       string
	inferenceID string
	embedder    embedding.Client
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
}

// NewSemanticClient 创建适配器。client 为 nil 或 index 为空时 Configured 返回 false；
// embedder 为 nil 时语义模式不带向量子查询。
func NewSemanticClient(client *elasticsearch.Client, esCfg config.ElasticsearchConfig, searchCfg config.SearchConfig, embedder embedding.Client) *SemanticClient {
	limit := rate.Inf
	if searchCfg.RateLimit > 0 {
		limit = rate.Limit(searchCfg.RateLimit)
	}
	burst := searchCfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	bc := searchCfg.Breaker
	minRequests := bc.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	failureRatio := bc.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}
	st := gobreaker.Settings{
		Name:        "elasticsearch-semantic-search",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[SemanticSearch] 熔断器 '%s' 状态变化: %s -> %s", name, from, to)
		},
		// 配置降级、调用方取消与请求本身的 4xx 不代表服务故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errDegradedConfig) || errors.Is(err, context.Canceled) || isRequestError(err)
		},
	}

	return &SemanticClient{
		client:      client,
		index:       esCfg.IndexName,
		inferenceID: strings.TrimSpace(esCfg.InferenceID),
		embedder:    embedder,
		breaker:     gobreaker.NewCircuitBreaker(st),
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Configured 判断托管检索是否已配置。
func (c *SemanticClient) Configured() bool {
	return c != nil && c.client != nil && c.index != ""
}

// Search 在托管检索服务上执行一次查询。
func (c *SemanticClient) Search(ctx context.Context, req model.SemanticRequest) model.SemanticOutcome {
	if !c.Configured() {
		return model.SemanticOutcome{Kind: model.OutcomeUnconfigured}
	}
	if req.Mode == "" {
		req.Mode = model.ModeSemantic
	}
	if req.Top <= 0 {
		req.Top = 10
	}
	if req.Mode == model.ModeSemantic && c.inferenceID == "" {
		return model.SemanticOutcome{Kind: model.OutcomeDegradedConfig, Err: errDegradedConfig}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.SemanticOutcome{Kind: model.OutcomeUnavailable, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	body, err := c.buildBody(ctx, req)
	if err != nil {
		return model.SemanticOutcome{Kind: model.OutcomeUnavailable, Err: err}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, req.Mode, body)
	})
	if err != nil {
		kind := classify(err)
		log.Warnw("[SemanticSearch] 托管检索调用失败",
			"mode", req.Mode, "outcome", kind.String(), "elapsed", time.Since(start).String(), "error", err)
		return model.SemanticOutcome{Kind: kind, Err: err}
	}

	hits := result.(*searchResponse).toHits(req.Mode)
	log.Infof("[SemanticSearch] 托管检索成功, mode: %s, 命中 %d 条, 耗时 %s", req.Mode, len(hits), time.Since(start))
	return model.SemanticOutcome{Kind: model.OutcomeSuccess, Hits: hits}
}

func classify(err error) model.OutcomeKind {
	if errors.Is(err, errDegradedConfig) {
		return model.OutcomeDegradedConfig
	}
	// 熔断打开、传输错误、超时、401/403/429/5xx 以及其他意外状态码
	return model.OutcomeUnavailable
}

func (c *SemanticClient) do(ctx context.Context, mode model.SearchMode, body []byte) (*searchResponse, error) {
	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.index),
		c.client.Search.WithBody(bytes.NewReader(body)),
		c.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		if mode == model.ModeSemantic && isSemanticConfigError(res.StatusCode, raw, c.inferenceID) {
			return nil, fmt.Errorf("%w: status %d", errDegradedConfig, res.StatusCode)
		}
		return nil, &StatusError{StatusCode: res.StatusCode, Body: string(raw)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode elasticsearch response: %w", err)
	}
	return &parsed, nil
}

// isRequestError 判断是否为单个请求被拒绝的 4xx。认证失败与限流属于服务侧问题，不在此列。
func isRequestError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}

// isSemanticConfigError 判断 400/404 是否因重排序推理端点缺失或不可用。
func isSemanticConfigError(status int, body []byte, inferenceID string) bool {
	if status != http.StatusBadRequest && status != http.StatusNotFound {
		return false
	}
	lower := strings.ToLower(string(body))
	if inferenceID != "" && strings.Contains(lower, strings.ToLower(inferenceID)) {
		return true
	}
	for _, marker := range []string{"inference", "text_similarity_reranker", "semantic configuration", "rerank"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c *SemanticClient) buildBody(ctx context.Context, req model.SemanticRequest) ([]byte, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": req.UserID}},
	}
	if req.Category != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"category": req.Category}})
	}
	should := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":     req.Query,
				"fields":    searchFields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}

	esQuery := map[string]interface{}{
		"size":    req.Top,
		"_source": []string{"document_id"},
	}
	if req.Captions {
		esQuery["highlight"] = map[string]interface{}{
			"pre_tags":  []string{""},
			"post_tags": []string{""},
			"fields": map[string]interface{}{
				captionField: map[string]interface{}{
					"fragment_size":       200,
					"number_of_fragments": 1,
				},
			},
		}
	}

	if req.Mode == model.ModeSimple {
		esQuery["query"] = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   should,
				"filter": filters,
			},
		}
		return json.Marshal(esQuery)
	}

	if c.embedder != nil {
		vector, err := c.embedder.CreateEmbedding(ctx, req.Query)
		if err != nil {
			log.Warnf("[SemanticSearch] 查询向量化失败, 语义检索不带向量子查询: %v", err)
		} else {
			should = append(should, map[string]interface{}{
				"knn": map[string]interface{}{
					"field":          "vector",
					"query_vector":   vector,
					"num_candidates": min(max(req.Top*10, 100), maxNumCandidates),
				},
			})
		}
	}
	window := min(max(req.Top, rerankWindowSize), maxResultWindow)
	esQuery["retriever"] = map[string]interface{}{
		"text_similarity_reranker": map[string]interface{}{
			"retriever": map[string]interface{}{
				"standard": map[string]interface{}{
					"query": map[string]interface{}{
						"bool": map[string]interface{}{
							"should":               should,
							"filter":               filters,
							"minimum_should_match": 1,
						},
					},
				},
			},
			"field":            captionField,
			"inference_id":     c.inferenceID,
			"inference_text":   req.Query,
			"rank_window_size": window,
		},
	}
	return json.Marshal(esQuery)
}

type searchResponse struct {
	Hits struct {
		MaxScore *float64 `json:"max_score"`
		Hits     []struct {
			ID     string   `json:"_id"`
			Score  *float64 `json:"_score"`
			Source struct {
				DocumentID uint `json:"document_id"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// toHits 保持服务端顺序；simple 模式的 BM25 分数除以 max_score 归一化到 [0,1]。
func (r *searchResponse) toHits(mode model.SearchMode) []model.SemanticHit {
	hits := make([]model.SemanticHit, 0, len(r.Hits.Hits))
	maxScore := 0.0
	if r.Hits.MaxScore != nil {
		maxScore = *r.Hits.MaxScore
	}
	for _, h := range r.Hits.Hits {
		id := h.Source.DocumentID
		if id == 0 {
			parsed, err := strconv.ParseUint(h.ID, 10, 64)
			if err != nil {
				continue
			}
			id = uint(parsed)
		}
		score := 0.0
		if h.Score != nil {
			score = *h.Score
		}
		if mode == model.ModeSimple {
			if maxScore > 0 {
				score = score / maxScore
			} else {
				score = 0
			}
		}
		caption := ""
		if fragments := h.Highlight[captionField]; len(fragments) > 0 {
			caption = strings.TrimSpace(fragments[0])
		}
		hits = append(hits, model.SemanticHit{DocumentID: id, Score: score, Caption: caption})
	}
	return hits
}
