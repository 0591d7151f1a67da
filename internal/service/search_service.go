// Package service 提供了搜索、文档、用户与管理相关的业务逻辑。
package service

import (
	"context"
	"doc-organizer-go/internal/category"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/log"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	// ErrInvalidSearchRequest 是所有搜索输入校验错误的根错误。
	ErrInvalidSearchRequest = errors.New("invalid search request")
	ErrEmptyQuery           = fmt.Errorf("%w: query must not be empty", ErrInvalidSearchRequest)
	ErrQueryTooLong         = fmt.Errorf("%w: query is too long", ErrInvalidSearchRequest)
	ErrInvalidCategory      = fmt.Errorf("%w: unknown category", ErrInvalidSearchRequest)
	ErrInvalidPagination    = fmt.Errorf("%w: limit or offset out of range", ErrInvalidSearchRequest)
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	defaultPopularLimit = 10
	maxPopularLimit     = 20
	maxSuggestions      = 5
	defaultResultWindow = 10000
)

var (
	commonTerms = []string{
		"receipt", "invoice", "bill", "medical", "prescription", "insurance",
		"tax", "document", "statement", "warranty", "manual", "contract",
		"legal", "employment", "payroll", "bank", "financial", "utility",
		"government", "business", "travel", "education", "personal",
	}
	timeTerms = []string{"last month", "this year", "2023", "2024", "recent", "old"}

	spaceRE = regexp.MustCompile(`\s+`)
)

// SemanticSearcher 是托管语义检索的适配器接口，由 es.SemanticClient 实现。
type SemanticSearcher interface {
	Configured() bool
	Search(ctx context.Context, req model.SemanticRequest) model.SemanticOutcome
}

// SearchService 接口定义了搜索操作。
type SearchService interface {
	// Search 在有限时间内返回结果信封，除输入校验失败外不返回错误。
	Search(ctx context.Context, q model.SearchQuery) (*model.ResultEnvelope, error)
	History(ctx context.Context, userID uint, limit int) ([]model.SearchHistoryItem, error)
	ClearHistory(ctx context.Context, userID uint) (int64, error)
	Popular(ctx context.Context, limit int) ([]model.PopularSearch, error)
	Suggestions(query string) ([]string, error)
	// Close 等待进行中的搜索历史写入完成，ctx 结束时提前返回。
	Close(ctx context.Context) error
}

type searchService struct {
	semantic  SemanticSearcher
	local     LocalIndex
	docRepo   repository.DocumentRepository
	logRepo   repository.SearchLogRepository
	threshold *ScoreThreshold

	timeout        time.Duration
	historyTimeout time.Duration
	defaultLimit   int
	maxLimit       int
	maxQueryLength int

	// maxResultWindow 限制 offset+limit，与托管检索的 index.max_result_window 一致
	maxResultWindow int

	historyWG sync.WaitGroup
}

// NewSearchService 创建一个新的 SearchService 实例。semantic 可以为 nil，此时只使用本地检索。
func NewSearchService(
	semantic SemanticSearcher,
	local LocalIndex,
	docRepo repository.DocumentRepository,
	logRepo repository.SearchLogRepository,
	threshold *ScoreThreshold,
	cfg config.SearchConfig,
) SearchService {
	s := &searchService{
		semantic:        semantic,
		local:           local,
		docRepo:         docRepo,
		logRepo:         logRepo,
		threshold:       threshold,
		timeout:         cfg.Timeout,
		historyTimeout:  cfg.HistoryTimeout,
		defaultLimit:    cfg.DefaultLimit,
		maxLimit:        cfg.MaxLimit,
		maxQueryLength:  cfg.MaxQueryLength,
		maxResultWindow: cfg.MaxResultWindow,
	}
	if s.threshold == nil {
		s.threshold = NewScoreThreshold(cfg.MinScore)
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.historyTimeout <= 0 {
		s.historyTimeout = 3 * time.Second
	}
	if s.maxLimit <= 0 {
		s.maxLimit = 100
	}
	if s.defaultLimit <= 0 || s.defaultLimit > s.maxLimit {
		s.defaultLimit = min(20, s.maxLimit)
	}
	if s.maxQueryLength <= 0 {
		s.maxQueryLength = 512
	}
	if s.maxResultWindow <= 0 {
		s.maxResultWindow = defaultResultWindow
	}
	return s
}

// normalizeQuery 去掉首尾空白并把连续空白折叠为一个空格。
func normalizeQuery(q string) string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(q, " "))
}

func (s *searchService) validate(q model.SearchQuery) (model.SearchQuery, error) {
	q.Text = normalizeQuery(q.Text)
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if utf8.RuneCountInString(q.Text) > s.maxQueryLength {
		return q, ErrQueryTooLong
	}
	if strings.TrimSpace(q.Category) != "" {
		name, ok := category.Normalize(q.Category)
		if !ok {
			return q, fmt.Errorf("%w: %q", ErrInvalidCategory, q.Category)
		}
		q.Category = name
	} else {
		q.Category = ""
	}
	if q.Limit == 0 {
		q.Limit = s.defaultLimit
	}
	if q.Limit < 0 || q.Limit > s.maxLimit || q.Offset < 0 {
		return q, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidPagination, q.Limit, q.Offset)
	}
	if q.Offset > s.maxResultWindow-q.Limit {
		return q, fmt.Errorf("%w: offset+limit must not exceed %d", ErrInvalidPagination, s.maxResultWindow)
	}
	return q, nil
}

// Search 依次尝试托管语义检索、普通检索与本地检索。
func (s *searchService) Search(ctx context.Context, q model.SearchQuery) (*model.ResultEnvelope, error) {
	q, err := s.validate(q)
	if err != nil {
		log.Warnf("[SearchService] 搜索参数校验失败, user: %d, error: %v", q.UserID, err)
		return nil, err
	}
	// 每个请求只读取一次阈值，配置热加载不影响进行中的请求
	threshold := s.threshold.Load()

	start := time.Now()
	log.Infof("[SearchService] 开始搜索, user: %d, query: '%s', category: '%s', limit: %d, offset: %d",
		q.UserID, q.Text, q.Category, q.Limit, q.Offset)

	var (
		results []model.SearchResult
		total   int
		mode    model.SearchMode
		ok      bool
	)
	if s.semantic != nil && s.semantic.Configured() {
		results, total, mode, ok = s.searchRemote(ctx, q, threshold)
	} else {
		log.Infof("[SearchService] 托管检索未配置, 使用本地检索")
	}
	if !ok {
		results, total = s.searchLocal(ctx, q)
		mode = model.ModeLocal
	}

	elapsed := time.Since(start)
	env := &model.ResultEnvelope{
		Documents:       results,
		Total:           total,
		Query:           q.Text,
		SearchMode:      mode,
		ExecutionTimeMs: math.Round(float64(elapsed.Microseconds())/10) / 100,
	}
	log.Infow("[SearchService] 搜索完成",
		"user_id", q.UserID, "mode", mode, "total", total, "returned", len(results), "elapsed", elapsed.String())

	s.recordHistory(ctx, q.UserID, q.Text, total, mode, elapsed.Milliseconds())
	return env, nil
}

// searchRemote 调用托管检索，配置降级时以 simple 模式重试一次。ok 为 false 表示需要回退到本地检索。
func (s *searchService) searchRemote(ctx context.Context, q model.SearchQuery, threshold float64) ([]model.SearchResult, int, model.SearchMode, bool) {
	remoteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := model.SemanticRequest{
		UserID:   q.UserID,
		Query:    q.Text,
		Category: q.Category,
		Top:      q.Offset + q.Limit,
		Captions: true,
		Mode:     model.ModeSemantic,
	}
	mode := model.ModeSemantic
	out := s.callSemantic(remoteCtx, req)
	if out.Kind == model.OutcomeDegradedConfig {
		log.Warnf("[SearchService] 语义重排序配置不可用, 使用普通检索重试一次: %v", out.Err)
		mode = model.ModeSimple
		req.Mode = model.ModeSimple
		out = s.callSemantic(remoteCtx, req)
	}
	if out.Kind != model.OutcomeSuccess {
		log.Warnf("[SearchService] 托管检索失败 (%s), 回退到本地检索: %v", out.Kind, out.Err)
		return nil, 0, "", false
	}

	results := make([]model.SearchResult, 0, len(out.Hits))
	seen := make(map[uint]struct{}, len(out.Hits))
	for _, hit := range out.Hits {
		if _, dup := seen[hit.DocumentID]; dup {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		results = append(results, model.SearchResult{
			DocumentID: hit.DocumentID,
			Score:      hit.Score,
			Caption:    hit.Caption,
			Source:     model.SourceSemantic,
		})
	}
	filtered := FilterByScore(results, threshold)
	if dropped := len(results) - len(filtered); dropped > 0 {
		log.Infof("[SearchService] 阈值 %.2f 过滤掉 %d 条结果", threshold, dropped)
	}

	total := len(filtered)
	page := paginate(filtered, q.Offset, q.Limit)
	return s.hydrate(ctx, q.UserID, page), total, mode, true
}

// callSemantic 调用适配器，panic 视为服务不可用。
func (s *searchService) callSemantic(ctx context.Context, req model.SemanticRequest) (out model.SemanticOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[SearchService] 托管检索适配器 panic: %v", r)
			out = model.SemanticOutcome{Kind: model.OutcomeUnavailable, Err: fmt.Errorf("semantic adapter panic: %v", r)}
		}
	}()
	return s.semantic.Search(ctx, req)
}

func paginate(results []model.SearchResult, offset, limit int) []model.SearchResult {
	if offset >= len(results) {
		return []model.SearchResult{}
	}
	end := min(offset+limit, len(results))
	return results[offset:end]
}

// hydrate 按结果顺序补全文档元数据，数据库中已不存在的文档被丢弃。
func (s *searchService) hydrate(ctx context.Context, userID uint, page []model.SearchResult) []model.SearchResult {
	if len(page) == 0 {
		return []model.SearchResult{}
	}
	ids := make([]uint, 0, len(page))
	for _, r := range page {
		ids = append(ids, r.DocumentID)
	}
	docs, err := s.docRepo.FindByIDsForUser(ctx, userID, ids)
	if err != nil {
		log.Errorf("[SearchService] 批量查询文档失败, 返回未补全的结果: %v", err)
		return page
	}
	byID := make(map[uint]model.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]model.SearchResult, 0, len(page))
	for _, r := range page {
		doc, ok := byID[r.DocumentID]
		if !ok {
			log.Warnf("[SearchService] 索引中的文档 %d 在数据库中不存在, 已跳过", r.DocumentID)
			continue
		}
		r.Document = withoutText(doc)
		out = append(out, r)
	}
	return out
}

// searchLocal 是最终兜底，任何错误都只记录日志并返回空结果。
func (s *searchService) searchLocal(ctx context.Context, q model.SearchQuery) (results []model.SearchResult, total int) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[SearchService] 本地检索 panic: %v", r)
			results, total = []model.SearchResult{}, 0
		}
	}()
	if s.local == nil {
		return []model.SearchResult{}, 0
	}

	page, err := s.local.Search(ctx, model.LocalQuery{
		UserID:   q.UserID,
		Text:     q.Text,
		Category: q.Category,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		log.Errorf("[SearchService] 本地检索失败, 返回空结果: %v", err)
		return []model.SearchResult{}, 0
	}

	results = make([]model.SearchResult, 0, len(page.Documents))
	for _, doc := range page.Documents {
		results = append(results, model.SearchResult{
			DocumentID: doc.ID,
			Score:      model.LocalScore,
			Source:     model.SourceLocal,
			Document:   withoutText(doc),
		})
	}
	return FilterByScore(results, s.threshold.Load()), page.Total
}

// withoutText 返回不带全文的副本，结果信封只携带摘要信息。
func withoutText(doc model.Document) *model.Document {
	doc.ExtractedText = ""
	return &doc
}

// recordHistory 异步写入一条搜索历史，失败只记录日志。
func (s *searchService) recordHistory(ctx context.Context, userID uint, query string, count int, mode model.SearchMode, elapsedMs int64) {
	if s.logRepo == nil {
		return
	}
	entry := &model.SearchQueryLog{
		UserID:          userID,
		QueryText:       query,
		Timestamp:       time.Now(),
		ResultsCount:    count,
		SearchType:      mode,
		ExecutionTimeMs: elapsedMs,
	}

	s.historyWG.Add(1)
	go func() {
		defer s.historyWG.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[SearchService] 写入搜索历史 panic: %v", r)
			}
		}()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.historyTimeout)
		defer cancel()
		if err := s.logRepo.Create(writeCtx, entry); err != nil {
			log.Warnf("[SearchService] 写入搜索历史失败, user: %d, error: %v", userID, err)
		}
	}()
}

func (s *searchService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.historyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待搜索历史写入超时: %w", ctx.Err())
	}
}

func (s *searchService) History(ctx context.Context, userID uint, limit int) ([]model.SearchHistoryItem, error) {
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("%w: history limit must be between 1 and %d", ErrInvalidPagination, maxHistoryLimit)
	}
	logs, err := s.logRepo.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("获取搜索历史失败: %w", err)
	}
	items := make([]model.SearchHistoryItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, model.SearchHistoryItem{
			Query:           l.QueryText,
			Timestamp:       model.LocalTime(l.Timestamp),
			ResultsCount:    l.ResultsCount,
			SearchType:      l.SearchType,
			ExecutionTimeMs: l.ExecutionTimeMs,
		})
	}
	return items, nil
}

func (s *searchService) ClearHistory(ctx context.Context, userID uint) (int64, error) {
	n, err := s.logRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("清空搜索历史失败: %w", err)
	}
	log.Infof("[SearchService] 用户 %d 清空了 %d 条搜索历史", userID, n)
	return n, nil
}

func (s *searchService) Popular(ctx context.Context, limit int) ([]model.PopularSearch, error) {
	if limit == 0 {
		limit = defaultPopularLimit
	}
	if limit < 1 || limit > maxPopularLimit {
		return nil, fmt.Errorf("%w: popular limit must be between 1 and %d", ErrInvalidPagination, maxPopularLimit)
	}
	popular, err := s.logRepo.Popular(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("获取热门搜索失败: %w", err)
	}
	return popular, nil
}

// Suggestions 基于常见文档词汇和时间短语给出最多 5 条补全建议。
func (s *searchService) Suggestions(query string) ([]string, error) {
	q := strings.ToLower(normalizeQuery(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}
	suggestions := make([]string, 0, maxSuggestions)
	for _, term := range commonTerms {
		if strings.Contains(term, q) {
			suggestions = append(suggestions, term)
		}
	}
	for _, term := range timeTerms {
		if strings.Contains(term, q) {
			suggestions = append(suggestions, term)
		}
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}
