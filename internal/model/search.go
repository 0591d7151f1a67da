package model

// SearchMode 标识一次搜索最终使用的后端与模式。
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeSimple   SearchMode = "simple"
	ModeLocal    SearchMode = "local"
)

// ResultSource 标识单条结果来自哪个后端。
type ResultSource string

const (
	SourceSemantic ResultSource = "semantic"
	SourceLocal    ResultSource = "local"
)

// LocalScore 是本地检索结果携带的哨兵分数，本地结果不参与阈值过滤。
const LocalScore = 1.0

// SearchQuery 是一次搜索请求的输入。
type SearchQuery struct {
	UserID   uint
	Text     string
	Category string
	Limit    int
	Offset   int
}

// SearchResult 是排序后返回的一条结果。
type SearchResult struct {
	DocumentID uint         `json:"document_id"`
	Score      float64      `json:"search_score"`
	Caption    string       `json:"search_caption,omitempty"`
	Source     ResultSource `json:"source"`
	Document   *Document    `json:"document,omitempty"`
}

// ResultEnvelope 是搜索接口统一返回的结果信封，每个请求单独构造，不做持久化。
type ResultEnvelope struct {
	Documents       []SearchResult `json:"documents"`
	Total           int            `json:"total"`
	Query           string         `json:"query"`
	SearchMode      SearchMode     `json:"search_mode"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
}

// SemanticRequest 是发往托管检索服务的请求。
type SemanticRequest struct {
	UserID   uint
	Query    string
	Category string
	// Top 为过滤前需要取回的条数（offset + limit）
	Top      int
	Captions bool
	Mode     SearchMode
}

// SemanticHit 是托管检索返回的一条命中。
type SemanticHit struct {
	DocumentID uint
	Score      float64
	Caption    string
}

// OutcomeKind 是托管检索调用结果的分类。
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeUnconfigured
	OutcomeUnavailable
	OutcomeDegradedConfig
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnconfigured:
		return "unconfigured"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeDegradedConfig:
		return "degraded_config"
	default:
		return "unknown"
	}
}

// SemanticOutcome 是托管检索调用的带标签结果，Hits 仅在 OutcomeSuccess 时有意义。
type SemanticOutcome struct {
	Kind OutcomeKind
	Hits []SemanticHit
	Err  error
}

// LocalQuery 是本地文本检索的输入。
type LocalQuery struct {
	UserID   uint
	Text     string
	Category string
	Limit    int
	Offset   int
}

// LocalPage 是本地文本检索的一页结果，Total 为分页前的匹配总数。
type LocalPage struct {
	Documents []Document
	Total     int
}
