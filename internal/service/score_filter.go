package service

import (
	"doc-organizer-go/internal/model"
	"math"
	"sync/atomic"
)

// DefaultMinScore 是未配置或配置非法时使用的最低相关度阈值。
const DefaultMinScore = 0.5

// ClampThreshold 把阈值收敛到 [0,1]，超出范围的值被截断而不是拒绝。
func ClampThreshold(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return DefaultMinScore
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

// FilterByScore 丢弃托管检索中低于阈值的结果，分数原样保留，不改变顺序。
// 本地结果没有连续分数，直接放行。
func FilterByScore(results []model.SearchResult, threshold float64) []model.SearchResult {
	threshold = ClampThreshold(threshold)
	kept := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Source == model.SourceLocal || r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

// ScoreThreshold 是进程级的阈值配置，只在配置热加载时写入，请求处理时只读。
type ScoreThreshold struct {
	bits atomic.Uint64
}

// NewScoreThreshold 创建阈值持有者，初始值经过截断。
func NewScoreThreshold(initial float64) *ScoreThreshold {
	t := &ScoreThreshold{}
	t.Store(initial)
	return t
}

// Load 返回当前阈值。
func (t *ScoreThreshold) Load() float64 {
	if t == nil {
		return DefaultMinScore
	}
	return math.Float64frombits(t.bits.Load())
}

// Store 更新阈值，已经返回的结果不受影响。
func (t *ScoreThreshold) Store(v float64) {
	t.bits.Store(math.Float64bits(ClampThreshold(v)))
}
