package model

import "time"

// SearchQueryLog 定义了 search_query_logs 表，每次成功完成的搜索请求写入一条。
type SearchQueryLog struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	QueryText       string     `gorm:"type:varchar(512);index;not null" json:"query"`
	Timestamp       time.Time  `gorm:"index;not null" json:"timestamp"`
	ResultsCount    int        `gorm:"not null" json:"results_count"`
	SearchType      SearchMode `gorm:"type:varchar(16);not null" json:"search_type"`
	ExecutionTimeMs int64      `gorm:"not null" json:"execution_time_ms"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SearchQueryLog) TableName() string {
	return "search_query_logs"
}

// PopularSearch 是按查询文本聚合后的热门搜索。
type PopularSearch struct {
	Query              string  `json:"query"`
	SearchCount        int64   `json:"search_count"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// SearchHistoryItem 是返回给前端的单条搜索历史。
type SearchHistoryItem struct {
	Query           string     `json:"query"`
	Timestamp       LocalTime  `json:"timestamp"`
	ResultsCount    int        `json:"results_count"`
	SearchType      SearchMode `json:"search_type"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}
