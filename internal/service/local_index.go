package service

import (
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// synonyms 扩展常见查询词，提高本地检索的召回。
var synonyms = map[string][]string{
	"health":   {"medical", "doctor", "clinic", "hospital", "prescription"},
	"medical":  {"health", "doctor", "physician", "clinic", "hospital"},
	"bill":     {"invoice", "receipt", "statement", "charge"},
	"bills":    {"invoices", "receipts", "statements", "charges"},
	"receipt":  {"bill", "invoice", "purchase"},
	"document": {"file", "paper", "record"},
	"related":  {"related", "reated"},
}

// LocalIndex 是本地文本检索，作为托管检索不可用时的最终兜底。
type LocalIndex interface {
	Search(ctx context.Context, q model.LocalQuery) (model.LocalPage, error)
}

type localIndex struct {
	docRepo repository.DocumentRepository
}

// NewLocalIndex 创建基于文档表的本地检索。
func NewLocalIndex(docRepo repository.DocumentRepository) LocalIndex {
	return &localIndex{docRepo: docRepo}
}

// Search 加载该用户（可选分类）下的文档并在内存中匹配。
func (l *localIndex) Search(ctx context.Context, q model.LocalQuery) (model.LocalPage, error) {
	if strings.TrimSpace(q.Text) == "" {
		return model.LocalPage{}, ErrEmptyQuery
	}
	if q.Limit <= 0 || q.Offset < 0 {
		return model.LocalPage{}, ErrInvalidPagination
	}
	corpus, err := l.docRepo.ListForLocalSearch(ctx, q.UserID, q.Category)
	if err != nil {
		return model.LocalPage{}, fmt.Errorf("加载本地检索语料失败: %w", err)
	}
	return MatchDocuments(corpus, q), nil
}

// ExpandTerms 拆分查询并追加同义词，去重后保持出现顺序。
func ExpandTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	add := func(t string) {
		if _, ok := seen[t]; ok || t == "" {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		add(word)
		for _, syn := range synonyms[word] {
			add(syn)
		}
	}
	return terms
}

// MatchDocuments 对给定语料做不区分大小写的子串匹配，任一词命中即算匹配。
// 排序：文件名包含完整查询优先，其次分类包含首个查询词，最后按上传时间倒序。
func MatchDocuments(corpus []model.Document, q model.LocalQuery) model.LocalPage {
	terms := ExpandTerms(q.Text)
	if len(terms) == 0 {
		return model.LocalPage{Documents: []model.Document{}}
	}
	category := strings.ToLower(q.Category)

	var matched []model.Document
	for _, doc := range corpus {
		if category != "" && strings.ToLower(doc.Category) != category {
			continue
		}
		if documentMatches(doc, terms) {
			matched = append(matched, doc)
		}
	}

	fullQuery := strings.ToLower(strings.TrimSpace(q.Text))
	firstTerm := terms[0]
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		aName := strings.Contains(strings.ToLower(a.OriginalFilename), fullQuery)
		bName := strings.Contains(strings.ToLower(b.OriginalFilename), fullQuery)
		if aName != bName {
			return aName
		}
		aCat := strings.Contains(strings.ToLower(a.Category), firstTerm)
		bCat := strings.Contains(strings.ToLower(b.Category), firstTerm)
		if aCat != bCat {
			return aCat
		}
		return a.UploadDate.After(b.UploadDate)
	})

	total := len(matched)
	start := min(q.Offset, total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	page := make([]model.Document, end-start)
	copy(page, matched[start:end])
	return model.LocalPage{Documents: page, Total: total}
}

func documentMatches(doc model.Document, terms []string) bool {
	filename := strings.ToLower(doc.OriginalFilename)
	text := strings.ToLower(doc.ExtractedText)
	category := strings.ToLower(doc.Category)
	intent := strings.ToLower(doc.DetectedIntent)
	summary := strings.ToLower(doc.Summary)

	for _, term := range terms {
		if strings.Contains(filename, term) || strings.Contains(text, term) ||
			strings.Contains(category, term) || strings.Contains(intent, term) ||
			strings.Contains(summary, term) {
			return true
		}
		// 去掉最后一个字符做粗略的词干匹配，如 invoices -> invoice
		if utf8.RuneCountInString(term) > 3 {
			_, size := utf8.DecodeLastRuneInString(term)
			stem := term[:len(term)-size]
			if strings.Contains(filename, stem) || strings.Contains(text, stem) || strings.Contains(category, stem) {
				return true
			}
		}
	}
	return false
}
