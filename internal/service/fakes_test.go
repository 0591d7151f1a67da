package service

import (
	"context"
	"doc-organizer-go/internal/model"
	"sync"

	"gorm.io/gorm"
)

// fakeDocumentRepo 是内存中的 DocumentRepository。
type fakeDocumentRepo struct {
	mu         sync.Mutex
	docs       []model.Document
	nextID     uint
	localCalls int
	localErr   error
	findErr    error
	statuses   map[uint][]model.ProcessingStatus
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID + 1000
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *fakeDocumentRepo) Update(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.docs {
		if r.docs[i].ID == doc.ID {
			r.docs[i] = *doc
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) UpdateStatus(_ context.Context, id uint, status model.ProcessingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses == nil {
		r.statuses = make(map[uint][]model.ProcessingStatus)
	}
	r.statuses[id] = append(r.statuses[id], status)
	for i := range r.docs {
		if r.docs[i].ID == id {
			r.docs[i].ProcessingStatus = status
		}
	}
	return nil
}

func (r *fakeDocumentRepo) FindByID(_ context.Context, id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) FindByIDForUser(_ context.Context, userID, id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id && d.UserID == userID {
			doc := d
			return &doc, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) FindByIDsForUser(_ context.Context, userID uint, ids []uint) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Document
	for _, d := range r.docs {
		if want[d.ID] && d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListByUser(_ context.Context, userID uint, category string, offset, limit int) ([]model.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Document
	for _, d := range r.docs {
		if d.UserID == userID && (category == "" || d.Category == category) {
			all = append(all, d)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []model.Document{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (r *fakeDocumentRepo) ListForLocalSearch(_ context.Context, userID uint, category string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localCalls++
	if r.localErr != nil {
		return nil, r.localErr
	}
	var out []model.Document
	for _, d := range r.docs {
		if d.UserID == userID && (category == "" || d.Category == category) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListByStatus(_ context.Context, status model.ProcessingStatus) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.ProcessingStatus == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) CountByStatus(_ context.Context) (map[model.ProcessingStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.ProcessingStatus]int64)
	for _, d := range r.docs {
		counts[d.ProcessingStatus]++
	}
	return counts, nil
}

func (r *fakeDocumentRepo) CategoryCounts(_ context.Context, userID uint) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, d := range r.docs {
		if d.UserID == userID {
			counts[d.Category]++
		}
	}
	return counts, nil
}

func (r *fakeDocumentRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.docs {
		if r.docs[i].ID == id {
			r.docs = append(r.docs[:i], r.docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeDocumentRepo) DeleteByUser(_ context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.docs[:0]
	var n int64
	for _, d := range r.docs {
		if d.UserID == userID {
			n++
			continue
		}
		kept = append(kept, d)
	}
	r.docs = kept
	return n, nil
}

// fakeSearchLogRepo 记录写入的搜索历史。
type fakeSearchLogRepo struct {
	mu        sync.Mutex
	entries   []model.SearchQueryLog
	createErr error
	popular   []model.PopularSearch
	lastLimit int
	// block 非空时 Create 等待其关闭
	block chan struct{}
}

func (r *fakeSearchLogRepo) Create(_ context.Context, entry *model.SearchQueryLog) error {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeSearchLogRepo) ListRecent(_ context.Context, userID uint, limit int) ([]model.SearchQueryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []model.SearchQueryLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *fakeSearchLogRepo) DeleteByUser(_ context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (r *fakeSearchLogRepo) Popular(_ context.Context, limit int) ([]model.PopularSearch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	if len(r.popular) > limit {
		return r.popular[:limit], nil
	}
	return r.popular, nil
}

func (r *fakeSearchLogRepo) snapshot() []model.SearchQueryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SearchQueryLog, len(r.entries))
	copy(out, r.entries)
	return out
}

// fakeSemantic 按模式返回预设结果，并记录每次调用。
type fakeSemantic struct {
	mu         sync.Mutex
	configured bool
	outcomes   map[model.SearchMode]model.SemanticOutcome
	handler    func(ctx context.Context, req model.SemanticRequest) model.SemanticOutcome
	calls      []model.SemanticRequest
}

func (f *fakeSemantic) Configured() bool { return f.configured }

func (f *fakeSemantic) Search(ctx context.Context, req model.SemanticRequest) model.SemanticOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	handler := f.handler
	out, ok := f.outcomes[req.Mode]
	f.mu.Unlock()
	if handler != nil {
		return handler(ctx, req)
	}
	if !ok {
		return model.SemanticOutcome{Kind: model.OutcomeUnavailable}
	}
	return out
}

func (f *fakeSemantic) callModes() []model.SearchMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	modes := make([]model.SearchMode, 0, len(f.calls))
	for _, c := range f.calls {
		modes = append(modes, c.Mode)
	}
	return modes
}
