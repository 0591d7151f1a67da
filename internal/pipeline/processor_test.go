package pipeline

import (
	"bytes"
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/llm"
	"doc-organizer-go/pkg/tasks"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeDocRepo 只实现流水线用到的方法，其余方法调用会 panic。
type fakeDocRepo struct {
	repository.DocumentRepository
	docs     map[uint]*model.Document
	statuses []model.ProcessingStatus
	updated  *model.Document
}

func (r *fakeDocRepo) FindByID(_ context.Context, id uint) (*model.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) UpdateStatus(_ context.Context, _ uint, status model.ProcessingStatus) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeDocRepo) Update(_ context.Context, doc *model.Document) error {
	cp := *doc
	r.updated = &cp
	return nil
}

type fakeObjects map[string][]byte

func (o fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := o[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (e *fakeExtractor) Enabled() bool { return true }

func (e *fakeExtractor) ExtractText(_ context.Context, _ io.Reader, _ string) (string, error) {
	e.calls++
	return e.text, e.err
}

type fakeLLM struct {
	insight *llm.Insight
	err     error
}

func (f *fakeLLM) AnalyzeDocument(_ context.Context, _, _ string) (*llm.Insight, error) {
	return f.insight, f.err
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) ModelVersion() string { return "test-embed" }

type fakeIndexer struct {
	entries []model.DocumentIndexEntry
	err     error
}

func (i *fakeIndexer) Enabled() bool { return true }

func (i *fakeIndexer) IndexDocument(_ context.Context, doc model.DocumentIndexEntry) error {
	if i.err != nil {
		return i.err
	}
	i.entries = append(i.entries, doc)
	return nil
}

type fakeNotifier struct {
	sent []model.Notification
}

func (n *fakeNotifier) Publish(_ context.Context, _ uint, msg model.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

func newDoc() *model.Document {
	return &model.Document{
		ID:                 7,
		UserID:             1,
		OriginalFilename:   "scan_0042.pdf",
		ObjectKey:          "users/1/abc.pdf",
		Category:           "other",
		CategoryConfidence: 0,
		UploadDate:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ProcessingStatus:   model.StatusPending,
	}
}

type processorHarness struct {
	p         *Processor
	repo      *fakeDocRepo
	extractor *fakeExtractor
	indexer   *fakeIndexer
	notifier  *fakeNotifier
}

func newHarness(doc *model.Document, llmClient llm.Client, embedder *fakeEmbedder) *processorHarness {
	h := &processorHarness{
		repo:      &fakeDocRepo{docs: map[uint]*model.Document{doc.ID: doc}},
		extractor: &fakeExtractor{text: "Invoice number 1234. Amount due for electricity bill."},
		indexer:   &fakeIndexer{},
		notifier:  &fakeNotifier{},
	}
	objects := fakeObjects{doc.ObjectKey: []byte("%PDF-1.4")}
	if embedder == nil {
		h.p = NewProcessor(h.repo, objects, h.extractor, llmClient, nil, h.indexer, h.notifier)
	} else {
		h.p = NewProcessor(h.repo, objects, h.extractor, llmClient, embedder, h.indexer, h.notifier)
	}
	return h
}

func TestProcess_FullPipeline(t *testing.T) {
	insight := &llm.Insight{Summary: "Electricity invoice", Keywords: []string{"electricity", "invoice"}, Intent: "pay utility bill"}
	h := newHarness(newDoc(), &fakeLLM{insight: insight}, &fakeEmbedder{})

	require.NoError(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7}))

	require.NotNil(t, h.repo.updated)
	assert.Equal(t, "invoice", h.repo.updated.Category)
	assert.Greater(t, h.repo.updated.CategoryConfidence, 0.0)
	assert.Equal(t, "Electricity invoice", h.repo.updated.Summary)
	assert.Equal(t, []model.ProcessingStatus{model.StatusProcessing, model.StatusCompleted}, h.repo.statuses)

	require.Len(t, h.indexer.entries, 1)
	entry := h.indexer.entries[0]
	assert.Equal(t, uint(7), entry.DocumentID)
	assert.Equal(t, "pay utility bill", entry.DetectedIntent)
	assert.Equal(t, []float32{0.1, 0.2}, entry.Vector)
	assert.Equal(t, "test-embed", entry.ModelVersion)

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, model.NotificationDocumentProcessed, h.notifier.sent[0].Type)
}

func TestProcess_OptionalStepsFailSoft(t *testing.T) {
	h := newHarness(newDoc(), &fakeLLM{err: errors.New("quota")}, &fakeEmbedder{err: errors.New("timeout")})

	require.NoError(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7}))

	require.Len(t, h.indexer.entries, 1)
	assert.Nil(t, h.indexer.entries[0].Vector)
	assert.Empty(t, h.indexer.entries[0].Summary)
}

func TestProcess_UserCategoryIsKept(t *testing.T) {
	doc := newDoc()
	doc.Category = "medical"
	doc.CategoryConfidence = 1
	h := newHarness(doc, nil, nil)

	require.NoError(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7}))
	assert.Equal(t, "medical", h.repo.updated.Category)
}

func TestProcess_ExtractionFailureMarksFailed(t *testing.T) {
	h := newHarness(newDoc(), nil, nil)
	h.extractor.err = errors.New("tika down")

	err := h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7})
	require.Error(t, err)

	assert.Equal(t, []model.ProcessingStatus{model.StatusProcessing, model.StatusFailed}, h.repo.statuses)
	assert.Empty(t, h.indexer.entries)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, model.NotificationDocumentFailed, h.notifier.sent[0].Type)
}

func TestProcess_IndexFailureReturnsError(t *testing.T) {
	h := newHarness(newDoc(), nil, nil)
	h.indexer.err = errors.New("es unavailable")

	assert.Error(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7}))
	assert.Nil(t, h.repo.updated)
}

func TestProcess_ReindexReusesText(t *testing.T) {
	doc := newDoc()
	doc.ExtractedText = "Warranty card for dishwasher"
	h := newHarness(doc, nil, nil)

	require.NoError(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 7, Reindex: true}))

	assert.Equal(t, 0, h.extractor.calls)
	require.Len(t, h.indexer.entries, 1)
	assert.Equal(t, "Warranty card for dishwasher", h.indexer.entries[0].ExtractedText)
	assert.Equal(t, "warranty", h.indexer.entries[0].Category)
}

func TestProcess_DeletedDocumentIsSkipped(t *testing.T) {
	h := newHarness(newDoc(), nil, nil)

	require.NoError(t, h.p.Process(context.Background(), tasks.DocumentProcessingTask{DocumentID: 404}))
	assert.Empty(t, h.repo.statuses)
	assert.Empty(t, h.notifier.sent)
}

func TestEmbeddingInput_Truncates(t *testing.T) {
	doc := &model.Document{OriginalFilename: "a.txt", ExtractedText: string(bytes.Repeat([]byte("x"), maxEmbeddingChars*2))}
	assert.Len(t, []rune(embeddingInput(doc)), maxEmbeddingChars)
}
