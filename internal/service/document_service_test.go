package service

import (
	"bytes"
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/pkg/tasks"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	putErr  error
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = b
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *fakeStore) PresignedGet(_ context.Context, key, filename string, _ time.Duration) (string, error) {
	return "https://minio.local/" + key + "?name=" + filename, nil
}

type fakeIndexer struct {
	enabled      bool
	indexed      []model.DocumentIndexEntry
	deleted      []uint
	deletedUsers []uint
	indexErr     error
}

func (i *fakeIndexer) Enabled() bool { return i.enabled }

func (i *fakeIndexer) IndexDocument(_ context.Context, doc model.DocumentIndexEntry) error {
	if i.indexErr != nil {
		return i.indexErr
	}
	i.indexed = append(i.indexed, doc)
	return nil
}

func (i *fakeIndexer) DeleteDocument(_ context.Context, id uint) error {
	i.deleted = append(i.deleted, id)
	return nil
}

func (i *fakeIndexer) DeleteByUser(_ context.Context, userID uint) error {
	i.deletedUsers = append(i.deletedUsers, userID)
	return nil
}

type fakeProducer struct {
	tasks []tasks.DocumentProcessingTask
	err   error
}

func (p *fakeProducer) Produce(_ context.Context, task tasks.DocumentProcessingTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type documentHarness struct {
	svc      DocumentService
	docs     *fakeDocumentRepo
	store    *fakeStore
	indexer  *fakeIndexer
	producer *fakeProducer
}

func newDocumentHarness() *documentHarness {
	h := &documentHarness{
		docs:     &fakeDocumentRepo{docs: searchFixture()},
		store:    &fakeStore{},
		indexer:  &fakeIndexer{enabled: true},
		producer: &fakeProducer{},
	}
	for i := range h.docs.docs {
		h.docs.docs[i].ObjectKey = "users/key-" + h.docs.docs[i].OriginalFilename
	}
	h.svc = NewDocumentService(h.docs, h.store, h.indexer, h.producer, config.UploadConfig{
		MaxFileSizeMB:     1,
		AllowedExtensions: []string{".pdf", ".png", ".txt"},
	})
	return h
}

func upload(name, body, cat string) UploadRequest {
	return UploadRequest{Filename: name, Size: int64(len(body)), ContentType: "application/pdf", Category: cat, Body: strings.NewReader(body)}
}

func TestUpload_AutoCategorizesAndQueuesTask(t *testing.T) {
	h := newDocumentHarness()
	user := &model.User{ID: testUser}

	doc, err := h.svc.Upload(context.Background(), user, upload("electric_bill_invoice.pdf", "%PDF", ""))
	require.NoError(t, err)

	assert.Equal(t, "invoice", doc.Category)
	assert.Greater(t, doc.CategoryConfidence, 0.0)
	assert.Equal(t, model.StatusPending, doc.ProcessingStatus)
	assert.Contains(t, h.store.objects, doc.ObjectKey)
	require.Len(t, h.producer.tasks, 1)
	task := h.producer.tasks[0]
	assert.Equal(t, doc.ID, task.DocumentID)
	assert.Equal(t, doc.ObjectKey, task.ObjectKey)
	assert.False(t, task.Reindex)
}

func TestUpload_ExplicitCategory(t *testing.T) {
	h := newDocumentHarness()

	doc, err := h.svc.Upload(context.Background(), &model.User{ID: testUser}, upload("scan.png", "img", "Health"))
	require.NoError(t, err)
	assert.Equal(t, "medical", doc.Category)
	assert.Equal(t, 1.0, doc.CategoryConfidence)

	_, err = h.svc.Upload(context.Background(), &model.User{ID: testUser}, upload("scan.png", "img", "spaceships"))
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestUpload_Validation(t *testing.T) {
	h := newDocumentHarness()
	user := &model.User{ID: testUser}

	_, err := h.svc.Upload(context.Background(), user, upload("virus.exe", "MZ", ""))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = h.svc.Upload(context.Background(), user, upload("empty.txt", "", ""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	big := UploadRequest{Filename: "big.pdf", Size: 2 << 20, Body: strings.NewReader("x")}
	_, err = h.svc.Upload(context.Background(), user, big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Empty(t, h.store.objects)
	assert.Empty(t, h.producer.tasks)
}

func TestUpload_QueueFailureMarksFailed(t *testing.T) {
	h := newDocumentHarness()
	h.producer.err = errors.New("broker down")

	doc, err := h.svc.Upload(context.Background(), &model.User{ID: testUser}, upload("a.txt", "hello", ""))
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.ProcessingStatus)
}

func TestGetAndDownload_EnforceOwnership(t *testing.T) {
	h := newDocumentHarness()

	_, err := h.svc.Get(context.Background(), testUser, 5)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	info, err := h.svc.GenerateDownloadURL(context.Background(), testUser, 1)
	require.NoError(t, err)
	assert.Equal(t, "dishwasher_warranty.pdf", info.FileName)
	assert.Contains(t, info.DownloadURL, "users/key-dishwasher_warranty.pdf")
	assert.Equal(t, int64(3600), info.ExpiresIn)

	preview, err := h.svc.Preview(context.Background(), testUser, 1)
	require.NoError(t, err)
	assert.Equal(t, "Two year warranty card", preview.Content)
}

func TestList(t *testing.T) {
	h := newDocumentHarness()

	page, err := h.svc.List(context.Background(), testUser, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, 20, page.Limit)

	page, err = h.svc.List(context.Background(), testUser, "Insurance", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = h.svc.List(context.Background(), testUser, "", 500, 0)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestDelete(t *testing.T) {
	h := newDocumentHarness()

	require.NoError(t, h.svc.Delete(context.Background(), testUser, 3))

	assert.Equal(t, []string{"users/key-policy.pdf"}, h.store.removed)
	assert.Equal(t, []uint{3}, h.indexer.deleted)
	_, err := h.svc.Get(context.Background(), testUser, 3)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, h.svc.Delete(context.Background(), testUser, 5), ErrDocumentNotFound, "other user's document")
}

func TestCategories(t *testing.T) {
	h := newDocumentHarness()

	cats, err := h.svc.Categories(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, cats, 18)
	counts := map[string]int64{}
	for _, c := range cats {
		counts[c.Name] = c.DocumentCount
	}
	assert.Equal(t, int64(1), counts["warranty"])
	assert.Equal(t, int64(0), counts["tax"])
}

func TestPurgeUser(t *testing.T) {
	h := newDocumentHarness()

	require.NoError(t, h.svc.PurgeUser(context.Background(), testUser))

	assert.Len(t, h.store.removed, 4)
	assert.Equal(t, []uint{testUser}, h.indexer.deletedUsers)
	remaining, err := h.docs.ListForLocalSearch(context.Background(), 99, "")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	mine, err := h.docs.ListForLocalSearch(context.Background(), testUser, "")
	require.NoError(t, err)
	assert.Empty(t, mine)
}
