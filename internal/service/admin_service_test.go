package service

import (
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/pkg/es"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	enabled bool
	pingErr error
	stats   *es.IndexStats
}

func (f *fakeInspector) Enabled() bool                                  { return f.enabled }
func (f *fakeInspector) Ping(_ context.Context) error                   { return f.pingErr }
func (f *fakeInspector) Stats(_ context.Context) (*es.IndexStats, error) { return f.stats, nil }

type fakeNotifier struct {
	sent map[uint][]model.Notification
}

func (n *fakeNotifier) Publish(_ context.Context, userID uint, msg model.Notification) error {
	if n.sent == nil {
		n.sent = make(map[uint][]model.Notification)
	}
	n.sent[userID] = append(n.sent[userID], msg)
	return nil
}

func adminFixture() *fakeDocumentRepo {
	docs := searchFixture()
	for i := range docs {
		docs[i].ProcessingStatus = model.StatusCompleted
	}
	docs[4].ProcessingStatus = model.StatusFailed
	return &fakeDocumentRepo{docs: docs}
}

func TestSearchStatus_AllUp(t *testing.T) {
	inspector := &fakeInspector{enabled: true, stats: &es.IndexStats{Index: "documents", DocumentCount: 4, StoreBytes: 2048}}
	up := func(context.Context) error { return nil }
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), inspector, &fakeSemantic{configured: true}, &fakeProducer{}, nil, NewScoreThreshold(0.7), up, up)

	status := svc.SearchStatus(context.Background())

	assert.Equal(t, "up", status.Database.Status)
	assert.Equal(t, "up", status.Redis.Status)
	assert.Equal(t, "up", status.Elasticsearch.Status)
	require.NotNil(t, status.Index)
	assert.Equal(t, int64(4), status.Index.DocumentCount)
	assert.True(t, status.SemanticConfigured)
	assert.Equal(t, 0.7, status.MinScore)
	assert.Equal(t, int64(4), status.Documents[model.StatusCompleted])
	assert.Equal(t, int64(1), status.Documents[model.StatusFailed])
}

func TestSearchStatus_PartialOutage(t *testing.T) {
	inspector := &fakeInspector{enabled: true, pingErr: errors.New("connection refused")}
	down := func(context.Context) error { return errors.New("dial tcp: timeout") }
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), inspector, nil, &fakeProducer{}, nil, NewScoreThreshold(0.5), nil, down)

	status := svc.SearchStatus(context.Background())

	assert.Equal(t, "disabled", status.Database.Status)
	assert.Equal(t, "down", status.Redis.Status)
	assert.Equal(t, "dial tcp: timeout", status.Redis.Error)
	assert.Equal(t, "down", status.Elasticsearch.Status)
	assert.Nil(t, status.Index)
	assert.False(t, status.SemanticConfigured)
}

func TestSearchStatus_IndexDisabled(t *testing.T) {
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), &fakeInspector{}, nil, &fakeProducer{}, nil, NewScoreThreshold(0.5), nil, nil)
	assert.Equal(t, "disabled", svc.SearchStatus(context.Background()).Elasticsearch.Status)
}

func TestReindex_QueuesCompletedDocuments(t *testing.T) {
	producer := &fakeProducer{}
	notifier := &fakeNotifier{}
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), &fakeInspector{enabled: true}, nil, producer, notifier, NewScoreThreshold(0.5), nil, nil)
	admin := &model.User{ID: 42, Username: "root", Role: model.RoleAdmin}

	result, err := svc.Reindex(context.Background(), admin)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Queued)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, producer.tasks, 4)
	for _, task := range producer.tasks {
		assert.True(t, task.Reindex)
		assert.NotEqual(t, uint(5), task.DocumentID)
	}
	require.Len(t, notifier.sent[42], 1)
	assert.Equal(t, model.NotificationReindexQueued, notifier.sent[42][0].Type)
}

func TestReindex_CountsProduceFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), &fakeInspector{enabled: true}, nil, producer, nil, NewScoreThreshold(0.5), nil, nil)

	result, err := svc.Reindex(context.Background(), &model.User{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Queued)
	assert.Equal(t, 4, result.Failed)
}

func TestReindex_RequiresIndex(t *testing.T) {
	svc := NewAdminService(&fakeUserRepo{}, adminFixture(), &fakeInspector{}, nil, &fakeProducer{}, nil, NewScoreThreshold(0.5), nil, nil)

	_, err := svc.Reindex(context.Background(), &model.User{ID: 1})
	assert.ErrorIs(t, err, ErrIndexNotConfigured)
}

func TestListUsers(t *testing.T) {
	repo := &fakeUserRepo{}
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, repo.Create(&model.User{Username: name, Role: model.RoleUser}))
	}
	svc := NewAdminService(repo, adminFixture(), nil, nil, &fakeProducer{}, nil, NewScoreThreshold(0.5), nil, nil)

	resp, err := svc.ListUsers(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalElements)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "carol", resp.Content[0].Username)

	resp, err = svc.ListUsers(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Number)
	assert.Equal(t, 20, resp.Size)
	assert.Len(t, resp.Content, 3)
}
