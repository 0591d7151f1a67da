package es

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexMapping(t *testing.T) {
	var withVector map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(IndexMapping(1536)), &withVector))
	props := withVector["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vector := props["vector"].(map[string]interface{})
	assert.Equal(t, "dense_vector", vector["type"])
	assert.EqualValues(t, 1536, vector["dims"])
	assert.Equal(t, "keyword", props["category"].(map[string]interface{})["type"])

	var withoutVector map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(IndexMapping(0)), &withoutVector))
	props = withoutVector["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.NotContains(t, props, "vector")
}

func TestNewClient_RequiresAddresses(t *testing.T) {
	_, err := NewClient(config.ElasticsearchConfig{Addresses: " , "})
	assert.ErrorIs(t, err, ErrNotConfigured)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: "http://a:9200, http://b:9200"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestIndexer_Disabled(t *testing.T) {
	idx := NewIndexer(nil, testIndex)
	assert.False(t, idx.Enabled())
	assert.ErrorIs(t, idx.IndexDocument(context.Background(), model.DocumentIndexEntry{DocumentID: 1}), ErrNotConfigured)
	assert.ErrorIs(t, idx.DeleteDocument(context.Background(), 1), ErrNotConfigured)
	assert.ErrorIs(t, idx.Ping(context.Background()), ErrNotConfigured)
	_, err := idx.Stats(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestIndexer_IndexDocument(t *testing.T) {
	fc := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"result":"created"}`)
	})
	idx := NewIndexer(newTestESClient(t, fc.server.URL), testIndex)

	err := idx.IndexDocument(context.Background(), model.DocumentIndexEntry{
		DocumentID:       42,
		UserID:           7,
		OriginalFilename: "warranty.pdf",
		Category:         "Warranty",
	})
	require.NoError(t, err)

	req := fc.lastRequest(t)
	assert.Equal(t, "/"+testIndex+"/_doc/42", req.Path)
	assert.EqualValues(t, 42, req.Body["document_id"])
	assert.Equal(t, "Warranty", req.Body["category"])
}

func TestIndexer_DeleteMissingDocumentIsOK(t *testing.T) {
	fc := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"result":"not_found"}`)
	})
	idx := NewIndexer(newTestESClient(t, fc.server.URL), testIndex)

	assert.NoError(t, idx.DeleteDocument(context.Background(), 5))
}

func TestIndexer_Stats(t *testing.T) {
	fc := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"_all":{"primaries":{"docs":{"count":12},"store":{"size_in_bytes":2048}}}}`)
	})
	idx := NewIndexer(newTestESClient(t, fc.server.URL), testIndex)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.DocumentCount)
	assert.Equal(t, int64(2048), stats.StoreBytes)
	assert.Equal(t, testIndex, stats.Index)
}
