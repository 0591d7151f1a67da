// Package es 提供了与 Elasticsearch 交互的客户端功能：索引管理、文档写入以及托管语义检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/pkg/log"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESClient 是全局客户端，未配置 addresses 时为 nil。
var ESClient *elasticsearch.Client

// ErrNotConfigured 表示 Elasticsearch 未配置。
var ErrNotConfigured = errors.New("elasticsearch is not configured")

// NewClient 根据配置创建客户端，不发起任何请求。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	addresses := splitAddresses(esCfg.Addresses)
	if len(addresses) == 0 {
		return nil, ErrNotConfigured
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	}
	if esCfg.InsecureSkipTLS {
		cfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return elasticsearch.NewClient(cfg)
}

// InitES 初始化全局 Elasticsearch 客户端并确保索引存在。
// 未配置 addresses 时只记录日志，搜索将直接使用本地检索。
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := NewClient(esCfg)
	if errors.Is(err, ErrNotConfigured) {
		log.Warnf("Elasticsearch 未配置, 搜索将只使用本地检索")
		return nil
	}
	if err != nil {
		return err
	}
	ESClient = client
	if esCfg.IndexName == "" {
		log.Warnf("Elasticsearch 未配置 index_name, 搜索将只使用本地检索")
		return nil
	}
	return EnsureIndex(context.Background(), client, esCfg.IndexName, esCfg.VectorDims)
}

func splitAddresses(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// IndexMapping 返回文档索引的 mapping，dims <= 0 时不包含向量字段。
func IndexMapping(dims int) string {
	vector := ""
	if dims > 0 {
		vector = fmt.Sprintf(`,
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}`, dims)
	}
	return `{
		"mappings": {
			"properties": {
				"document_id": { "type": "long" },
				"user_id": { "type": "long" },
				"original_filename": {
					"type": "text",
					"fields": { "keyword": { "type": "keyword", "ignore_above": 256 } }
				},
				"category": { "type": "keyword" },
				"extracted_text": { "type": "text" },
				"detected_intent": { "type": "text" },
				"summary": { "type": "text" },
				"keywords": { "type": "keyword" },
				"upload_date": { "type": "date" },
				"model_version": { "type": "keyword" }` + vector + `
			}
		}
	}`
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(IndexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexStats 是索引的基本统计信息。
type IndexStats struct {
	Index         string `json:"index"`
	DocumentCount int64  `json:"document_count"`
	StoreBytes    int64  `json:"store_size_bytes"`
}

// Indexer 负责单个索引内文档的写入、删除与统计。
type Indexer struct {
	client *elasticsearch.Client
	index  string
}

// NewIndexer 创建 Indexer，client 为 nil 时所有写操作返回 ErrNotConfigured。
func NewIndexer(client *elasticsearch.Client, index string) *Indexer {
	return &Indexer{client: client, index: index}
}

// Enabled 判断是否已配置可用的索引。
func (i *Indexer) Enabled() bool {
	return i != nil && i.client != nil && i.index != ""
}

// IndexDocument 写入（或覆盖）单个文档。
func (i *Indexer) IndexDocument(ctx context.Context, doc model.DocumentIndexEntry) error {
	if !i.Enabled() {
		return ErrNotConfigured
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: strconv.FormatUint(uint64(doc.DocumentID), 10),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index document %d: %s", doc.DocumentID, res.Status())
	}
	return nil
}

// DeleteDocument 删除单个文档，文档不存在时视为成功。
func (i *Indexer) DeleteDocument(ctx context.Context, documentID uint) error {
	if !i.Enabled() {
		return ErrNotConfigured
	}
	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: strconv.FormatUint(uint64(documentID), 10),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete document %d: %s", documentID, res.Status())
	}
	return nil
}

// DeleteByUser 删除某个用户的全部索引文档。
func (i *Indexer) DeleteByUser(ctx context.Context, userID uint) error {
	if !i.Enabled() {
		return ErrNotConfigured
	}
	body := fmt.Sprintf(`{"query":{"term":{"user_id":%d}}}`, userID)
	res, err := i.client.DeleteByQuery(
		[]string{i.index},
		strings.NewReader(body),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to delete documents of user %d: %s", userID, res.Status())
	}
	return nil
}

// Ping 检查集群连通性。
func (i *Indexer) Ping(ctx context.Context) error {
	if i == nil || i.client == nil {
		return ErrNotConfigured
	}
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// Stats 返回索引的文档数与存储大小。
func (i *Indexer) Stats(ctx context.Context) (*IndexStats, error) {
	if !i.Enabled() {
		return nil, ErrNotConfigured
	}
	res, err := i.client.Indices.Stats(
		i.client.Indices.Stats.WithContext(ctx),
		i.client.Indices.Stats.WithIndex(i.index),
		i.client.Indices.Stats.WithMetric("docs", "store"),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("failed to read index stats: %s %s", res.Status(), raw)
	}

	var parsed struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode index stats: %w", err)
	}
	return &IndexStats{
		Index:         i.index,
		DocumentCount: parsed.All.Primaries.Docs.Count,
		StoreBytes:    parsed.All.Primaries.Store.SizeInBytes,
	}, nil
}
