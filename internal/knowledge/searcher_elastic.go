package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/solarisops/assistant-go/internal/config"
)

// ElasticsearchSearcher 基于ES的词法检索
// 索引由文档摄取服务创建和写入，这里只读
type ElasticsearchSearcher struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchSearcher 创建ES检索器
func NewElasticsearchSearcher(cfg *config.ElasticsearchConfig) (LexicalSearcher, error) {
	if len(cfg.Addresses) == 0 {
		return &NoopLexicalSearcher{}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	index := cfg.Index
	if index == "" {
		index = "manual_chunks"
	}

	return &ElasticsearchSearcher{
		client: client,
		index:  index,
	}, nil
}

func (e *ElasticsearchSearcher) Search(ctx context.Context, req LexicalSearchRequest) ([]SearchHit, error) {
	if e.client == nil {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	// 优先使用 match_phrase 精确短语匹配，配合 match 模糊匹配兜底
	// 使用 should 子句，match_phrase 的 boost 更高，优先匹配
	boolQuery := map[string]interface{}{
		"should": []interface{}{
			// 精确短语匹配（优先级最高）
			map[string]interface{}{
				"match_phrase": map[string]interface{}{
					"content": map[string]interface{}{
						"query": req.Query,
						"boost": 3.0,
					},
				},
			},
			// 模糊关键词匹配，容忍拼写偏差
			map[string]interface{}{
				"match": map[string]interface{}{
					"content": map[string]interface{}{
						"query":     req.Query,
						"fuzziness": "AUTO",
						"boost":     1.0,
					},
				},
			},
		},
		"minimum_should_match": 1,
	}

	// 元数据前置过滤，在打分前收窄候选集
	var filters []interface{}
	if req.Filters.EquipmentModel != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{
				"equipment_model": req.Filters.EquipmentModel,
			},
		})
	}
	if req.Filters.ContentCategory != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{
				"content_category": req.Filters.ContentCategory,
			},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]interface{}{
		"size": req.Limit,
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawHits, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]SearchHit, 0, len(rawHits))
	for _, raw := range rawHits {
		hit := raw.(map[string]interface{})
		score, _ := hit["_score"].(float64)
		doc, ok := hit["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		chunkID, _ := doc["chunk_id"].(string)
		if chunkID == "" {
			chunkID, _ = hit["_id"].(string)
		}
		source, _ := doc["source"].(string)
		pageSection, _ := doc["page_section"].(string)
		content, _ := doc["content"].(string)
		equipmentModel, _ := doc["equipment_model"].(string)
		contentCategory, _ := doc["content_category"].(string)
		chunkIndex := 0
		if v, ok := doc["chunk_index"].(float64); ok {
			chunkIndex = int(v)
		}

		matches = append(matches, SearchHit{
			ChunkID:         chunkID,
			Source:          source,
			PageSection:     pageSection,
			ChunkIndex:      chunkIndex,
			EquipmentModel:  equipmentModel,
			ContentCategory: contentCategory,
			Content:         content,
			Score:           score,
			Method:          MethodLexical,
		})
	}

	return matches, nil
}

func (e *ElasticsearchSearcher) Ready() bool {
	return e.client != nil
}

// NoopLexicalSearcher 默认占位实现
type NoopLexicalSearcher struct{}

func (n *NoopLexicalSearcher) Search(ctx context.Context, req LexicalSearchRequest) ([]SearchHit, error) {
	return nil, nil
}

func (n *NoopLexicalSearcher) Ready() bool {
	return false
}
