package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/solarisops/assistant-go/internal/config"
)

// milvusVectorStore Milvus语义检索实现
// 集合由文档摄取服务创建和写入，主键为chunk_id（VarChar），这里只读
type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(cfg *config.MilvusConfig) (VectorStore, error) {
	if cfg.Address == "" {
		return &NoopVectorStore{}, nil
	}

	database := cfg.Database
	if database == "" {
		database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       cfg.Address,
			DBName:        database,
			Username:      cfg.Username,
			Password:      cfg.Password,
			EnableTLSAuth: cfg.TLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "manual_vectors"
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   collection,
		vectorSize:   cfg.VectorSize,
		distance:     formatMilvusDistance(cfg.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

// buildFilterExpr 把元数据过滤条件拼成Milvus表达式，在向量检索前收窄候选集
func buildFilterExpr(filters SearchFilters) string {
	var parts []string
	if filters.EquipmentModel != "" {
		parts = append(parts, fmt.Sprintf(`equipment_model == "%s"`, escapeMilvusValue(filters.EquipmentModel)))
	}
	if filters.ContentCategory != "" {
		parts = append(parts, fmt.Sprintf(`content_category == "%s"`, escapeMilvusValue(filters.ContentCategory)))
	}
	return strings.Join(parts, " && ")
}

func escapeMilvusValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchHit, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	// 执行搜索 - 使用HNSW搜索参数
	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(req.QueryEmbedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		buildFilterExpr(req.Filters),
		[]string{"chunk_id", "source", "page_section", "chunk_index", "equipment_model", "content_category", "content"},
		[]entity.Vector{queryVector},
		"vector",
		entity.MetricType(s.distance),
		req.Limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []SearchHit{}, nil
	}
	if searchResults[0].Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", searchResults[0].Err)
	}

	// 只有一个查询向量，取第一个结果
	result := searchResults[0]
	if result.ResultCount == 0 {
		return []SearchHit{}, nil
	}

	var chunkIDs, sources, pageSections, equipmentModels, contentCategories, contents []string
	var chunkIndexes []int64

	if result.Fields != nil {
		for _, field := range result.Fields {
			switch field.Name() {
			case "chunk_id":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					chunkIDs = val.Data()
				}
			case "source":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					sources = val.Data()
				}
			case "page_section":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					pageSections = val.Data()
				}
			case "chunk_index":
				if val, ok := field.(*entity.ColumnInt64); ok {
					chunkIndexes = val.Data()
				}
			case "equipment_model":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					equipmentModels = val.Data()
				}
			case "content_category":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					contentCategories = val.Data()
				}
			case "content":
				if val, ok := field.(*entity.ColumnVarChar); ok {
					contents = val.Data()
				}
			}
		}
	}

	stringAt := func(values []string, i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}

	results := make([]SearchHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		chunkIndex := 0
		if i < len(chunkIndexes) {
			chunkIndex = int(chunkIndexes[i])
		}
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}

		results = append(results, SearchHit{
			ChunkID:         stringAt(chunkIDs, i),
			Source:          stringAt(sources, i),
			PageSection:     stringAt(pageSections, i),
			ChunkIndex:      chunkIndex,
			EquipmentModel:  stringAt(equipmentModels, i),
			ContentCategory: stringAt(contentCategories, i),
			Content:         stringAt(contents, i),
			Score:           score,
			Method:          MethodSemantic,
		})
	}

	return results, nil
}

func (s *milvusVectorStore) Ready() bool {
	return s.milvusClient != nil
}

// Close 关闭客户端连接
func (s *milvusVectorStore) Close() error {
	if s.milvusClient == nil {
		return nil
	}
	return s.milvusClient.Close()
}

// NoopVectorStore 默认占位实现
type NoopVectorStore struct{}

func (n *NoopVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchHit, error) {
	return nil, nil
}

func (n *NoopVectorStore) Ready() bool {
	return false
}
