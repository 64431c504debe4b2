package knowledge

import "context"

// RetrievalMethod 检索通道标识
type RetrievalMethod string

const (
	MethodSemantic RetrievalMethod = "semantic"
	MethodLexical  RetrievalMethod = "lexical"
)

// SearchFilters 检索的元数据过滤条件
// 作为前置过滤下推到两个检索通道，避免截断后再过滤导致结果饥饿
type SearchFilters struct {
	EquipmentModel  string
	ContentCategory string
}

// SearchHit 单个检索结果
type SearchHit struct {
	ChunkID         string
	Source          string
	PageSection     string
	ChunkIndex      int
	EquipmentModel  string
	ContentCategory string
	Content         string
	Score           float64 // 通道内原始得分（融合前）
	Method          RetrievalMethod
	FusedScore      float64 // 加权融合后的得分
}

// ContextBlock 一个命中块及其拼接的邻接文本
type ContextBlock struct {
	ChunkID     string
	Source      string
	PageSection string
	Text        string // 命中文本在前，邻接文本在后
	FusedScore  float64
	Truncated   bool
}

// NoContextText 零命中时的显式上下文标记
// 推理阶段必须把它当作独立状态处理，不能当普通上下文拼进提示词
const NoContextText = "No relevant documentation found in the knowledge base."

// RetrievedContext 有序的上下文块集合
type RetrievedContext struct {
	Blocks []ContextBlock
	Empty  bool
}

// Sources 返回去重后的来源标识（保持块顺序）
func (rc *RetrievedContext) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, block := range rc.Blocks {
		if !seen[block.Source] {
			seen[block.Source] = true
			sources = append(sources, block.Source)
		}
	}
	return sources
}

// Citation 用户可见的引用信息
type Citation struct {
	Source         string  `json:"source"`
	PageSection    string  `json:"page_section,omitempty"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
	URL            string  `json:"url,omitempty"`
}

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// VectorSearchRequest 语义检索请求
type VectorSearchRequest struct {
	QueryEmbedding []float32
	Filters        SearchFilters
	Limit          int
}

// VectorStore 语义检索抽象
type VectorStore interface {
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchHit, error)
	Ready() bool
}

// LexicalSearchRequest 词法检索请求
type LexicalSearchRequest struct {
	Query   string
	Filters SearchFilters
	Limit   int
}

// LexicalSearcher 词法检索抽象
type LexicalSearcher interface {
	Search(ctx context.Context, req LexicalSearchRequest) ([]SearchHit, error)
	Ready() bool
}
