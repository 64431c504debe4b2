package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/logger"
)

// RetrievalStatus 检索阶段的结果状态
type RetrievalStatus string

const (
	RetrievalOK       RetrievalStatus = "ok"
	RetrievalDegraded RetrievalStatus = "degraded"
	RetrievalFailed   RetrievalStatus = "failed"
)

// 引用摘录最大长度，超出截断到247字符并补省略号
const citationExcerptLimit = 250

// retryBackoff 单次重试前的等待时间
const retryBackoff = 200 * time.Millisecond

// RetrievalResult 检索阶段的完整产物
type RetrievalResult struct {
	Hits         []SearchHit
	Context      RetrievedContext
	Citations    []Citation
	Status       RetrievalStatus
	Degradations []string
}

// Retriever 混合检索器：语义与词法双通道并行，加权融合
type Retriever struct {
	embedder       Embedder
	vectorStore    VectorStore
	lexical        LexicalSearcher
	chunkStore     ChunkStore
	topK           int
	candidatePool  int
	semanticWeight float64
	lexicalWeight  float64
	neighborBudget int
	embedTimeout   time.Duration
	searchTimeout  time.Duration
}

// NewRetriever 创建混合检索器
func NewRetriever(
	embedder Embedder,
	vectorStore VectorStore,
	lexical LexicalSearcher,
	chunkStore ChunkStore,
	cfg *config.PipelineConfig,
) *Retriever {
	return &Retriever{
		embedder:       embedder,
		vectorStore:    vectorStore,
		lexical:        lexical,
		chunkStore:     chunkStore,
		topK:           cfg.TopK,
		candidatePool:  cfg.CandidatePool,
		semanticWeight: cfg.SemanticWeight,
		lexicalWeight:  cfg.LexicalWeight,
		neighborBudget: cfg.NeighborCharBudget,
		embedTimeout:   cfg.Timeouts.Embedding,
		searchTimeout:  cfg.Timeouts.Search,
	}
}

// Retrieve 执行混合检索
// 单通道故障降级不报错，双通道都失败时返回failed状态而不是error，
// 让上层流水线带着"检索失败"继续走推理和校验
func (r *Retriever) Retrieve(ctx context.Context, query string, filters SearchFilters) (*RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query cannot be empty")
	}

	result := &RetrievalResult{Status: RetrievalOK}

	// 1. 向量化查询，失败重试一次，仍失败则降级为纯词法检索
	var embedding []float32
	useSemantic := r.vectorStore != nil && r.vectorStore.Ready() && r.embedder != nil && r.embedder.Ready()
	if useSemantic {
		var err error
		embedding, err = r.embedWithRetry(ctx, query)
		if err != nil {
			logger.Warn("Query embedding failed, falling back to lexical-only search", zap.Error(err))
			useSemantic = false
			result.Status = RetrievalDegraded
			result.Degradations = append(result.Degradations, "embedding_unavailable")
		}
	}
	useLexical := r.lexical != nil && r.lexical.Ready()

	// 2. 双通道并行检索，各自带一次重试
	var (
		wg           sync.WaitGroup
		semanticHits []SearchHit
		lexicalHits  []SearchHit
		semanticErr  error
		lexicalErr   error
	)

	if useSemantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semanticHits, semanticErr = r.searchSemanticWithRetry(ctx, embedding, filters)
		}()
	}
	if useLexical {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalHits, lexicalErr = r.searchLexicalWithRetry(ctx, query, filters)
		}()
	}
	wg.Wait()

	if useSemantic && semanticErr != nil {
		logger.Warn("Semantic search failed", zap.Error(semanticErr))
		useSemantic = false
		result.Status = RetrievalDegraded
		result.Degradations = append(result.Degradations, "semantic_search_unavailable")
	}
	if useLexical && lexicalErr != nil {
		logger.Warn("Lexical search failed", zap.Error(lexicalErr))
		useLexical = false
		result.Status = RetrievalDegraded
		result.Degradations = append(result.Degradations, "lexical_search_unavailable")
	}

	// 双通道都不可用，检索失败
	if !useSemantic && !useLexical {
		result.Status = RetrievalFailed
		result.Context = RetrievedContext{Empty: true}
		return result, nil
	}

	// 3. 通道内归一化 + 加权融合
	// 单通道存活时其权重归一到1.0，避免融合分整体塌缩
	semanticWeight, lexicalWeight := r.semanticWeight, r.lexicalWeight
	if !useSemantic {
		semanticWeight, lexicalWeight = 0, 1.0
	}
	if !useLexical {
		semanticWeight, lexicalWeight = 1.0, 0
	}

	fused := fuseHits(
		normalizeScores(semanticHits), semanticWeight,
		normalizeScores(lexicalHits), lexicalWeight,
	)

	// 4. 排序截断，分数相同按chunk_id保证确定性
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	if len(fused) > r.topK {
		fused = fused[:r.topK]
	}
	result.Hits = fused

	// 5. 零命中：显式空上下文标记
	if len(fused) == 0 {
		result.Context = RetrievedContext{Empty: true}
		return result, nil
	}

	// 6. 邻接拼接与引用生成
	result.Context = r.assembleContext(ctx, fused)
	result.Citations = buildCitations(fused)

	return result, nil
}

func (r *Retriever) embedWithRetry(ctx context.Context, query string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	embedding, err := r.embedder.Embed(embedCtx, query)
	if err == nil {
		return embedding, nil
	}

	time.Sleep(retryBackoff)
	retryCtx, retryCancel := context.WithTimeout(ctx, r.embedTimeout)
	defer retryCancel()
	return r.embedder.Embed(retryCtx, query)
}

func (r *Retriever) searchSemanticWithRetry(ctx context.Context, embedding []float32, filters SearchFilters) ([]SearchHit, error) {
	req := VectorSearchRequest{
		QueryEmbedding: embedding,
		Filters:        filters,
		Limit:          r.candidatePool,
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	hits, err := r.vectorStore.Search(searchCtx, req)
	if err == nil {
		return hits, nil
	}

	time.Sleep(retryBackoff)
	retryCtx, retryCancel := context.WithTimeout(ctx, r.searchTimeout)
	defer retryCancel()
	return r.vectorStore.Search(retryCtx, req)
}

func (r *Retriever) searchLexicalWithRetry(ctx context.Context, query string, filters SearchFilters) ([]SearchHit, error) {
	req := LexicalSearchRequest{
		Query:   query,
		Filters: filters,
		Limit:   r.candidatePool,
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	hits, err := r.lexical.Search(searchCtx, req)
	if err == nil {
		return hits, nil
	}

	time.Sleep(retryBackoff)
	retryCtx, retryCancel := context.WithTimeout(ctx, r.searchTimeout)
	defer retryCancel()
	return r.lexical.Search(retryCtx, req)
}

// normalizeScores 通道内min-max归一化到[0,1]
// 所有得分相同时统一记1.0，该通道此时无区分度
func normalizeScores(hits []SearchHit) []SearchHit {
	if len(hits) == 0 {
		return hits
	}

	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	normalized := make([]SearchHit, len(hits))
	for i, h := range hits {
		if maxScore == minScore {
			h.Score = 1.0
		} else {
			h.Score = (h.Score - minScore) / (maxScore - minScore)
		}
		normalized[i] = h
	}
	return normalized
}

// fuseHits 加权融合两个通道的归一化结果，按chunk_id去重保留更高分
func fuseHits(semantic []SearchHit, semanticWeight float64, lexical []SearchHit, lexicalWeight float64) []SearchHit {
	merged := make(map[string]SearchHit)

	for _, h := range semantic {
		h.FusedScore = h.Score * semanticWeight
		merged[h.ChunkID] = h
	}
	for _, h := range lexical {
		h.FusedScore = h.Score * lexicalWeight
		if existing, ok := merged[h.ChunkID]; ok {
			if h.FusedScore > existing.FusedScore {
				merged[h.ChunkID] = h
			}
			continue
		}
		merged[h.ChunkID] = h
	}

	results := make([]SearchHit, 0, len(merged))
	for _, h := range merged {
		results = append(results, h)
	}
	return results
}

// assembleContext 为每个命中块拼接前后邻接块
// 命中文本优先保留，邻接文本在剩余预算内追加，超预算截断
func (r *Retriever) assembleContext(ctx context.Context, hits []SearchHit) RetrievedContext {
	blocks := make([]ContextBlock, 0, len(hits))
	for _, hit := range hits {
		block := ContextBlock{
			ChunkID:     hit.ChunkID,
			Source:      hit.Source,
			PageSection: hit.PageSection,
			Text:        hit.Content,
			FusedScore:  hit.FusedScore,
		}

		if r.chunkStore != nil {
			prev, next, err := r.chunkStore.GetNeighbors(ctx, hit.ChunkID)
			if err != nil {
				// 邻接块读取失败不影响命中块本身
				logger.Warn("Neighbor lookup failed", zap.String("chunk_id", hit.ChunkID), zap.Error(err))
			} else {
				prevText, nextText := "", ""
				if prev != nil {
					prevText = prev.Content
				}
				if next != nil {
					nextText = next.Content
				}
				block.Text, block.Truncated = stitchNeighbors(hit.Content, prevText, nextText, r.neighborBudget)
			}
		}

		blocks = append(blocks, block)
	}
	return RetrievedContext{Blocks: blocks}
}

// stitchNeighbors 组装 前邻接 + 命中 + 后邻接，整体不超过budget字符
// 命中文本永远完整保留，预算不足时优先砍邻接文本
func stitchNeighbors(hitText, prevText, nextText string, budget int) (string, bool) {
	if budget <= 0 || len(hitText) >= budget {
		return hitText, prevText != "" || nextText != ""
	}

	remaining := budget - len(hitText)
	truncated := false

	// 邻接预算对半分，一侧为空时让给另一侧
	prevBudget := remaining / 2
	nextBudget := remaining - prevBudget
	if prevText == "" {
		nextBudget = remaining
		prevBudget = 0
	}
	if nextText == "" {
		prevBudget = remaining
		nextBudget = 0
	}

	if len(prevText) > prevBudget {
		// 前邻接保留尾部，靠近命中块的部分更相关
		prevText = prevText[len(prevText)-prevBudget:]
		truncated = true
	}
	if len(nextText) > nextBudget {
		nextText = nextText[:nextBudget]
		truncated = true
	}

	var sb strings.Builder
	if prevText != "" {
		sb.WriteString(prevText)
		sb.WriteString("\n")
	}
	sb.WriteString(hitText)
	if nextText != "" {
		sb.WriteString("\n")
		sb.WriteString(nextText)
	}
	return sb.String(), truncated
}

// buildCitations 从命中块生成引用，摘录超长截断补省略号
func buildCitations(hits []SearchHit) []Citation {
	citations := make([]Citation, 0, len(hits))
	for _, hit := range hits {
		excerpt := hit.Content
		if len(excerpt) > citationExcerptLimit {
			excerpt = excerpt[:citationExcerptLimit-3] + "..."
		}
		citations = append(citations, Citation{
			Source:         hit.Source,
			PageSection:    hit.PageSection,
			Excerpt:        excerpt,
			RelevanceScore: hit.FusedScore,
		})
	}
	return citations
}
