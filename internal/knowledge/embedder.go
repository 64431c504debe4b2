package knowledge

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/logger"
)

// OpenAIEmbedder 基于OpenAI兼容接口的向量化实现
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder 创建向量化客户端
// base_url为空时使用官方端点，兼容其他OpenAI协议的服务
func NewOpenAIEmbedder(cfg *config.AIConfig) (*OpenAIEmbedder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("embedding api key is empty")
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
	}, nil
}

// Embed 将查询文本转成向量
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contains no data")
	}

	embedding := resp.Data[0].Embedding
	if e.dimensions > 0 && len(embedding) != e.dimensions {
		logger.Warn("Embedding dimension mismatch",
			zap.Int("expected", e.dimensions),
			zap.Int("actual", len(embedding)))
	}

	return embedding, nil
}

// Dimensions 返回向量维度
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Ready 是否可用
func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}

// NoopEmbedder 向量化不可用时的占位实现
// 检索器检测到不可用后会降级为纯词法检索
type NoopEmbedder struct{}

func (e *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedder is not configured")
}

func (e *NoopEmbedder) Dimensions() int { return 0 }

func (e *NoopEmbedder) Ready() bool { return false }
