package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	apperrors "github.com/solarisops/assistant-go/internal/errors"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/llm"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/metrics"
)

const systemInstructions = `You are a technical assistant for industrial gas turbine operators.
Answer ONLY from the provided documentation context. Cite the source document name when you use it.
If the context is insufficient to answer reliably, say so explicitly instead of guessing.
Keep answers practical and safety-conscious. Never instruct the operator to bypass protective devices.`

// retrievalFailedAnswer 检索后端整体不可用时的兜底回答
const retrievalFailedAnswer = "I could not reach the documentation index, so I do not have enough information to answer reliably right now. Please retry in a moment or consult the printed manual for this equipment."

// Reasoner 推理阶段：组装提示词，主备模型调用，引用交叉核对
type Reasoner struct {
	primary       llm.Provider
	fallback      llm.Provider
	primaryModel  string
	fallbackModel string
	maxTokens     int
	temperature   float64
	llmTimeout    time.Duration
}

// NewReasoner 创建推理引擎
func NewReasoner(primary, fallback llm.Provider, cfg *config.Config) *Reasoner {
	return &Reasoner{
		primary:       primary,
		fallback:      fallback,
		primaryModel:  cfg.Pipeline.PrimaryModelKey,
		fallbackModel: cfg.Pipeline.FallbackModelKey,
		maxTokens:     cfg.AI.MaxTokens,
		temperature:   cfg.AI.Temperature,
		llmTimeout:    cfg.Pipeline.Timeouts.LLM,
	}
}

// Reason 生成草稿回答
// 检索完全失败时直接给出承认信息不足的固定回答，不调用模型；
// 主备模型都失败时返回错误，由编排层转成用户可见的失败响应
func (r *Reasoner) Reason(ctx context.Context, state *AgentState) error {
	if state.RetrievalFailed() {
		state.DraftAnswer = retrievalFailedAnswer
		state.CitedSources = nil
		return nil
	}

	messages := r.buildMessages(state)

	answer, err := r.completeWithFallback(ctx, messages)
	if err != nil {
		return err
	}

	state.DraftAnswer = answer
	state.CitedSources = matchCitedSources(answer, state.Retrieval)
	return nil
}

// buildMessages 固定四段式提示词：系统指令、历史摘要、文档上下文+遥测、用户问题
func (r *Reasoner) buildMessages(state *AgentState) []llm.Message {
	var sb strings.Builder

	if state.PriorTurnSummary != "" {
		sb.WriteString("Previous question from this operator:\n")
		sb.WriteString(state.PriorTurnSummary)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Documentation context:\n")
	if state.HasContext() {
		for i, block := range state.Retrieval.Context.Blocks {
			sb.WriteString(fmt.Sprintf("[Document %d - Source: %s]\n", i+1, block.Source))
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString(knowledge.NoContextText)
		sb.WriteString("\n\n")
	}

	if state.TelemetrySnapshot != nil {
		sb.WriteString(state.TelemetrySnapshot.Format())
		sb.WriteString("\n\n")
	}

	sb.WriteString("Operator question: ")
	sb.WriteString(state.RawQuery)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemInstructions},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// completeWithFallback 主模型失败时切换备用模型，只切换一次不再级联
func (r *Reasoner) completeWithFallback(ctx context.Context, messages []llm.Message) (string, error) {
	primaryErr := fmt.Errorf("primary provider not configured")
	if r.primary != nil && r.primary.Ready() {
		callCtx, cancel := context.WithTimeout(ctx, r.llmTimeout)
		answer, err := r.primary.Complete(callCtx, llm.CompletionRequest{
			Model:       r.primaryModel,
			Messages:    messages,
			MaxTokens:   r.maxTokens,
			Temperature: r.temperature,
		})
		cancel()
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer, nil
		}
		if err == nil {
			err = fmt.Errorf("primary provider returned empty answer")
		}
		primaryErr = err
	}

	logger.Warn("Primary model failed, switching to fallback",
		zap.String("primary_model", r.primaryModel),
		zap.String("fallback_model", r.fallbackModel),
		zap.Error(primaryErr))
	metrics.ModelFallbacks.Inc()

	if r.fallback == nil || !r.fallback.Ready() {
		return "", apperrors.NewExternalError(apperrors.ErrCodeReasoningFailed,
			"both model providers unavailable").WithCause(primaryErr)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()
	answer, err := r.fallback.Complete(callCtx, llm.CompletionRequest{
		Model:       r.fallbackModel,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", apperrors.NewExternalError(apperrors.ErrCodeReasoningFailed,
			"both model providers failed").WithCause(err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", apperrors.NewExternalError(apperrors.ErrCodeReasoningFailed,
			"fallback provider returned empty answer")
	}

	return answer, nil
}

// matchCitedSources 只承认检索集合里真实存在的来源，模型编造的引用一律丢弃
func matchCitedSources(answer string, retrieval *knowledge.RetrievalResult) []string {
	if retrieval == nil {
		return nil
	}

	answerLower := strings.ToLower(answer)
	var cited []string
	for _, source := range retrieval.Context.Sources() {
		if source == "" {
			continue
		}
		if strings.Contains(answerLower, strings.ToLower(source)) {
			cited = append(cited, source)
		}
	}
	return cited
}
