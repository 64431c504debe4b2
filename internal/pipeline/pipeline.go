package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	apperrors "github.com/solarisops/assistant-go/internal/errors"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/metrics"
	"github.com/solarisops/assistant-go/internal/telemetry"
)

// reasoningFailedAnswer 主备模型都失败时给用户的固定响应
const reasoningFailedAnswer = "I'm unable to generate an answer right now. Please try again in a moment."

// ContextRetriever 检索阶段抽象
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, filters knowledge.SearchFilters) (*knowledge.RetrievalResult, error)
}

// Pipeline 五阶段问答流水线编排器
// 每次调用创建独立的AgentState，调用之间没有共享可变状态
type Pipeline struct {
	normalizer *Normalizer
	retriever  ContextRetriever
	fetcher    telemetry.Fetcher
	reasoner   *Reasoner
	validator  *Validator

	telemetryEnabled bool
	telemetryCeiling time.Duration
}

// NewPipeline 组装流水线，所有外部依赖显式注入
func NewPipeline(
	normalizer *Normalizer,
	retriever ContextRetriever,
	fetcher telemetry.Fetcher,
	reasoner *Reasoner,
	validator *Validator,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		normalizer:       normalizer,
		retriever:        retriever,
		fetcher:          fetcher,
		reasoner:         reasoner,
		validator:        validator,
		telemetryEnabled: cfg.Telemetry.Enabled,
		telemetryCeiling: cfg.Pipeline.Timeouts.Telemetry,
	}
}

type telemetryResult struct {
	snapshot *telemetry.Snapshot
	err      error
}

// Run 执行一次完整问答
// 除了空查询之外永远返回完整的Response，内部故障都转成降级响应
func (p *Pipeline) Run(ctx context.Context, query string, history []ConversationTurn, sessionID string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewInvalidInputError("query", "must not be empty")
	}

	state := &AgentState{RawQuery: query}

	// 阶段1：归一化
	stageStart := time.Now()
	p.normalizer.Normalize(state, history)
	metrics.StageDuration.WithLabelValues("normalize").Observe(time.Since(stageStart).Seconds())

	// 阶段2：遥测拉取，和检索并行，超过硬上限直接按失败处理
	var telemetryCh <-chan telemetryResult
	if p.telemetryEnabled && p.fetcher != nil && p.fetcher.Enabled() && state.DetectedEquipmentModel != "" {
		state.TelemetryRequested = true
		telemetryCh = p.fetchTelemetryAsync(ctx, state.DetectedEquipmentModel, sessionID)
	}

	// 阶段3：知识检索
	stageStart = time.Now()
	retrieval, err := p.retriever.Retrieve(ctx, state.NormalizedQuery, knowledge.SearchFilters{
		EquipmentModel:  state.DetectedEquipmentModel,
		ContentCategory: contentCategoryFor(state.DetectedIntent),
	})
	if err != nil {
		logger.Error("Retrieval returned an error, treating as failed", zap.Error(err))
		retrieval = &knowledge.RetrievalResult{
			Status:  knowledge.RetrievalFailed,
			Context: knowledge.RetrievedContext{Empty: true},
		}
	}
	state.Retrieval = retrieval
	metrics.StageDuration.WithLabelValues("retrieve").Observe(time.Since(stageStart).Seconds())
	metrics.RetrievalStatus.WithLabelValues(string(retrieval.Status)).Inc()

	// 并发汇合：等遥测结果，但不超过硬上限
	if telemetryCh != nil {
		select {
		case result := <-telemetryCh:
			if result.err != nil {
				state.TelemetryError = result.err.Error()
				logger.Warn("Telemetry fetch failed",
					zap.String("equipment_model", state.DetectedEquipmentModel),
					zap.Error(result.err))
			} else {
				state.TelemetrySnapshot = result.snapshot
			}
		case <-time.After(p.telemetryCeiling):
			state.TelemetryError = "telemetry fetch exceeded hard ceiling"
			logger.Warn("Telemetry fetch exceeded hard ceiling",
				zap.Duration("ceiling", p.telemetryCeiling))
		}
	}

	// 阶段4：推理，唯一可能中止的阶段
	stageStart = time.Now()
	if err := p.reasoner.Reason(ctx, state); err != nil {
		logger.Error("Reasoning failed for both providers", zap.Error(err))
		metrics.StageDuration.WithLabelValues("reason").Observe(time.Since(stageStart).Seconds())
		metrics.PipelineOutcomes.WithLabelValues("reasoning_failed").Inc()
		return &Response{
			Answer:                 reasoningFailedAnswer,
			Citations:              nil,
			ConfidenceScore:        0,
			ValidationOutcome:      OutcomeWarn,
			DetectedEquipmentModel: state.DetectedEquipmentModel,
		}, nil
	}
	metrics.StageDuration.WithLabelValues("reason").Observe(time.Since(stageStart).Seconds())

	// 阶段5：校验，可能替换回答但不会中止
	stageStart = time.Now()
	p.validator.Validate(ctx, state)
	metrics.StageDuration.WithLabelValues("validate").Observe(time.Since(stageStart).Seconds())

	metrics.PipelineOutcomes.WithLabelValues(string(state.ValidationOutcome)).Inc()
	metrics.ConfidenceScores.Observe(state.ConfidenceScore)

	return &Response{
		Answer:                 state.FinalAnswer,
		Citations:              retrieval.Citations,
		ConfidenceScore:        state.ConfidenceScore,
		ValidationOutcome:      state.ValidationOutcome,
		DetectedEquipmentModel: state.DetectedEquipmentModel,
	}, nil
}

// fetchTelemetryAsync 在独立goroutine里拉遥测，结果走channel汇合
func (p *Pipeline) fetchTelemetryAsync(ctx context.Context, equipmentModel, sessionID string) <-chan telemetryResult {
	ch := make(chan telemetryResult, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, p.telemetryCeiling)
		defer cancel()

		start := time.Now()
		snapshot, err := p.fetcher.Fetch(fetchCtx, equipmentModel, sessionID)
		metrics.StageDuration.WithLabelValues("telemetry").Observe(time.Since(start).Seconds())
		ch <- telemetryResult{snapshot: snapshot, err: err}
	}()
	return ch
}

// contentCategoryFor 意图到文档类别过滤的映射，状态类和未知意图不过滤
func contentCategoryFor(intent Intent) string {
	switch intent {
	case IntentTroubleshooting:
		return "troubleshooting"
	case IntentProcedure:
		return "procedure"
	case IntentSpecification:
		return "specification"
	default:
		return ""
	}
}
