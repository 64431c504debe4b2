package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/safety"
)

// validationState 校验阶段内部状态机
type validationState int

const (
	statePending validationState = iota
	stateSafetyChecked
	stateScored
	stateFinalized
)

// lowConfidenceCaveat 低置信度时追加的操作员提示
const lowConfidenceCaveat = "\n\n[Note: confidence in this answer is low. Verify against the official manual before acting on it.]"

// Validator 校验阶段：内容审核、置信度打分、阈值处理
type Validator struct {
	checker        safety.Checker
	confidence     config.ConfidenceConfig
	minConfidence  float64
	blockedMessage string
	safetyTimeout  time.Duration
}

// NewValidator 创建校验器
func NewValidator(checker safety.Checker, cfg *config.Config) *Validator {
	return &Validator{
		checker:        checker,
		confidence:     cfg.Pipeline.Confidence,
		minConfidence:  cfg.Pipeline.MinConfidence,
		blockedMessage: cfg.Safety.BlockedMessage,
		safetyTimeout:  cfg.Pipeline.Timeouts.Safety,
	}
}

// Validate 依次执行 Pending → SafetyChecked → Scored → Finalized
// 永远不中止流水线，被拦截时替换回答而不是报错
func (v *Validator) Validate(ctx context.Context, state *AgentState) {
	state.validationStage = statePending

	// 1. 内容审核
	verdict := v.runSafetyCheck(ctx, state)
	state.validationStage = stateSafetyChecked

	// 2. 置信度打分（纯函数，不重试）
	state.ConfidenceScore = v.score(state)
	state.validationStage = stateScored

	// 3. 终态决策
	switch {
	case verdict == safety.VerdictBlocked:
		state.FinalAnswer = v.blockedMessage
		state.ValidationOutcome = OutcomeBlocked
	case state.ConfidenceScore < v.minConfidence:
		// 低置信度只加警示，不拦截
		state.FinalAnswer = state.DraftAnswer + lowConfidenceCaveat
		state.ValidationOutcome = OutcomeWarn
	default:
		state.FinalAnswer = state.DraftAnswer
		state.ValidationOutcome = OutcomePass
	}
	state.validationStage = stateFinalized
}

func (v *Validator) runSafetyCheck(ctx context.Context, state *AgentState) safety.Verdict {
	if v.checker == nil {
		state.SafetyUnavailable = true
		return safety.VerdictUnavailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, v.safetyTimeout)
	defer cancel()

	var contextRefs []string
	if state.Retrieval != nil {
		contextRefs = state.Retrieval.Context.Sources()
	}
	result := v.checker.Check(checkCtx, state.DraftAnswer, contextRefs)
	if result.Verdict == safety.VerdictUnavailable {
		// 审核服务不可用不拦截回答，只降置信度
		state.SafetyUnavailable = true
		logger.Warn("Safety check unavailable, applying confidence penalty",
			zap.String("reason", result.Reason))
	}
	return result.Verdict
}

// score 确定性置信度公式
// 有命中：命中基准分与相关度线性档位的均值；无命中：固定低基准
func (v *Validator) score(state *AgentState) float64 {
	c := v.confidence

	var score float64
	if state.Retrieval != nil && len(state.Retrieval.Hits) > 0 {
		var sum float64
		for _, hit := range state.Retrieval.Hits {
			sum += hit.FusedScore
		}
		avg := sum / float64(len(state.Retrieval.Hits))

		band := c.BandFloor + c.BandSpan*avg
		if band > c.BandFloor+c.BandSpan {
			band = c.BandFloor + c.BandSpan
		}
		score = (c.HitBase + band) / 2
	} else {
		score = c.MissBase
	}

	// 遥测请求了但没拿到，状态类查询罚得更重
	if state.TelemetryRequested && state.TelemetrySnapshot == nil {
		if state.DetectedIntent == IntentStatus {
			score -= c.StatusPenalty
		} else {
			score -= c.GenericPenalty
		}
	}

	if state.SafetyUnavailable {
		score -= c.SafetyUnavailablePenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
