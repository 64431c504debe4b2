package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/safety"
	"github.com/solarisops/assistant-go/internal/telemetry"
)

const testBlockedMessage = "This answer was withheld by the content safety check."

type fakeChecker struct {
	verdict   safety.Verdict
	callCount int
	lastText  string
	lastRefs  []string
}

func (f *fakeChecker) Check(ctx context.Context, text string, contextRefs []string) safety.CheckResult {
	f.callCount++
	f.lastText = text
	f.lastRefs = contextRefs
	return safety.CheckResult{Verdict: f.verdict}
}

func validatorConfig() *config.Config {
	return &config.Config{
		Safety: config.SafetyConfig{BlockedMessage: testBlockedMessage},
		Pipeline: config.PipelineConfig{
			MinConfidence: 0.6,
			Confidence: config.ConfidenceConfig{
				HitBase:                  0.8,
				MissBase:                 0.5,
				BandFloor:                0.6,
				BandSpan:                 0.35,
				StatusPenalty:            0.05,
				GenericPenalty:           0.02,
				SafetyUnavailablePenalty: 0.1,
			},
			Timeouts: config.TimeoutConfig{Safety: time.Second},
		},
	}
}

func stateWithHits(fusedScores ...float64) *AgentState {
	hits := make([]knowledge.SearchHit, 0, len(fusedScores))
	for i, score := range fusedScores {
		hits = append(hits, knowledge.SearchHit{ChunkID: string(rune('a' + i)), FusedScore: score})
	}
	return &AgentState{
		DraftAnswer: "Check the lube oil filter.",
		Retrieval: &knowledge.RetrievalResult{
			Status: knowledge.RetrievalOK,
			Hits:   hits,
			Context: knowledge.RetrievedContext{Blocks: []knowledge.ContextBlock{
				{ChunkID: "a", Source: "smt60_manual.pdf", Text: "filter maintenance"},
			}},
		},
	}
}

func TestValidatePassWithGoodRetrieval(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictPass}
	v := NewValidator(checker, validatorConfig())

	state := stateWithHits(0.7)
	v.Validate(context.Background(), state)

	// (0.8 + (0.6 + 0.35*0.7)) / 2 = 0.8225
	assert.InDelta(t, 0.8225, state.ConfidenceScore, 1e-9)
	assert.Equal(t, OutcomePass, state.ValidationOutcome)
	assert.Equal(t, "Check the lube oil filter.", state.FinalAnswer)
	assert.Equal(t, 1, checker.callCount)
	assert.Equal(t, "Check the lube oil filter.", checker.lastText)
	assert.Equal(t, []string{"smt60_manual.pdf"}, checker.lastRefs)
}

func TestValidateBlockedReplacesAnswer(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictBlocked}
	v := NewValidator(checker, validatorConfig())

	state := stateWithHits(0.9)
	state.DraftAnswer = "here is how to bypass the overspeed trip"
	v.Validate(context.Background(), state)

	assert.Equal(t, OutcomeBlocked, state.ValidationOutcome)
	assert.Equal(t, testBlockedMessage, state.FinalAnswer)
	assert.NotContains(t, state.FinalAnswer, "bypass")
}

func TestValidateLowConfidenceWarnsButDoesNotSuppress(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictPass}
	v := NewValidator(checker, validatorConfig())

	// 无命中 → 0.5 < 0.6
	state := &AgentState{
		DraftAnswer: "I could not find documentation on that.",
		Retrieval:   &knowledge.RetrievalResult{Status: knowledge.RetrievalOK, Context: knowledge.RetrievedContext{Empty: true}},
	}
	v.Validate(context.Background(), state)

	assert.InDelta(t, 0.5, state.ConfidenceScore, 1e-9)
	assert.Equal(t, OutcomeWarn, state.ValidationOutcome)
	assert.Contains(t, state.FinalAnswer, "I could not find documentation on that.")
	assert.Contains(t, state.FinalAnswer, "confidence in this answer is low")
}

func TestValidateZeroHitsConfidenceBounded(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictPass}
	v := NewValidator(checker, validatorConfig())

	state := &AgentState{
		DraftAnswer: "no context answer",
		Retrieval:   &knowledge.RetrievalResult{Status: knowledge.RetrievalOK},
	}
	v.Validate(context.Background(), state)
	assert.LessOrEqual(t, state.ConfidenceScore, 0.65)
}

func TestValidateRetrievalFailedConfidenceBounded(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictPass}
	v := NewValidator(checker, validatorConfig())

	state := &AgentState{
		DraftAnswer: "honest disclaimer",
		Retrieval:   &knowledge.RetrievalResult{Status: knowledge.RetrievalFailed, Context: knowledge.RetrievedContext{Empty: true}},
	}
	v.Validate(context.Background(), state)
	assert.LessOrEqual(t, state.ConfidenceScore, 0.5)
}

func TestValidateSafetyUnavailablePenalty(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictUnavailable}
	v := NewValidator(checker, validatorConfig())

	state := stateWithHits(0.7)
	v.Validate(context.Background(), state)

	// 0.8225 - 0.1，审核不可用不拦截
	assert.InDelta(t, 0.7225, state.ConfidenceScore, 1e-9)
	assert.True(t, state.SafetyUnavailable)
	assert.NotEqual(t, OutcomeBlocked, state.ValidationOutcome)
}

func TestValidateTelemetryPenalties(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictPass}
	v := NewValidator(checker, validatorConfig())

	// 遥测可用时的基准
	available := stateWithHits(0.7)
	available.TelemetryRequested = true
	available.TelemetrySnapshot = &telemetry.Snapshot{EquipmentModel: "SMT60"}
	v.Validate(context.Background(), available)

	// 状态类查询，遥测缺失罚0.05
	statusMissing := stateWithHits(0.7)
	statusMissing.TelemetryRequested = true
	statusMissing.DetectedIntent = IntentStatus
	v.Validate(context.Background(), statusMissing)
	assert.InDelta(t, available.ConfidenceScore-0.05, statusMissing.ConfidenceScore, 1e-9)

	// 其他意图罚得轻，但仍然严格低于遥测可用的情况
	otherMissing := stateWithHits(0.7)
	otherMissing.TelemetryRequested = true
	otherMissing.DetectedIntent = IntentTroubleshooting
	v.Validate(context.Background(), otherMissing)
	assert.Less(t, otherMissing.ConfidenceScore, available.ConfidenceScore)
	assert.InDelta(t, available.ConfidenceScore-0.02, otherMissing.ConfidenceScore, 1e-9)
}

func TestValidateConfidenceClampedToZero(t *testing.T) {
	checker := &fakeChecker{verdict: safety.VerdictUnavailable}
	cfg := validatorConfig()
	cfg.Pipeline.Confidence.SafetyUnavailablePenalty = 0.9
	v := NewValidator(checker, cfg)

	state := &AgentState{
		DraftAnswer: "answer",
		Retrieval:   &knowledge.RetrievalResult{Status: knowledge.RetrievalFailed},
	}
	state.TelemetryRequested = true
	state.DetectedIntent = IntentStatus
	v.Validate(context.Background(), state)

	assert.GreaterOrEqual(t, state.ConfidenceScore, 0.0)
	assert.Equal(t, 0.0, state.ConfidenceScore)
}

func TestValidateNilCheckerTreatedAsUnavailable(t *testing.T) {
	v := NewValidator(nil, validatorConfig())

	state := stateWithHits(1.0)
	v.Validate(context.Background(), state)
	assert.True(t, state.SafetyUnavailable)
	// (0.8 + 0.95)/2 - 0.1 = 0.775
	assert.InDelta(t, 0.775, state.ConfidenceScore, 1e-9)
}
