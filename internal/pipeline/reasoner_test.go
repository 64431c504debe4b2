package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisops/assistant-go/internal/config"
	apperrors "github.com/solarisops/assistant-go/internal/errors"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/llm"
	"github.com/solarisops/assistant-go/internal/telemetry"
)

type fakeProvider struct {
	name      string
	answer    string
	fail      bool
	callCount int
	lastReq   llm.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.callCount++
	f.lastReq = req
	if f.fail {
		return "", errors.New(f.name + " provider down")
	}
	return f.answer, nil
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Ready() bool  { return true }

func reasonerConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{MaxTokens: 1024, Temperature: 0.7},
		Pipeline: config.PipelineConfig{
			PrimaryModelKey:  "gpt-4o",
			FallbackModelKey: "qwen-plus",
			Timeouts:         config.TimeoutConfig{LLM: time.Second},
		},
	}
}

func stateWithContext() *AgentState {
	return &AgentState{
		RawQuery: "How do I troubleshoot low oil pressure on SMT60?",
		Retrieval: &knowledge.RetrievalResult{
			Status: knowledge.RetrievalOK,
			Context: knowledge.RetrievedContext{Blocks: []knowledge.ContextBlock{
				{ChunkID: "chunk-1", Source: "smt60_manual.pdf", Text: "Low lube oil pressure indicates a clogged filter."},
			}},
		},
	}
}

func TestReasonUsesPrimaryProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", answer: "Check the filter per smt60_manual.pdf."}
	fallback := &fakeProvider{name: "fallback", answer: "fallback answer"}
	r := NewReasoner(primary, fallback, reasonerConfig())

	state := stateWithContext()
	require.NoError(t, r.Reason(context.Background(), state))

	assert.Equal(t, "Check the filter per smt60_manual.pdf.", state.DraftAnswer)
	assert.Equal(t, 1, primary.callCount)
	assert.Equal(t, 0, fallback.callCount)
	assert.Equal(t, "gpt-4o", primary.lastReq.Model)
	assert.Equal(t, []string{"smt60_manual.pdf"}, state.CitedSources)
}

func TestReasonFallsBackExactlyOnce(t *testing.T) {
	primary := &fakeProvider{name: "primary", fail: true}
	fallback := &fakeProvider{name: "fallback", answer: "fallback answer"}
	r := NewReasoner(primary, fallback, reasonerConfig())

	state := stateWithContext()
	require.NoError(t, r.Reason(context.Background(), state))

	assert.Equal(t, "fallback answer", state.DraftAnswer)
	assert.Equal(t, 1, primary.callCount)
	assert.Equal(t, 1, fallback.callCount)
	assert.Equal(t, "qwen-plus", fallback.lastReq.Model)
}

func TestReasonBothProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", fail: true}
	fallback := &fakeProvider{name: "fallback", fail: true}
	r := NewReasoner(primary, fallback, reasonerConfig())

	state := stateWithContext()
	err := r.Reason(context.Background(), state)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeReasoningFailed))
	assert.Equal(t, 1, primary.callCount)
	assert.Equal(t, 1, fallback.callCount)
}

func TestReasonRetrievalFailedSkipsProviders(t *testing.T) {
	primary := &fakeProvider{name: "primary", answer: "should not be used"}
	fallback := &fakeProvider{name: "fallback"}
	r := NewReasoner(primary, fallback, reasonerConfig())

	state := &AgentState{
		RawQuery: "fuel nozzle torque spec",
		Retrieval: &knowledge.RetrievalResult{
			Status:  knowledge.RetrievalFailed,
			Context: knowledge.RetrievedContext{Empty: true},
		},
	}
	require.NoError(t, r.Reason(context.Background(), state))

	assert.Contains(t, state.DraftAnswer, "do not have enough information")
	assert.Empty(t, state.CitedSources)
	assert.Equal(t, 0, primary.callCount)
	assert.Equal(t, 0, fallback.callCount)
}

func TestReasonPromptLayout(t *testing.T) {
	primary := &fakeProvider{name: "primary", answer: "ok"}
	r := NewReasoner(primary, nil, reasonerConfig())

	state := stateWithContext()
	state.PriorTurnSummary = "troubleshoot low oil pressure on SMT60"
	state.TelemetrySnapshot = &telemetry.Snapshot{
		EquipmentModel: "SMT60",
		Readings:       []telemetry.Reading{{Name: "lube_oil_pressure", Value: 30, Unit: "psi"}},
	}
	require.NoError(t, r.Reason(context.Background(), state))

	require.Len(t, primary.lastReq.Messages, 2)
	assert.Equal(t, llm.RoleSystem, primary.lastReq.Messages[0].Role)
	assert.Contains(t, primary.lastReq.Messages[0].Content, "Answer ONLY from the provided documentation context")

	userContent := primary.lastReq.Messages[1].Content
	assert.Contains(t, userContent, "Previous question from this operator:")
	assert.Contains(t, userContent, "[Document 1 - Source: smt60_manual.pdf]")
	assert.Contains(t, userContent, "Live telemetry for SMT60")
	assert.True(t, strings.HasSuffix(userContent,
		"Operator question: How do I troubleshoot low oil pressure on SMT60?"))
}

func TestReasonEmptyContextUsesMarker(t *testing.T) {
	primary := &fakeProvider{name: "primary", answer: "I don't have documentation on that."}
	r := NewReasoner(primary, nil, reasonerConfig())

	state := &AgentState{
		RawQuery: "unrelated question",
		Retrieval: &knowledge.RetrievalResult{
			Status:  knowledge.RetrievalOK,
			Context: knowledge.RetrievedContext{Empty: true},
		},
	}
	require.NoError(t, r.Reason(context.Background(), state))
	assert.Contains(t, primary.lastReq.Messages[1].Content, knowledge.NoContextText)
}

func TestMatchCitedSourcesNeverInvents(t *testing.T) {
	retrieval := &knowledge.RetrievalResult{
		Context: knowledge.RetrievedContext{Blocks: []knowledge.ContextBlock{
			{Source: "smt60_manual.pdf"},
			{Source: "tm2500_manual.pdf"},
		}},
	}

	// 回答里提到的无关文档不会变成引用
	cited := matchCitedSources("See smt60_manual.pdf and also bogus_doc.pdf", retrieval)
	assert.Equal(t, []string{"smt60_manual.pdf"}, cited)

	cited = matchCitedSources("no sources mentioned at all", retrieval)
	assert.Empty(t, cited)
}
