package pipeline

import (
	"time"

	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/telemetry"
)

// Intent 查询意图分类
type Intent string

const (
	IntentTroubleshooting Intent = "troubleshooting"
	IntentProcedure       Intent = "procedure"
	IntentSpecification   Intent = "specification"
	IntentStatus          Intent = "status"
	IntentOther           Intent = "other"
)

// ValidationOutcome 校验阶段的最终结论
type ValidationOutcome string

const (
	OutcomePass    ValidationOutcome = "pass"
	OutcomeWarn    ValidationOutcome = "warn"
	OutcomeBlocked ValidationOutcome = "blocked"
)

// ConversationTurn 会话历史中的一轮
// 由会话层传入，流水线只读不持久化
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AgentState 单次问答贯穿五个阶段的状态
// 每个阶段只写自己负责的字段，写过之后对后续阶段只读
type AgentState struct {
	RawQuery        string
	NormalizedQuery string
	Language        string

	DetectedEquipmentModel string
	DetectedIntent         Intent
	PriorTurnSummary       string

	TelemetryRequested bool
	TelemetrySnapshot  *telemetry.Snapshot
	TelemetryError     string

	Retrieval *knowledge.RetrievalResult

	DraftAnswer  string
	CitedSources []string

	// 以下字段只有校验阶段写入
	FinalAnswer       string
	ConfidenceScore   float64
	ValidationOutcome ValidationOutcome
	SafetyUnavailable bool

	validationStage validationState
}

// RetrievalFailed 检索是否完全失败
func (s *AgentState) RetrievalFailed() bool {
	return s.Retrieval != nil && s.Retrieval.Status == knowledge.RetrievalFailed
}

// HasContext 是否拿到了可用的文档上下文
func (s *AgentState) HasContext() bool {
	return s.Retrieval != nil && !s.Retrieval.Context.Empty && len(s.Retrieval.Context.Blocks) > 0
}

// Response 流水线对外的唯一产物
type Response struct {
	Answer                 string               `json:"answer"`
	Citations              []knowledge.Citation `json:"citations"`
	ConfidenceScore        float64              `json:"confidence_score"`
	ValidationOutcome      ValidationOutcome    `json:"validation_outcome"`
	DetectedEquipmentModel string               `json:"detected_equipment_model,omitempty"`
}
