package llm

import "context"

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest 文本生成请求
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Provider 大模型供应商抽象，主备切换依赖它
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	Ready() bool
}
