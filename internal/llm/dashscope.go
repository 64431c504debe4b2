package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/logger"
)

// DashScopeProvider 备用模型供应商，走OpenAI兼容协议
type DashScopeProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type dashScopeChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type dashScopeChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type dashScopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewDashScopeProvider 创建DashScope供应商
func NewDashScopeProvider(cfg *config.AIConfig) *DashScopeProvider {
	apiKey := strings.TrimSpace(cfg.DashScopeAPIKey)
	if apiKey == "" {
		return &DashScopeProvider{}
	}

	baseURL := cfg.DashScopeBaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &DashScopeProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second, // LLM可能需要更长时间
		},
	}
}

func (p *DashScopeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("dashscope provider not initialized")
	}

	payload := dashScopeChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		payload.Temperature = &req.Temperature
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/compatible-mode/v1/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("dashscope api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp dashScopeError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return "", fmt.Errorf("dashscope api error: %s (code: %s, request_id: %s)",
				errResp.Message, errResp.Code, errResp.RequestID)
		}
		return "", fmt.Errorf("dashscope api error: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var chatResp dashScopeChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("dashscope chat completion returned no choices")
	}

	logger.Debug("DashScope completion success",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
		zap.Int("completion_tokens", chatResp.Usage.CompletionTokens))

	return chatResp.Choices[0].Message.Content, nil
}

func (p *DashScopeProvider) Name() string {
	return "dashscope"
}

func (p *DashScopeProvider) Ready() bool {
	return p.client != nil
}
