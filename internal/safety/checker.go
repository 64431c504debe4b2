package safety

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

// Verdict 内容审核结论
type Verdict string

const (
	VerdictPass        Verdict = "pass"
	VerdictBlocked     Verdict = "blocked"
	VerdictUnavailable Verdict = "unavailable"
)

// CheckResult 审核结果
type CheckResult struct {
	Verdict Verdict
	Reason  string
}

// Checker 内容审核与落地性检查抽象
// contextRefs是回答所依据的检索来源，审核服务据此做落地性判定
type Checker interface {
	Check(ctx context.Context, text string, contextRefs []string) CheckResult
}

// HTTPChecker 调用外部内容审核服务
// 服务不可用不是阻断条件，返回unavailable由校验阶段降置信处理
type HTTPChecker struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

type checkRequest struct {
	Text        string   `json:"text"`
	ContextRefs []string `json:"context_refs,omitempty"`
}

type checkResponse struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// NewHTTPChecker 创建审核客户端
func NewHTTPChecker(cfg *config.SafetyConfig, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Check 审核一段文本，失败重试一次
func (c *HTTPChecker) Check(ctx context.Context, text string, contextRefs []string) CheckResult {
	if c.baseURL == "" {
		return CheckResult{Verdict: VerdictUnavailable, Reason: "safety service not configured"}
	}

	result, err := c.checkOnce(ctx, text, contextRefs)
	if err == nil {
		return result
	}

	logger.Warn("Safety check failed, retrying once", zap.Error(err))
	result, err = c.checkOnce(ctx, text, contextRefs)
	if err != nil {
		logger.Warn("Safety check unavailable", zap.Error(err))
		return CheckResult{Verdict: VerdictUnavailable, Reason: err.Error()}
	}
	return result
}

func (c *HTTPChecker) checkOnce(ctx context.Context, text string, contextRefs []string) (CheckResult, error) {
	payload, err := json.Marshal(checkRequest{Text: text, ContextRefs: contextRefs})
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/moderate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{}, fmt.Errorf("safety service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to read safety response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CheckResult{}, fmt.Errorf("safety service error: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var checkResp checkResponse
	if err := json.Unmarshal(body, &checkResp); err != nil {
		return CheckResult{}, fmt.Errorf("failed to parse safety response: %w", err)
	}

	if checkResp.Flagged {
		return CheckResult{Verdict: VerdictBlocked, Reason: checkResp.Reason}, nil
	}
	return CheckResult{Verdict: VerdictPass}, nil
}
