package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/solarisops/assistant-go/internal/config"
)

// Reading 单个传感器读数
type Reading struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot 某台设备的实时遥测快照
type Snapshot struct {
	EquipmentModel string    `json:"equipment_model"`
	Readings       []Reading `json:"readings"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Fetcher 遥测网关抽象
type Fetcher interface {
	Fetch(ctx context.Context, equipmentModel, sessionID string) (*Snapshot, error)
	Enabled() bool
}

// HTTPFetcher 通过HTTP网关拉取遥测数据
type HTTPFetcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
	enabled bool
}

// NewHTTPFetcher 创建遥测客户端
// 遥测属于可选依赖，超时必须收紧，不能拖慢整条问答链路
func NewHTTPFetcher(cfg *config.TelemetryConfig, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		enabled: cfg.Enabled && cfg.BaseURL != "",
	}
}

// Fetch 拉取指定设备的最新读数，会话ID随请求头带给网关做关联
func (f *HTTPFetcher) Fetch(ctx context.Context, equipmentModel, sessionID string) (*Snapshot, error) {
	if !f.enabled {
		return nil, fmt.Errorf("telemetry gateway is disabled")
	}
	if equipmentModel == "" {
		return nil, fmt.Errorf("equipment model is empty")
	}

	url := fmt.Sprintf("%s/api/v1/telemetry/%s/latest", f.baseURL, equipmentModel)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", f.apiKey))
	}
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telemetry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telemetry gateway error: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse telemetry response: %w", err)
	}
	if snapshot.EquipmentModel == "" {
		snapshot.EquipmentModel = equipmentModel
	}

	return &snapshot, nil
}

func (f *HTTPFetcher) Enabled() bool {
	return f.enabled
}

// Format 把快照渲染成提示词可用的文本
func (s *Snapshot) Format() string {
	if s == nil || len(s.Readings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Live telemetry for %s:\n", s.EquipmentModel))
	for _, r := range s.Readings {
		sb.WriteString(fmt.Sprintf("- %s: %.2f %s\n", r.Name, r.Value, r.Unit))
	}
	return strings.TrimRight(sb.String(), "\n")
}
