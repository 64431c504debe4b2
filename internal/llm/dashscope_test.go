package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisops/assistant-go/internal/config"
)

func newTestDashScopeProvider(baseURL string) *DashScopeProvider {
	return NewDashScopeProvider(&config.AIConfig{
		DashScopeAPIKey:  "test-key",
		DashScopeBaseURL: baseURL,
	})
}

func TestDashScopeCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compatible-mode/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req dashScopeChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen-plus", req.Model)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Check the lube oil filter."}},
			},
		})
	}))
	defer server.Close()

	provider := newTestDashScopeProvider(server.URL)
	answer, err := provider.Complete(context.Background(), CompletionRequest{
		Model:    "qwen-plus",
		Messages: []Message{{Role: RoleUser, Content: "lube oil pressure low"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Check the lube oil filter.", answer)
}

func TestDashScopeCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"code":       "Throttling",
			"message":    "rate limit exceeded",
			"request_id": "req-123",
		})
	}))
	defer server.Close()

	provider := newTestDashScopeProvider(server.URL)
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Model:    "qwen-plus",
		Messages: []Message{{Role: RoleUser, Content: "test"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestDashScopeNotInitialized(t *testing.T) {
	provider := NewDashScopeProvider(&config.AIConfig{})
	assert.False(t, provider.Ready())

	_, err := provider.Complete(context.Background(), CompletionRequest{Model: "qwen-plus"})
	assert.Error(t, err)
}
