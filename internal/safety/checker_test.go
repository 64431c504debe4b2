package safety

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solarisops/assistant-go/internal/config"
)

func TestCheckPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/moderate", r.URL.Path)
		var req checkRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, []string{"smt60_manual.pdf"}, req.ContextRefs)
		json.NewEncoder(w).Encode(checkResponse{Flagged: false})
	}))
	defer server.Close()

	checker := NewHTTPChecker(&config.SafetyConfig{BaseURL: server.URL}, time.Second)
	result := checker.Check(context.Background(), "Check the lube oil filter per the manual.", []string{"smt60_manual.pdf"})
	assert.Equal(t, VerdictPass, result.Verdict)
}

func TestCheckBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(checkResponse{Flagged: true, Reason: "unsafe instruction"})
	}))
	defer server.Close()

	checker := NewHTTPChecker(&config.SafetyConfig{BaseURL: server.URL}, time.Second)
	result := checker.Check(context.Background(), "bypass the overspeed trip", nil)
	assert.Equal(t, VerdictBlocked, result.Verdict)
	assert.Equal(t, "unsafe instruction", result.Reason)
}

func TestCheckRetriesOnceThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(checkResponse{Flagged: false})
	}))
	defer server.Close()

	checker := NewHTTPChecker(&config.SafetyConfig{BaseURL: server.URL}, time.Second)
	result := checker.Check(context.Background(), "some answer", nil)
	assert.Equal(t, VerdictPass, result.Verdict)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCheckUnavailableAfterRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewHTTPChecker(&config.SafetyConfig{BaseURL: server.URL}, time.Second)
	result := checker.Check(context.Background(), "some answer", nil)
	assert.Equal(t, VerdictUnavailable, result.Verdict)
}

func TestCheckNotConfigured(t *testing.T) {
	checker := NewHTTPChecker(&config.SafetyConfig{}, time.Second)
	result := checker.Check(context.Background(), "some answer", nil)
	assert.Equal(t, VerdictUnavailable, result.Verdict)
}
