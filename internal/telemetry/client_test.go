package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisops/assistant-go/internal/config"
)

func TestFetchReturnsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/telemetry/SMT60/latest", r.URL.Path)
		assert.Equal(t, "session-1", r.Header.Get("X-Session-Id"))
		json.NewEncoder(w).Encode(Snapshot{
			EquipmentModel: "SMT60",
			Readings: []Reading{
				{Name: "lube_oil_pressure", Value: 42.5, Unit: "psi"},
				{Name: "exhaust_temp", Value: 512.0, Unit: "C"},
			},
		})
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(&config.TelemetryConfig{Enabled: true, BaseURL: server.URL}, time.Second)
	snapshot, err := fetcher.Fetch(context.Background(), "SMT60", "session-1")
	require.NoError(t, err)
	assert.Equal(t, "SMT60", snapshot.EquipmentModel)
	assert.Len(t, snapshot.Readings, 2)
}

func TestFetchGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(&config.TelemetryConfig{Enabled: true, BaseURL: server.URL}, time.Second)
	_, err := fetcher.Fetch(context.Background(), "SMT60", "session-1")
	assert.Error(t, err)
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(&config.TelemetryConfig{Enabled: true, BaseURL: server.URL}, 50*time.Millisecond)
	_, err := fetcher.Fetch(context.Background(), "SMT60", "session-1")
	assert.Error(t, err)
}

func TestFetchDisabled(t *testing.T) {
	fetcher := NewHTTPFetcher(&config.TelemetryConfig{Enabled: false}, time.Second)
	assert.False(t, fetcher.Enabled())

	_, err := fetcher.Fetch(context.Background(), "SMT60", "session-1")
	assert.Error(t, err)
}

func TestSnapshotFormat(t *testing.T) {
	snapshot := &Snapshot{
		EquipmentModel: "TM2500",
		Readings: []Reading{
			{Name: "vibration", Value: 1.2, Unit: "mm/s"},
		},
	}
	text := snapshot.Format()
	assert.Contains(t, text, "Live telemetry for TM2500")
	assert.Contains(t, text, "vibration: 1.20 mm/s")

	var empty *Snapshot
	assert.Equal(t, "", empty.Format())
}
