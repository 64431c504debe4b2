package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, AppConfig)

	assert.Equal(t, 5, AppConfig.Pipeline.TopK)
	assert.Equal(t, 20, AppConfig.Pipeline.CandidatePool)
	assert.InDelta(t, 0.7, AppConfig.Pipeline.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.3, AppConfig.Pipeline.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.6, AppConfig.Pipeline.MinConfidence, 1e-9)
	assert.Equal(t, 3*time.Second, AppConfig.Pipeline.Timeouts.Telemetry)
	assert.False(t, AppConfig.Telemetry.Enabled)
}

func TestLoadConfigAliasTable(t *testing.T) {
	err := LoadConfig()
	require.NoError(t, err)

	aliases := AppConfig.Pipeline.EquipmentAliases
	assert.Equal(t, "SMT60", aliases["smt60"])
	assert.Equal(t, "SMT60", aliases["smt 60"])
	assert.Equal(t, "SMT130", aliases["smt130"])
	assert.Equal(t, "TM2500", aliases["tm2500"])
}

func TestValidateConfigRejectsBadWeights(t *testing.T) {
	require.NoError(t, LoadConfig())

	cfg := *AppConfig
	cfg.Pipeline.SemanticWeight = 0.9
	cfg.Pipeline.LexicalWeight = 0.3

	err := ValidateConfig(&cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestValidateConfigRejectsZeroTimeout(t *testing.T) {
	require.NoError(t, LoadConfig())

	cfg := *AppConfig
	cfg.Pipeline.Timeouts.LLM = 0

	err := ValidateConfig(&cfg)
	assert.Error(t, err)
}

func TestValidateConfigRejectsMissingModelKey(t *testing.T) {
	require.NoError(t, LoadConfig())

	cfg := *AppConfig
	cfg.Pipeline.PrimaryModelKey = ""

	err := ValidateConfig(&cfg)
	assert.Error(t, err)
}
