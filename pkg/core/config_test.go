package core_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/core"
	"github.com/leafmind/leafmind-go/pkg/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := core.DefaultConfig()

	assert.Equal(t, 0.1, cfg.Memory.LearningRate)
	assert.Equal(t, 0.01, cfg.Memory.DecayRate)
	assert.Equal(t, 0.5, cfg.Memory.ConsolidationThreshold)
	assert.Equal(t, 10000, cfg.Memory.MaxShortTermConnections)
	assert.Equal(t, 24, cfg.Memory.ConsolidationIntervalHours)
	assert.Equal(t, 20, cfg.Memory.MaxRecallResults)

	assert.Equal(t, 300, cfg.Persistence.AutoSaveIntervalSeconds)
	assert.Equal(t, 1000, cfg.Persistence.BatchSize)
	assert.True(t, cfg.Persistence.EnableCompression)
	assert.Equal(t, 100000, cfg.Persistence.MaxCacheSize)
	assert.True(t, cfg.Persistence.EnableWAL)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Persistence.DBPath = ""
	assert.ErrorIs(t, cfg.Validate(), memory.ErrInvalidConfig)

	cfg = core.DefaultConfig()
	cfg.Memory.LearningRate = 0
	assert.ErrorIs(t, cfg.Validate(), memory.ErrInvalidConfig)

	cfg = core.DefaultConfig()
	cfg.Persistence.BatchSize = 0
	assert.ErrorIs(t, cfg.Validate(), memory.ErrInvalidConfig)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LEAFMIND_DB_PATH", "/tmp/env.db")
	t.Setenv("LEAFMIND_BATCH_SIZE", "250")
	t.Setenv("LEAFMIND_COMPRESSION", "false")
	t.Setenv("LEAFMIND_LEARNING_RATE", "0.2")
	t.Setenv("LEAFMIND_API_KEY", "secret")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.Persistence.DBPath)
	assert.Equal(t, 250, cfg.Persistence.BatchSize)
	assert.False(t, cfg.Persistence.EnableCompression)
	assert.Equal(t, 0.2, cfg.Memory.LearningRate)
	assert.Equal(t, "secret", cfg.APIKey)

	// Unset variables keep their defaults.
	assert.Equal(t, 0.01, cfg.Memory.DecayRate)
	assert.True(t, cfg.Persistence.EnableWAL)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := map[string]interface{}{
		"memory": map[string]interface{}{
			"learning_rate": 0.33,
		},
		"persistence": map[string]interface{}{
			"db_path": "/tmp/from-json.db",
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 0.33, cfg.Memory.LearningRate)
	assert.Equal(t, "/tmp/from-json.db", cfg.Persistence.DBPath)

	_, err = core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
