package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.Watcher.CapacityPerConnection)
	assert.Equal(t, 500, cfg.Watcher.DedupCacheSize)
	assert.Equal(t, []float64{2.0, 1.5, 1.0, 0.75, 0.5}, cfg.Rewards.RankMultipliers)
	assert.Equal(t, 0.5, cfg.Rewards.AdjustmentFloor)
	assert.Equal(t, 7*24*time.Hour, cfg.EpochDuration())
	assert.Less(t, cfg.LeaseTTL(), cfg.TickInterval())
}

func TestValidate_WeightsMustSumOne(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.WeightSortino = 0.5 // suma 1.10
	assert.Error(t, cfg.Validate())
}

func TestValidate_CapacityPositive(t *testing.T) {
	cfg := validConfig()
	cfg.Watcher.CapacityPerConnection = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_BackoffBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Watcher.MaxBackoffSeconds = 2 // < initial
	assert.Error(t, cfg.Validate())
}

func TestValidate_JitterRange(t *testing.T) {
	cfg := validConfig()
	cfg.Watcher.BackoffJitterPct = 1.0
	assert.Error(t, cfg.Validate())
}

func TestValidate_LeaseShorterThanTick(t *testing.T) {
	// Un holder muerto no debe bloquear el siguiente tick.
	cfg := validConfig()
	cfg.Epoch.LeaseTTLSeconds = cfg.Epoch.TickSeconds
	assert.Error(t, cfg.Validate())
}

func TestValidate_MultipliersNotEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Rewards.RankMultipliers = nil
	// setDefaults ya corrió: vaciar después simula un YAML con lista vacía.
	assert.Error(t, cfg.Validate())
}

func TestValidate_AdjustmentFloorRange(t *testing.T) {
	cfg := validConfig()
	cfg.Rewards.AdjustmentFloor = 1.5
	assert.Error(t, cfg.Validate())
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
epoch:
  duration_minutes: 60
watcher:
  capacity_per_connection: 50
storage:
  dsn: ":memory:"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.EpochDuration())
	assert.Equal(t, 50, cfg.Watcher.CapacityPerConnection)
	// Lo no especificado cae en los defaults documentados.
	assert.Equal(t, 0.40, cfg.Scoring.WeightSortino)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scoring:
  weight_sortino: 0.9
  weight_win_rate: 0.9
  weight_consistency: 0.1
  weight_recovery_factor: 0.05
  weight_volume: 0.05
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
