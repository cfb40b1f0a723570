package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCoordinatorConfigParsesPoolsAndDevices(t *testing.T) {
	path := writeTempConfig(t, `
strategy: load_balance
pools:
  - url: stratum+tcp://pool-a.example:3333
    user: worker1
    pass: x
    priority: 0
    quota: 2
  - url: stratum+tcp://pool-b.example:3333
    user: worker1
    pass: x
    priority: 1
    quota: 1
devices:
  - driver: bitmain_s9
    count: 4
`)

	cfg, err := LoadCoordinatorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "load_balance", cfg.Strategy)
	require.Len(t, cfg.Pools, 2)
	assert.Equal(t, "stratum+tcp://pool-a.example:3333", cfg.Pools[0].URL)
	assert.Equal(t, 2, cfg.Pools[0].Quota)

	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "bitmain_s9", cfg.Devices[0].DriverID)
	assert.Equal(t, 4, cfg.Devices[0].Count)
	assert.Equal(t, 5*time.Minute, cfg.Devices[0].HashrateWindow)
}

func TestLoadCoordinatorConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
pools:
  - url: stratum+tcp://solo.example:3333
`)

	cfg, err := LoadCoordinatorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "failover", cfg.Strategy)
	assert.Equal(t, ":9090", cfg.StatusAddr)
	assert.Equal(t, time.Minute, cfg.StatsLogInterval)
}

func TestLoadCoordinatorConfigMissingFileErrors(t *testing.T) {
	_, err := LoadCoordinatorConfig("/nonexistent/path/coordinator.yaml")
	require.Error(t, err)
}
