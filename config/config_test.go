package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadGenesisConfig(t *testing.T) {
	path := writeFile(t, "genesis.yml", `
config:
  chain_id: "quartz-test"
  thread_count: 4
  periods_per_cycle: 64
  accounts:
    - address: "alice"
      parallel_balance: 100
      sequential_balance: 50
      rolls: 3
`)

	cfg, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "quartz-test", cfg.ChainID)
	assert.Equal(t, uint8(4), cfg.ThreadCount)
	assert.Equal(t, uint64(64), cfg.PeriodsPerCycle)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice", cfg.Accounts[0].Address)
	assert.Equal(t, uint64(100), cfg.Accounts[0].ParallelBalance)
	assert.Equal(t, uint64(3), cfg.Accounts[0].Rolls)
}

func TestLoadGenesisConfigDefaults(t *testing.T) {
	path := writeFile(t, "genesis.yml", `
config:
  chain_id: "quartz-test"
`)

	cfg, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreadCount, cfg.ThreadCount)
	assert.Equal(t, DefaultPeriodsPerCycle, cfg.PeriodsPerCycle)
}

func TestLoadGenesisConfigMissingFile(t *testing.T) {
	_, err := LoadGenesisConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadExecutionConfig(t *testing.T) {
	path := writeFile(t, "execution.ini", `
[execution]
data_dir = /tmp/quartz-test
max_readonly_gas = 5000000
notification_backlog = 32
event_channel_size = 10
`)

	cfg, err := LoadExecutionConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/quartz-test", cfg.DataDir)
	assert.Equal(t, uint64(5_000_000), cfg.MaxReadOnlyGas)
	assert.Equal(t, 32, cfg.NotificationBacklog)
	assert.Equal(t, 10, cfg.EventChannelSize)
}

func TestLoadExecutionConfigDefaults(t *testing.T) {
	path := writeFile(t, "execution.ini", "[execution]\n")

	cfg, err := LoadExecutionConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxReadOnlyGas, cfg.MaxReadOnlyGas)
	assert.Equal(t, DefaultNotificationBacklog, cfg.NotificationBacklog)
}
