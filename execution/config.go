package execution

import (
	"github.com/quartzchain/quartz/config"
)

// RollPrice is the sequential-balance price of one roll.
const RollPrice uint64 = 100

// Config carries the chain parameters and tuning knobs of the
// execution core.
type Config struct {
	ThreadCount         uint8
	PeriodsPerCycle     uint64
	MaxReadOnlyGas      uint64
	NotificationBacklog int
	GenesisAccounts     []config.GenesisAccount
}

// ConfigFromFiles assembles an execution Config from the loaded genesis
// and tuning configs.
func ConfigFromFiles(genesis *config.GenesisConfig, exec *config.ExecutionConfig) *Config {
	return &Config{
		ThreadCount:         genesis.ThreadCount,
		PeriodsPerCycle:     genesis.PeriodsPerCycle,
		MaxReadOnlyGas:      exec.MaxReadOnlyGas,
		NotificationBacklog: exec.NotificationBacklog,
		GenesisAccounts:     genesis.Accounts,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.ThreadCount == 0 {
		out.ThreadCount = config.DefaultThreadCount
	}
	if out.PeriodsPerCycle == 0 {
		out.PeriodsPerCycle = config.DefaultPeriodsPerCycle
	}
	if out.MaxReadOnlyGas == 0 {
		out.MaxReadOnlyGas = config.DefaultMaxReadOnlyGas
	}
	if out.NotificationBacklog == 0 {
		out.NotificationBacklog = config.DefaultNotificationBacklog
	}
	return &out
}
