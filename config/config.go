package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genesis config: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode genesis config: %w", err)
	}
	if cfgFile.Config.ThreadCount == 0 {
		cfgFile.Config.ThreadCount = DefaultThreadCount
	}
	if cfgFile.Config.PeriodsPerCycle == 0 {
		cfgFile.Config.PeriodsPerCycle = DefaultPeriodsPerCycle
	}
	return &cfgFile.Config, nil
}

// ExecutionConfig holds execution tuning knobs from an .ini file
type ExecutionConfig struct {
	DataDir             string `ini:"data_dir"`
	MaxReadOnlyGas      uint64 `ini:"max_readonly_gas"`
	NotificationBacklog int    `ini:"notification_backlog"`
	EventChannelSize    int    `ini:"event_channel_size"`
}

// DefaultExecutionConfig returns the tuning knobs used when no .ini file
// is provided.
func DefaultExecutionConfig() *ExecutionConfig {
	return &ExecutionConfig{
		DataDir:             "./data",
		MaxReadOnlyGas:      DefaultMaxReadOnlyGas,
		NotificationBacklog: DefaultNotificationBacklog,
		EventChannelSize:    DefaultEventChannelSize,
	}
}

// LoadExecutionConfig reads execution config from an .ini file
func LoadExecutionConfig(path string) (*ExecutionConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	execSection := cfg.Section("execution")
	execCfg := DefaultExecutionConfig()
	err = execSection.MapTo(execCfg)
	if err != nil {
		return nil, err
	}
	return execCfg, nil
}
