package config

// GenesisAccount seeds an address with initial balances.
type GenesisAccount struct {
	Address           string `yaml:"address"`
	ParallelBalance   uint64 `yaml:"parallel_balance"`
	SequentialBalance uint64 `yaml:"sequential_balance"`
	Rolls             uint64 `yaml:"rolls"`
}

// GenesisConfig holds the chain parameters from genesis.yml
type GenesisConfig struct {
	ChainID         string           `yaml:"chain_id"`
	ThreadCount     uint8            `yaml:"thread_count"`
	PeriodsPerCycle uint64           `yaml:"periods_per_cycle"`
	Accounts        []GenesisAccount `yaml:"accounts"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
