package config

const (
	DefaultThreadCount     uint8  = 2
	DefaultPeriodsPerCycle uint64 = 128

	DefaultMaxReadOnlyGas      uint64 = 10_000_000
	DefaultNotificationBacklog        = 64
	DefaultEventChannelSize           = 50
)
