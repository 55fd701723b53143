package config

import "time"

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPGMaxConns      = 10
	DefaultPGMinConns      = 1
	DefaultProviderTimeout = 10 * time.Second
)
