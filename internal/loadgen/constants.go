package loadgen

import "time"

// Defaults applied by Normalize.
const (
	DefaultBaseURL           = "http://localhost:9080"
	DefaultPlayers           = 100
	DefaultSessionsPerPlayer = 5
	DefaultOutOfOrderEvery   = 7
	DefaultBatchSize         = 10
	DefaultFetchLimit        = 20
	DefaultWorkers           = 8
	DefaultTimeout           = 10 * time.Second
	DefaultSettleTimeout     = 30 * time.Second
)

// tsLayout carries microseconds so the millisecond truncation is exercised.
const tsLayout = "2006-01-02T15:04:05.000000"

// outLayout is how the service renders session bounds.
const outLayout = "2006-01-02T15:04:05.000Z07:00"

const settlePollInterval = 50 * time.Millisecond

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.SessionsPerPlayer <= 0 {
		c.SessionsPerPlayer = DefaultSessionsPerPlayer
	}
	if c.OutOfOrderEvery < 0 {
		c.OutOfOrderEvery = 0
	}
	if c.BatchSize <= 0 || c.BatchSize > DefaultBatchSize {
		c.BatchSize = DefaultBatchSize
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = DefaultFetchLimit
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
}
