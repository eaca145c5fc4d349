package configuration

import (
	"time"

	"github.com/pkg/errors"
)

type PostgresConfig struct {
	// Maximum connections in the pool.  Sized to the worker count by Run so
	// that each worker can hold one connection for its whole lifetime.
	MaxOpenConns int
	Connection   map[string]string
}

type AqGenConfiguration struct {
	// Database configuration
	Postgres PostgresConfig
	// Inclusive bounds of the generated time range
	Start time.Time
	End   time.Time
	// Spacing between consecutive time points: second, minute or hour
	Interval string
	// Number of simulated devices; one record per device per time point
	DeviceCount int
	// Number of generation workers; also the connection pool size
	Workers int
	// Number of records committed together in one transaction attempt
	BatchSize int
	// Upper bound on generated records across the whole run; 0 means no limit
	MaxRecords int64
	// Time workers are given to drain after a shutdown request
	ShutdownGracePeriod time.Duration
	// Port for the prometheus metrics endpoint; 0 disables it
	MetricsPort uint16
}

// IntervalDuration maps the configured interval unit to a time.Duration.
func (c *AqGenConfiguration) IntervalDuration() (time.Duration, error) {
	switch c.Interval {
	case "second":
		return time.Second, nil
	case "minute":
		return time.Minute, nil
	case "hour":
		return time.Hour, nil
	}
	return 0, errors.Errorf("unknown interval %q: must be second, minute or hour", c.Interval)
}
