package scheduler

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Config struct {
	// RunInterval is how often RunForever fires the job pass.
	RunInterval time.Duration

	// MaxDispatchBatchSize caps how many draft invoices one dispatch pass
	// transmits.
	MaxDispatchBatchSize int

	// StaleSentAfter is how long an invoice may sit in SENT with no payment
	// event before the reconcile pass flags it.
	StaleSentAfter time.Duration

	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration

	// DisabledJobs lists job names to skip.
	DisabledJobs []string
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Minute
	}
	if c.MaxDispatchBatchSize <= 0 {
		c.MaxDispatchBatchSize = 100
	}
	if c.StaleSentAfter <= 0 {
		c.StaleSentAfter = 72 * time.Hour
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}

func (c Config) isJobEnabled(name string) bool {
	for _, disabled := range c.DisabledJobs {
		if disabled == name {
			return false
		}
	}
	return true
}
