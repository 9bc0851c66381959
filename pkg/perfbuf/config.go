package perfbuf

import "errors"

// Config controls how the Manager acquires and multiplexes rings.
type Config struct {
	// Source provides the backing region and readiness descriptor for
	// each per-CPU ring. Defaults to MemfdSource, which serves
	// same-process producers; kernel-backed deployments inject a source
	// built on perf_event descriptors.
	Source RingSource

	// MaxEpollEvents bounds how many readiness events one wait collects.
	MaxEpollEvents int
}

// NewDefaultConfig returns a config suitable for same-process use.
func NewDefaultConfig() *Config {
	return &Config{
		Source:         NewMemfdSource(),
		MaxEpollEvents: 64,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Source == nil {
		return errors.New("ring source is required")
	}
	if c.MaxEpollEvents <= 0 {
		return errors.New("max epoll events must be positive")
	}
	return nil
}
