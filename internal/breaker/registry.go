package breaker

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the defaults applied to breakers created by a Registry.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// breaker (default: 5).
	FailureThreshold int `koanf:"failure_threshold"`

	// ResetTimeout is how long an open breaker rejects calls before
	// admitting a trial (default: 30s).
	ResetTimeout time.Duration `koanf:"reset_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Registry creates and tracks breakers keyed by dependency name.
type Registry struct {
	config *Config
	clock  func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry. If cfg is nil, DefaultConfig() is used.
func NewRegistry(cfg *Config) *Registry {
	return newRegistry(cfg, time.Now)
}

// newRegistry allows tests to inject a fake clock.
func newRegistry(cfg *Config, clock func() time.Time) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Registry{
		config:   cfg,
		clock:    clock,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = newBreaker(name, r.config.FailureThreshold, r.config.ResetTimeout, r.clock)
		r.breakers[name] = b
	}
	return b
}

// Status returns snapshots for every registered breaker.
func (r *Registry) Status() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Status()
	}
	return out
}

// Reset forces one named breaker back to CLOSED.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBreaker, name)
	}
	b.reset()
	return nil
}

// ResetAll forces every registered breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.reset()
	}
}
