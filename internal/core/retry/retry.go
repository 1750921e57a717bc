// Package retry computes reconnection delays. The engine is a pure function
// of its configuration, the attempt number, and the time elapsed since the
// first failure; it never reads the wall clock itself, which keeps
// retry-timing tests deterministic.
package retry

import (
	"math/rand"
	"time"
)

// Policy selects how the delay between reconnection attempts evolves.
type Policy int

const (
	// PolicyNone never retries; the first failure is terminal.
	PolicyNone Policy = iota
	// PolicyImmediate retries with zero delay until the ceiling elapses.
	PolicyImmediate
	// PolicyInterval retries with a fixed delay between attempts.
	PolicyInterval
	// PolicyExponentialJitter doubles the delay per attempt with random
	// jitter applied to the computed value.
	PolicyExponentialJitter
	// PolicyExponential doubles the delay per attempt, no jitter.
	PolicyExponential
	// PolicyRandom draws each delay uniformly from [0, MaxDelay).
	PolicyRandom
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyImmediate:
		return "immediate"
	case PolicyInterval:
		return "interval"
	case PolicyExponentialJitter:
		return "exponential_jitter"
	case PolicyExponential:
		return "exponential"
	case PolicyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Config parameterizes the engine.
type Config struct {
	Policy Policy
	// Ceiling bounds the total elapsed time since the first failure.
	// Zero means retry indefinitely.
	Ceiling time.Duration
	// Interval is the fixed delay for PolicyInterval.
	Interval time.Duration
	// Base is the first-attempt delay for the exponential policies.
	Base time.Duration
	// MaxDelay caps the delay of any single attempt.
	MaxDelay time.Duration
	// Jitter is the fraction of the computed delay used as the jitter
	// bound for PolicyExponentialJitter.
	Jitter float64
}

// DefaultConfig matches the default reconnect behavior: exponential backoff
// with jitter and no overall ceiling.
func DefaultConfig() Config {
	return Config{
		Policy:   PolicyExponentialJitter,
		Ceiling:  0,
		Interval: 5 * time.Second,
		Base:     time.Second,
		MaxDelay: time.Minute,
		Jitter:   0.25,
	}
}

// Engine computes the delay before the next reconnection attempt.
type Engine struct {
	cfg Config
	rng *rand.Rand
}

func NewEngine(cfg Config) *Engine {
	return NewEngineWithSource(cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewEngineWithSource allows a seeded source for deterministic tests.
func NewEngineWithSource(cfg Config, src rand.Source) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	return &Engine{cfg: cfg, rng: rand.New(src)}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Next returns the delay before attempt number attempt (zero-based) and
// whether a retry should happen at all. ok == false means give up: either
// the policy never retries or elapsed exceeded the ceiling.
func (e *Engine) Next(attempt int, elapsed time.Duration) (delay time.Duration, ok bool) {
	if e.cfg.Policy == PolicyNone {
		return 0, false
	}
	if e.cfg.Ceiling > 0 && elapsed > e.cfg.Ceiling {
		return 0, false
	}

	switch e.cfg.Policy {
	case PolicyImmediate:
		return 0, true
	case PolicyInterval:
		return e.cfg.Interval, true
	case PolicyExponential:
		return e.exponential(attempt), true
	case PolicyExponentialJitter:
		d := e.exponential(attempt)
		jitter := time.Duration(e.cfg.Jitter * float64(d))
		if jitter > 0 {
			d += time.Duration(e.rng.Int63n(int64(2*jitter))) - jitter
		}
		if d < 0 {
			d = 0
		}
		return d, true
	case PolicyRandom:
		return time.Duration(e.rng.Int63n(int64(e.cfg.MaxDelay))), true
	default:
		return 0, false
	}
}

func (e *Engine) exponential(attempt int) time.Duration {
	// Shifts beyond 62 bits would overflow long before MaxDelay matters.
	if attempt > 30 {
		attempt = 30
	}
	d := e.cfg.Base << uint(attempt)
	if d > e.cfg.MaxDelay || d <= 0 {
		d = e.cfg.MaxDelay
	}
	return d
}
