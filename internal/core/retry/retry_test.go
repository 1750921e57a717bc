package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(cfg Config) *Engine {
	return NewEngineWithSource(cfg, rand.NewSource(1))
}

func TestEngine_PolicyNone(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyNone})

	_, ok := e.Next(0, 0)
	assert.False(t, ok, "none policy must give up on the first failure")
}

func TestEngine_PolicyImmediate(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyImmediate, Ceiling: 10 * time.Second})

	for attempt := 0; attempt < 5; attempt++ {
		delay, ok := e.Next(attempt, time.Duration(attempt)*time.Second)
		require.True(t, ok)
		assert.Equal(t, time.Duration(0), delay)
	}
}

func TestEngine_PolicyInterval(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyInterval, Interval: 3 * time.Second})

	for attempt := 0; attempt < 5; attempt++ {
		delay, ok := e.Next(attempt, 0)
		require.True(t, ok)
		assert.Equal(t, 3*time.Second, delay)
	}
}

func TestEngine_PolicyExponential(t *testing.T) {
	e := newTestEngine(Config{
		Policy:   PolicyExponential,
		Base:     time.Second,
		MaxDelay: 10 * time.Second,
	})

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped
		10 * time.Second,
	}
	for attempt, want := range expected {
		delay, ok := e.Next(attempt, 0)
		require.True(t, ok)
		assert.Equal(t, want, delay, "attempt %d", attempt)
	}
}

func TestEngine_PolicyExponential_HugeAttemptDoesNotOverflow(t *testing.T) {
	e := newTestEngine(Config{
		Policy:   PolicyExponential,
		Base:     time.Second,
		MaxDelay: time.Minute,
	})

	delay, ok := e.Next(1000, 0)
	require.True(t, ok)
	assert.Equal(t, time.Minute, delay)
}

func TestEngine_PolicyExponentialJitter_Bounds(t *testing.T) {
	base := time.Second
	e := newTestEngine(Config{
		Policy:   PolicyExponentialJitter,
		Base:     base,
		MaxDelay: time.Minute,
		Jitter:   0.5,
	})

	for attempt := 0; attempt < 6; attempt++ {
		raw := base << uint(attempt)
		jitter := time.Duration(0.5 * float64(raw))
		for i := 0; i < 50; i++ {
			delay, ok := e.Next(attempt, 0)
			require.True(t, ok)
			assert.GreaterOrEqual(t, delay, raw-jitter)
			assert.LessOrEqual(t, delay, raw+jitter)
			assert.GreaterOrEqual(t, delay, time.Duration(0))
		}
	}
}

func TestEngine_PolicyRandom_Bounds(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyRandom, MaxDelay: 5 * time.Second})

	for i := 0; i < 100; i++ {
		delay, ok := e.Next(i, 0)
		require.True(t, ok)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.Less(t, delay, 5*time.Second)
	}
}

func TestEngine_CeilingGivesUpAllPolicies(t *testing.T) {
	policies := []Policy{
		PolicyImmediate,
		PolicyInterval,
		PolicyExponential,
		PolicyExponentialJitter,
		PolicyRandom,
	}

	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			e := newTestEngine(Config{
				Policy:   policy,
				Ceiling:  10 * time.Second,
				Base:     time.Second,
				Interval: time.Second,
				MaxDelay: time.Minute,
			})

			_, ok := e.Next(3, 9*time.Second)
			assert.True(t, ok, "inside ceiling")

			// Once elapsed exceeds the ceiling, every subsequent call
			// gives up.
			for attempt := 4; attempt < 8; attempt++ {
				_, ok = e.Next(attempt, 11*time.Second)
				assert.False(t, ok, "beyond ceiling")
			}
		})
	}
}

func TestEngine_ZeroCeilingRetriesForever(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyInterval, Interval: time.Second})

	_, ok := e.Next(10_000, 365*24*time.Hour)
	assert.True(t, ok, "zero ceiling means no elapsed-time give-up")
}

func TestEngine_ConfigDefaultsFilled(t *testing.T) {
	e := newTestEngine(Config{Policy: PolicyInterval})

	delay, ok := e.Next(0, 0)
	require.True(t, ok)
	assert.Positive(t, delay)
}
