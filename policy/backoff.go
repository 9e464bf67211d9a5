package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Default retry timing, matching the service's published client defaults.
const (
	DefaultInitialBackoff    = 5 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
	DefaultMaxElapsedBackoff = 60 * time.Second
)

// BackoffConfig is the shared numeric retry policy.
type BackoffConfig struct {
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff" toml:"initial_backoff"`

	// Multiplier scales the delay after each attempt. Must be >= 1.
	Multiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`

	// MaxElapsed bounds the total time spent retrying one call.
	MaxElapsed time.Duration `yaml:"max_elapsed_backoff" toml:"max_elapsed_backoff"`
}

// DefaultBackoffConfig returns the default backoff policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialBackoff: DefaultInitialBackoff,
		Multiplier:     DefaultBackoffMultiplier,
		MaxElapsed:     DefaultMaxElapsedBackoff,
	}
}

// Validate checks the numeric bounds of the policy.
//
// Returns:
//   - error: Validation error wrapping types.ErrInvalidConfig, or nil if valid
func (c BackoffConfig) Validate() error {
	var errs []error
	if c.InitialBackoff <= 0 {
		errs = append(errs, fmt.Errorf("initial backoff must be positive, got %s", c.InitialBackoff))
	}
	if c.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("backoff multiplier must be >= 1, got %g", c.Multiplier))
	}
	if c.MaxElapsed < c.InitialBackoff {
		errs = append(errs, fmt.Errorf("max elapsed backoff %s is shorter than initial backoff %s", c.MaxElapsed, c.InitialBackoff))
	}
	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
}

// Backoff tracks the retry schedule of a single call.
//
// The first delay is InitialBackoff; each following delay is multiplied by
// Multiplier. Next reports false once the next delay would push the total
// time since the first attempt past MaxElapsed. A Backoff is not safe for
// concurrent use; each call owns its own.
type Backoff struct {
	exp *backoff.ExponentialBackOff
}

// NewBackoff starts a retry schedule at clock.Now().
//
// Parameters:
//   - cfg: The backoff policy
//   - clock: Time source (types.SystemClock{} if nil)
//
// Returns:
//   - *Backoff: A schedule whose elapsed time starts now
func NewBackoff(cfg BackoffConfig, clock types.Clock) *Backoff {
	if clock == nil {
		clock = types.SystemClock{}
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxElapsed,
		MaxElapsedTime:      cfg.MaxElapsed,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	exp.Reset()

	return &Backoff{exp: exp}
}

// Next returns the delay before the next attempt.
//
// Returns:
//   - time.Duration: Delay to wait
//   - bool: false if the elapsed-time budget is exhausted
func (b *Backoff) Next() (time.Duration, bool) {
	d := b.exp.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}

	return d, true
}

// Elapsed returns the time since the schedule started.
func (b *Backoff) Elapsed() time.Duration {
	return b.exp.GetElapsedTime()
}
