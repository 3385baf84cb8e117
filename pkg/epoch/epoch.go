// Package epoch implements the epoch clock: the single process-wide
// configuration converting wall-clock durations to epoch counts, used by
// recovery GC to decide commit cadence.
package epoch

import (
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// DefaultInterval is the default epoch interval.
const DefaultInterval = 10 * time.Second

// DefaultCooldown is the fixed cooldown applied by the default-next-awake
// rule when a partition returns no items and no explicit next-awake time.
const DefaultCooldown = time.Millisecond

// Interval is a validated, positive epoch interval. Zero value is invalid;
// always construct via NewInterval.
type Interval struct {
	d time.Duration
}

// NewInterval validates d and returns an Interval, or a *dataflow.ConfigError
// if d <= 0. Validation happens once, at construction, rather than on every
// EpochsPer call, so a misconfigured interval fails at startup instead of
// silently on first use.
func NewInterval(d time.Duration) (Interval, error) {
	if d <= 0 {
		return Interval{}, &dataflow.ConfigError{
			Component: "epoch.Interval",
			Reason:    "epoch_interval must be positive",
		}
	}
	return Interval{d: d}, nil
}

// MustInterval is NewInterval, panicking on error. Intended for package
// level defaults and tests, not for validating user-supplied config.
func MustInterval(d time.Duration) Interval {
	i, err := NewInterval(d)
	if err != nil {
		panic(err)
	}
	return i
}

// Duration returns the underlying interval.
func (i Interval) Duration() time.Duration { return i.d }

// EpochsPer returns ceil(d / interval), rounded up so recovery GC always
// retains at least d worth of epochs. Returns 0 iff d <= 0.
func (i Interval) EpochsPer(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	whole := d / i.d
	if d%i.d != 0 {
		whole++
	}
	return uint64(whole)
}
