package lending

import "math"

// Unrestricted is the MaxOutflow sentinel meaning no limit applies.
const Unrestricted = math.MaxUint64

// RateLimiterConfig bounds outflow over a sliding window measured in slots.
type RateLimiterConfig struct {
	WindowDuration uint64 `json:"windowDuration"`
	MaxOutflow     uint64 `json:"maxOutflow"`
}

// DefaultRateLimiterConfig imposes no restriction.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{WindowDuration: 1, MaxOutflow: Unrestricted}
}

// RateLimiter tracks the outflow recorded in the current window.
type RateLimiter struct {
	Config        RateLimiterConfig `json:"config"`
	WindowStart   uint64            `json:"windowStart"`
	WindowOutflow uint64            `json:"windowOutflow"`
}

// NewRateLimiter starts an empty window at slot.
func NewRateLimiter(cfg RateLimiterConfig, slot uint64) RateLimiter {
	return RateLimiter{Config: cfg, WindowStart: slot}
}

// SetConfig replaces the limits without touching the window counters, so a
// lowered maximum binds within the current window.
func (r *RateLimiter) SetConfig(cfg RateLimiterConfig) {
	r.Config = cfg
}

func (r *RateLimiter) windowExpired(slot uint64) (bool, error) {
	if slot < r.WindowStart {
		return false, ErrMathOverflow
	}
	return slot-r.WindowStart >= r.Config.WindowDuration, nil
}

// CheckAndUpdate records amount as outflow at slot. A rejected amount leaves
// the limiter untouched, including any pending window reset.
func (r *RateLimiter) CheckAndUpdate(amount, slot uint64) error {
	expired, err := r.windowExpired(slot)
	if err != nil {
		return err
	}
	start, outflow := r.WindowStart, r.WindowOutflow
	if expired {
		start, outflow = slot, 0
	}
	next := outflow + amount
	if next < outflow {
		if r.Config.MaxOutflow != Unrestricted {
			return ErrOutflowLimitExceeded
		}
		next = math.MaxUint64
	}
	if r.Config.MaxOutflow != Unrestricted && next > r.Config.MaxOutflow {
		return ErrOutflowLimitExceeded
	}
	r.WindowStart, r.WindowOutflow = start, next
	return nil
}

// Remaining reports how much outflow the window still admits at slot.
func (r RateLimiter) Remaining(slot uint64) (uint64, error) {
	if r.Config.MaxOutflow == Unrestricted {
		return Unrestricted, nil
	}
	expired, err := r.windowExpired(slot)
	if err != nil {
		return 0, err
	}
	outflow := r.WindowOutflow
	if expired {
		outflow = 0
	}
	if outflow >= r.Config.MaxOutflow {
		return 0, nil
	}
	return r.Config.MaxOutflow - outflow, nil
}
