package core

import (
	"sync"
	"time"
)

// SlotClock supplies the slot used for staleness and rate limiting.
type SlotClock interface {
	Slot() uint64
}

// WallClock derives slots from elapsed wall time since Genesis.
type WallClock struct {
	Genesis      time.Time
	SlotDuration time.Duration
	now          func() time.Time
}

// NewWallClock returns a clock ticking one slot per slotDuration.
func NewWallClock(genesis time.Time, slotDuration time.Duration) *WallClock {
	return &WallClock{Genesis: genesis, SlotDuration: slotDuration, now: time.Now}
}

// Slot returns the number of whole slots elapsed since genesis. Times before
// genesis map to slot zero.
func (c *WallClock) Slot() uint64 {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if c.SlotDuration <= 0 {
		return 0
	}
	elapsed := now().Sub(c.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.SlotDuration)
}

// ManualClock is a SlotClock advanced explicitly.
type ManualClock struct {
	mu   sync.Mutex
	slot uint64
}

func NewManualClock(slot uint64) *ManualClock { return &ManualClock{slot: slot} }

func (c *ManualClock) Slot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

func (c *ManualClock) Set(slot uint64) {
	c.mu.Lock()
	c.slot = slot
	c.mu.Unlock()
}

// Advance moves the clock forward by n slots.
func (c *ManualClock) Advance(n uint64) {
	c.mu.Lock()
	c.slot += n
	c.mu.Unlock()
}
