package lending

// staleAfterSlots is the number of elapsed slots after which a cached
// valuation is considered stale.
const staleAfterSlots = 1

// LastUpdate is the staleness clock carried by reserves and obligations.
type LastUpdate struct {
	Slot  uint64 `json:"slot"`
	Stale bool   `json:"stale"`
}

// NewLastUpdate starts stale so the first use forces a refresh.
func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

// SlotsElapsed returns slot minus the recorded slot.
func (l LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	return checkedSubUint64(slot, l.Slot)
}

// Update records a refresh at slot.
func (l *LastUpdate) Update(slot uint64) {
	l.Slot = slot
	l.Stale = false
}

func (l *LastUpdate) MarkStale() { l.Stale = true }

// IsStale reports whether the record must be refreshed before use at slot.
func (l LastUpdate) IsStale(slot uint64) (bool, error) {
	elapsed, err := l.SlotsElapsed(slot)
	if err != nil {
		return true, err
	}
	return l.Stale || elapsed >= staleAfterSlots, nil
}

// IsFresh reports whether the record was refreshed at slot and not mutated since.
func (l LastUpdate) IsFresh(slot uint64) bool {
	stale, err := l.IsStale(slot)
	return err == nil && !stale
}
