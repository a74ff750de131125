package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the expected on-disk schema layout. Increment it
// whenever a stored record changes shape.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// StateVersion returns the stored schema version and whether it was present.
func (t *Tx) StateVersion() (uint32, bool, error) {
	var stored uint64
	ok, err := t.KVGet(stateVersionKey, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion stamps an empty database with StateVersion and rejects
// databases written by a different schema unless allowMigrate is set.
func (m *Manager) EnsureStateVersion(allowMigrate bool) error {
	return m.Update(func(tx *Tx) error {
		version, ok, err := tx.StateVersion()
		if err != nil {
			return err
		}
		if !ok {
			return tx.KVPut(stateVersionKey, uint64(StateVersion))
		}
		if version != StateVersion && !allowMigrate {
			return fmt.Errorf("%w: have %d, want %d", ErrStateVersionMismatch, version, StateVersion)
		}
		return nil
	})
}
