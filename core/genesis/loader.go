package genesis

import (
	"fmt"
	"sort"

	"lendcore/core/state"
	"lendcore/crypto"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
	"lendcore/native/token"
)

var appliedKey = []byte("genesis/applied")

// Applied reports whether a genesis was already written to mgr and the unix
// genesis time it recorded.
func Applied(mgr *state.Manager) (bool, int64, error) {
	var (
		ts int64
		ok bool
	)
	err := mgr.View(func(tx *state.Tx) error {
		var stored uint64
		var err error
		ok, err = tx.KVGet(appliedKey, &stored)
		ts = int64(stored)
		return err
	})
	return ok, ts, err
}

// Apply writes spec into mgr in one transaction: mints sorted by symbol, then
// allocations sorted by account and symbol, then feeds at slot zero. It
// returns false without touching state when a genesis was already applied.
func Apply(spec *GenesisSpec, mgr *state.Manager) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if mgr == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	applied := false
	err := mgr.Update(func(tx *state.Tx) error {
		done, err := tx.KVGet(appliedKey, nil)
		if err != nil || done {
			return err
		}
		ledger := token.NewLedger(tx)

		tokens := append([]TokenSpec(nil), spec.Tokens...)
		sort.Slice(tokens, func(i, j int) bool {
			return nativecommon.NormalizeSymbol(tokens[i].Symbol) < nativecommon.NormalizeSymbol(tokens[j].Symbol)
		})
		authorities := make(map[string]crypto.Address, len(tokens))
		for _, t := range tokens {
			symbol := nativecommon.NormalizeSymbol(t.Symbol)
			if err := ledger.CreateMint(token.MintAddress(symbol), t.Decimals, t.authority); err != nil {
				return fmt.Errorf("create mint %q: %w", symbol, err)
			}
			authorities[symbol] = t.authority
		}

		for _, account := range sortedKeys(spec.Alloc) {
			owner, err := crypto.DecodeAddress(account)
			if err != nil {
				return fmt.Errorf("alloc[%q]: %w", account, err)
			}
			for _, symbol := range sortedKeys(spec.Alloc[account]) {
				key := nativecommon.NormalizeSymbol(symbol)
				if err := ledger.MintTo(token.MintAddress(key), authorities[key], owner, spec.Alloc[account][symbol]); err != nil {
					return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
				}
			}
		}

		feeds := oracle.NewRegistry(tx, nil)
		for _, f := range spec.Feeds {
			if _, err := feeds.InitFeed(f.publisher, f.Symbol, f.Price, f.Exponent, 0); err != nil {
				return fmt.Errorf("feed %q: %w", f.Symbol, err)
			}
		}

		if err := tx.KVPut(appliedKey, uint64(spec.GenesisTimestamp().Unix())); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
