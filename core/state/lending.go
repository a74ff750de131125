package state

import (
	"lendcore/crypto"
	"lendcore/native/lending"
)

var (
	marketPrefix     = []byte("lending/market/")
	reservePrefix    = []byte("lending/reserve/")
	obligationPrefix = []byte("lending/obligation/")
	reserveIndexKey  = []byte("lending/reserve/index")
)

var _ lending.State = (*Tx)(nil)

func addressKey(prefix []byte, addr crypto.Address) []byte {
	return append(append([]byte(nil), prefix...), addr[:]...)
}

// GetMarket loads a lending market. Absent markets return nil, nil.
func (t *Tx) GetMarket(addr crypto.Address) (*lending.LendingMarket, error) {
	market := new(lending.LendingMarket)
	ok, err := t.KVGet(addressKey(marketPrefix, addr), market)
	if err != nil || !ok {
		return nil, err
	}
	return market, nil
}

func (t *Tx) PutMarket(market *lending.LendingMarket) error {
	return t.KVPut(addressKey(marketPrefix, market.Address), market)
}

// GetReserve loads a reserve. Absent reserves return nil, nil.
func (t *Tx) GetReserve(addr crypto.Address) (*lending.Reserve, error) {
	reserve := new(lending.Reserve)
	ok, err := t.KVGet(addressKey(reservePrefix, addr), reserve)
	if err != nil || !ok {
		return nil, err
	}
	return reserve, nil
}

// PutReserve stores reserve and appends it to the reserve index the first
// time it is written.
func (t *Tx) PutReserve(reserve *lending.Reserve) error {
	key := addressKey(reservePrefix, reserve.Address)
	exists, err := t.KVGet(key, nil)
	if err != nil {
		return err
	}
	if !exists {
		index, err := t.ReserveAddresses()
		if err != nil {
			return err
		}
		if err := t.KVPut(reserveIndexKey, append(index, reserve.Address)); err != nil {
			return err
		}
	}
	return t.KVPut(key, reserve)
}

// ReserveAddresses lists reserves in registration order.
func (t *Tx) ReserveAddresses() ([]crypto.Address, error) {
	var index []crypto.Address
	if _, err := t.KVGet(reserveIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// GetObligation loads an obligation. Absent obligations return nil, nil.
func (t *Tx) GetObligation(addr crypto.Address) (*lending.Obligation, error) {
	obligation := new(lending.Obligation)
	ok, err := t.KVGet(addressKey(obligationPrefix, addr), obligation)
	if err != nil || !ok {
		return nil, err
	}
	return obligation, nil
}

func (t *Tx) PutObligation(obligation *lending.Obligation) error {
	return t.KVPut(addressKey(obligationPrefix, obligation.Address), obligation)
}
