package state

import "lendcore/crypto"

var noncePrefix = []byte("account/nonce/")

// Nonce returns the last nonce accepted from addr, zero when none was.
func (t *Tx) Nonce(addr crypto.Address) (uint64, error) {
	var nonce uint64
	if _, err := t.KVGet(addressKey(noncePrefix, addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (t *Tx) SetNonce(addr crypto.Address, nonce uint64) error {
	return t.KVPut(addressKey(noncePrefix, addr), nonce)
}
