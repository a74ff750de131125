package token

import (
	"errors"
	"fmt"

	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

// Storage abstracts the subset of state manager functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	ErrMintExists          = errors.New("token: mint already exists")
	ErrUnknownMint         = errors.New("token: unknown mint")
	ErrMintAuthority       = errors.New("token: signer is not the mint authority")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrSupplyOverflow      = errors.New("token: supply overflow")
)

var (
	mintPrefix    = []byte("token/mint/")
	balancePrefix = []byte("token/balance/")
	mintIndexKey  = []byte("token/mint/index")
)

func mintKey(mint crypto.Address) []byte {
	return append(append([]byte(nil), mintPrefix...), mint[:]...)
}

func balanceKey(mint, owner crypto.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+2*crypto.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, mint[:]...)
	return append(buf, owner[:]...)
}

// MintAddress is the canonical mint of a genesis token symbol.
func MintAddress(symbol string) crypto.Address {
	return crypto.DeriveAddress("mint", []byte(nativecommon.NormalizeSymbol(symbol)))
}

// Mint describes a fungible asset.
type Mint struct {
	Address   crypto.Address
	Decimals  uint8
	Authority crypto.Address
	Supply    uint64
}

// Ledger keeps mint metadata and per-owner balances in the key-value store.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) ready() error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	return nil
}

// Mint loads the metadata of mint. Unknown mints return ErrUnknownMint.
func (l *Ledger) Mint(mint crypto.Address) (*Mint, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var record Mint
	ok, err := l.store.KVGet(mintKey(mint), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return &record, nil
}

// Mints lists every mint in creation order.
func (l *Ledger) Mints() ([]crypto.Address, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var index []crypto.Address
	if _, err := l.store.KVGet(mintIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// CreateMint registers a new asset. The authority is the only account able to
// mint new units.
func (l *Ledger) CreateMint(mint crypto.Address, decimals uint8, authority crypto.Address) error {
	if err := l.ready(); err != nil {
		return err
	}
	if mint.IsZero() || authority.IsZero() {
		return fmt.Errorf("token: mint and authority must be set")
	}
	ok, err := l.store.KVGet(mintKey(mint), nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrMintExists, mint)
	}
	index, err := l.Mints()
	if err != nil {
		return err
	}
	if err := l.store.KVPut(mintIndexKey, append(index, mint)); err != nil {
		return err
	}
	return l.store.KVPut(mintKey(mint), &Mint{Address: mint, Decimals: decimals, Authority: authority})
}

func (l *Ledger) MintDecimals(mint crypto.Address) (uint8, error) {
	record, err := l.Mint(mint)
	if err != nil {
		return 0, err
	}
	return record.Decimals, nil
}

// BalanceOf returns owner's balance of mint. Absent balances are zero.
func (l *Ledger) BalanceOf(mint, owner crypto.Address) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	var balance uint64
	if _, err := l.store.KVGet(balanceKey(mint, owner), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (l *Ledger) setBalance(mint, owner crypto.Address, amount uint64) error {
	return l.store.KVPut(balanceKey(mint, owner), amount)
}

// MintTo creates amount new units for to. Only the mint authority may call it.
func (l *Ledger) MintTo(mint, authority, to crypto.Address, amount uint64) error {
	record, err := l.Mint(mint)
	if err != nil {
		return err
	}
	if record.Authority != authority {
		return ErrMintAuthority
	}
	if amount == 0 {
		return nil
	}
	supply := record.Supply + amount
	if supply < record.Supply {
		return ErrSupplyOverflow
	}
	balance, err := l.BalanceOf(mint, to)
	if err != nil {
		return err
	}
	record.Supply = supply
	if err := l.store.KVPut(mintKey(mint), record); err != nil {
		return err
	}
	// balance <= supply, so this cannot wrap
	return l.setBalance(mint, to, balance+amount)
}

// Burn destroys amount of from's units.
func (l *Ledger) Burn(mint, from crypto.Address, amount uint64) error {
	record, err := l.Mint(mint)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	balance, err := l.BalanceOf(mint, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
	}
	record.Supply -= amount
	if err := l.store.KVPut(mintKey(mint), record); err != nil {
		return err
	}
	return l.setBalance(mint, from, balance-amount)
}

// Transfer moves amount of mint from one owner to another.
func (l *Ledger) Transfer(mint, from, to crypto.Address, amount uint64) error {
	if _, err := l.Mint(mint); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBalance, err := l.BalanceOf(mint, from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBalance, amount)
	}
	toBalance, err := l.BalanceOf(mint, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(mint, from, fromBalance-amount); err != nil {
		return err
	}
	return l.setBalance(mint, to, toBalance+amount)
}
