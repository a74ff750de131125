package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendcore/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// Manager owns the node's key-value state. All writes go through a Tx.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay on top of the committed state.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte)}
}

// View runs fn against a transaction that is always discarded.
func (m *Manager) View(fn func(*Tx) error) error {
	tx := m.Begin()
	defer tx.Discard()
	return fn(tx)
}

// Update runs fn in a transaction and commits it when fn succeeds.
func (m *Manager) Update(fn func(*Tx) error) error {
	tx := m.Begin()
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// Tx buffers writes in memory until Commit applies them as one batch. Reads
// observe the transaction's own writes first. A Tx is not safe for concurrent
// use.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	closed bool
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (t *Tx) get(hashed []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	if data, ok := t.writes[string(hashed)]; ok {
		return data, nil
	}
	data, err := t.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut RLP-encodes value under key.
func (t *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if t.closed {
		return ErrTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.writes[string(kvKey(key))] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (t *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := t.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Pending reports the number of buffered writes.
func (t *Tx) Pending() int { return len(t.writes) }

// Commit writes every buffered value in one atomic batch and closes the
// transaction.
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if len(t.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), t.writes[k])
	}
	t.writes = nil
	return t.db.Write(batch)
}

// Discard drops every buffered write. It is safe to call after Commit.
func (t *Tx) Discard() {
	t.closed = true
	t.writes = nil
}
