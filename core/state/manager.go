package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"obsidian/storage"
)

// Manager provides keccak-keyed, RLP-encoded access to the launch ledger on
// top of a raw key-value store. All writes buffer in an in-memory overlay
// until Commit flushes them, so a failed operation can Discard its effects and
// leave the persisted state untouched. The overlay is what gives every ledger
// operation its all-or-nothing semantics.
//
// Manager is not safe for concurrent use; the node serializes access.
type Manager struct {
	db    storage.Database
	dirty map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// Commit flushes all buffered writes to the backing database as one atomic
// batch and clears the overlay. A failed flush persists nothing; the caller
// discards the overlay and the committed state is unchanged.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		return nil
	}
	entries := make([]storage.BatchEntry, 0, len(m.dirty))
	for key, value := range m.dirty {
		entries = append(entries, storage.BatchEntry{Key: []byte(key), Value: value})
	}
	if err := m.db.WriteBatch(entries); err != nil {
		return fmt.Errorf("state: commit write: %w", err)
	}
	m.dirty = make(map[string][]byte)
	return nil
}

// Discard drops all buffered writes, rolling the manager back to the last
// committed state.
func (m *Manager) Discard() {
	m.dirty = make(map[string][]byte)
}

func (m *Manager) get(key []byte) ([]byte, bool) {
	if value, ok := m.dirty[string(key)]; ok {
		return append([]byte(nil), value...), len(value) > 0
	}
	value, err := m.db.Get(key)
	if err != nil || len(value) == 0 {
		return nil, false
	}
	return value, true
}

func (m *Manager) put(key, value []byte) {
	m.dirty[string(key)] = append([]byte(nil), value...)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, ok := m.get(key)
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *Manager) writeBigInt(key []byte, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	m.put(key, v.Bytes())
}

func hashKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}
