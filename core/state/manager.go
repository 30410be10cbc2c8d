package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"xlend/storage"
)

// Manager reads and writes RLP-encoded records in the node database. Writes
// made through a Tx are buffered and applied as one storage batch.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func readRaw(db storage.Database, hashed []byte) ([]byte, error) {
	data, err := db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	tx := m.Begin()
	if err := tx.KVPut(key, value); err != nil {
		return err
	}
	return tx.Commit()
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := readRaw(m.db, kvKey(key))
	if err != nil {
		return false, err
	}
	return decode(data, out)
}

func decode(data []byte, out interface{}) (bool, error) {
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

// Tx overlays pending writes on the database. Reads observe the transaction's
// own writes. Nothing reaches the database until Commit.
type Tx struct {
	db      storage.Database
	pending map[string][]byte
	order   []string
	done    bool
}

// Begin opens a transaction.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, pending: make(map[string][]byte)}
}

func (tx *Tx) stage(hashed []byte, value []byte) {
	k := string(hashed)
	if _, ok := tx.pending[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.pending[k] = value
}

// KVPut stages an RLP-encoded value.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.stage(kvKey(key), encoded)
	return nil
}

// KVDelete stages the removal of key.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	tx.stage(kvKey(key), nil)
	return nil
}

// KVGet reads key through the overlay.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	if value, ok := tx.pending[string(hashed)]; ok {
		return decode(value, out)
	}
	data, err := readRaw(tx.db, hashed)
	if err != nil {
		return false, err
	}
	return decode(data, out)
}

// Len returns the number of staged keys.
func (tx *Tx) Len() int { return len(tx.order) }

// Commit applies every staged write in one batch.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("state: transaction already finished")
	}
	tx.done = true
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for _, k := range tx.order {
		value := tx.pending[k]
		if value == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), value)
	}
	return batch.Write()
}

// Discard drops the staged writes.
func (tx *Tx) Discard() {
	tx.done = true
	tx.pending = nil
	tx.order = nil
}
