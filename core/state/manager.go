package state

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/opynfinance/OpynV2/storage"
)

var errNilDatabase = errors.New("state: nil database")

// Manager persists the protocol's records through a key-value database using
// RLP encoding. It is the single state implementation handed to the margin
// engine and the price store; both consume it through their own narrow
// interfaces so the dependency only flows one way.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// get decodes the record stored under key into out. The boolean reports
// whether the record exists; decoding errors are surfaced, never swallowed,
// because a corrupt record must halt the operation rather than read as empty.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	ok, err := m.db.Has(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	data, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// put stores value under key using RLP encoding.
func (m *Manager) put(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}
