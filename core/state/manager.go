package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"launchpad/storage"
)

// Manager provides typed access to the underlying key-value store. Every
// persisted aggregate (sales, sale accounts, referral accounts, counters)
// is written through this manager as an RLP-encoded record under a
// module-prefixed key.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var errNilManager = errors.New("state: manager not initialised")

// KVGet decodes the record stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilManager
	}
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// KVHas reports whether a record exists under key.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilManager
	}
	return m.db.Has(key)
}

// KVDelete removes the record stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	return m.db.Delete(key)
}

// KVAppend appends a pre-encoded entry to the byte-slice list stored under
// key. Lists back secondary indexes (e.g. the per-sale account index).
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	list = append(list, value)
	return m.KVPut(key, list)
}

// KVGetList decodes the byte-slice list stored under key into out. A
// missing key yields an empty list.
func (m *Manager) KVGetList(key []byte, out *[][]byte) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		*out = nil
	}
	return nil
}

// IteratePrefix walks every raw record sharing the prefix. Used by the
// lazy schema-migration batch job.
func (m *Manager) IteratePrefix(prefix []byte, fn func(key, raw []byte) bool) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	return m.db.IteratePrefix(prefix, fn)
}
