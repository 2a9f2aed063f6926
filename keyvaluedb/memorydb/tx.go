package memorydb

import (
	"fmt"
	"maps"

	"github.com/gaecom/substrate/keyvaluedb"
)

// Tx works on a copy of the database map which replaces the original on commit.
type Tx struct {
	mem *MemoryDB
	db  map[string][]byte
}

func copyMap(m map[string][]byte) map[string][]byte {
	result := make(map[string][]byte, len(m))
	maps.Copy(result, m)
	return result
}

func (t *Tx) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if t.db == nil {
		return false, fmt.Errorf("memdb tx read failed: %w", keyvaluedb.ErrTxClosed)
	}
	data, ok := t.db[string(key)]
	if !ok {
		return false, nil
	}
	return true, t.mem.decoder(data, v)
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if t.db == nil {
		return fmt.Errorf("memdb tx write failed: %w", keyvaluedb.ErrTxClosed)
	}
	b, err := t.mem.encoder(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	t.mem.lock.RLock()
	writeErr := t.mem.writeErr
	t.mem.lock.RUnlock()
	if writeErr != nil {
		return writeErr
	}
	t.db[string(key)] = b
	return nil
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.db == nil {
		return fmt.Errorf("memdb tx delete failed: %w", keyvaluedb.ErrTxClosed)
	}
	delete(t.db, string(key))
	return nil
}

func (t *Tx) Rollback() error {
	t.db = nil
	return nil
}

func (t *Tx) Commit() error {
	if t.db == nil {
		return fmt.Errorf("memdb tx commit failed: %w", keyvaluedb.ErrTxClosed)
	}
	t.mem.lock.Lock()
	defer t.mem.lock.Unlock()
	t.mem.db = t.db
	t.db = nil
	return nil
}
