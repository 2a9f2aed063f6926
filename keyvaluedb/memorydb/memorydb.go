package memorydb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gaecom/substrate/keyvaluedb"
	"github.com/gaecom/substrate/types"
)

type (
	MemoryDB struct {
		db      map[string][]byte
		encoder keyvaluedb.EncodeFn
		decoder keyvaluedb.DecodeFn
		// when set, writes fail with this error; used to test storage failures
		writeErr error
		lock     sync.RWMutex
	}

	Option func(*MemoryDB)
)

var _ keyvaluedb.KeyValueDB = (*MemoryDB)(nil)

// WithCodec overrides the default CBOR encoding of values.
func WithCodec(enc keyvaluedb.EncodeFn, dec keyvaluedb.DecodeFn) Option {
	return func(db *MemoryDB) {
		db.encoder = enc
		db.decoder = dec
	}
}

// New creates an in-memory key value db backed by a map.
func New(opts ...Option) *MemoryDB {
	db := &MemoryDB{
		db:      make(map[string][]byte),
		encoder: types.Cbor.Marshal,
		decoder: types.Cbor.Unmarshal,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *MemoryDB) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return false, err
	}
	db.lock.RLock()
	defer db.lock.RUnlock()

	data, ok := db.db[string(key)]
	if !ok {
		return false, nil
	}
	return true, db.decoder(data, value)
}

func (db *MemoryDB) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	b, err := db.encoder(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.writeErr != nil {
		return db.writeErr
	}
	db.db[string(key)] = b
	return nil
}

func (db *MemoryDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.db, string(key))
	return nil
}

func (db *MemoryDB) First() keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.first()
	return it
}

func (db *MemoryDB) Find(key []byte) keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.seek(key)
	return it
}

func (db *MemoryDB) StartTx() (keyvaluedb.DBTransaction, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if db.db == nil {
		return nil, errors.New("memory db is closed")
	}
	return &Tx{mem: db, db: copyMap(db.db)}, nil
}

// SetWriteError makes all following writes (including transactional ones)
// fail with err, nil restores normal operation.
func (db *MemoryDB) SetWriteError(err error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.writeErr = err
}

func (db *MemoryDB) Close() error { return nil }
