package boltdb

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/gaecom/substrate/keyvaluedb"
)

// Tx wraps writable Bolt transaction, it holds the db write lock until
// committed or rolled back.
type Tx struct {
	tx  *bolt.Tx
	b   *bolt.Bucket
	enc keyvaluedb.EncodeFn
	dec keyvaluedb.DecodeFn
}

func newTx(db *bolt.DB, bucket []byte, e keyvaluedb.EncodeFn, d keyvaluedb.DecodeFn) (*Tx, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	tx, err := db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, b: tx.Bucket(bucket), enc: e, dec: d}, nil
}

func (t *Tx) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if t.b == nil {
		return false, fmt.Errorf("bolt tx read failed: %w", keyvaluedb.ErrTxClosed)
	}
	data := t.b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, t.dec(data, v)
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if t.b == nil {
		return fmt.Errorf("bolt tx write failed: %w", keyvaluedb.ErrTxClosed)
	}
	b, err := t.enc(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	return t.b.Put(key, b)
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.b == nil {
		return fmt.Errorf("bolt tx delete failed: %w", keyvaluedb.ErrTxClosed)
	}
	return t.b.Delete(key)
}

func (t *Tx) Rollback() error {
	if t.b == nil {
		return nil
	}
	t.b = nil
	return t.tx.Rollback()
}

func (t *Tx) Commit() error {
	if t.b == nil {
		return fmt.Errorf("bolt tx commit failed: %w", keyvaluedb.ErrTxClosed)
	}
	t.b = nil
	return t.tx.Commit()
}
