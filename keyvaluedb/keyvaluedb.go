/*
Package keyvaluedb defines the storage contract of the referendum store.

Values are encoded by the backend (CBOR by default), keys are compared as
raw bytes so that big-endian encoded integers iterate in numeric order.
*/
package keyvaluedb

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrValueIsNil = errors.New("value is nil")
	ErrTxClosed   = errors.New("tx closed")
)

type (
	EncodeFn func(v any) ([]byte, error)
	DecodeFn func(data []byte, v any) error

	Reader interface {
		// Read decodes the value stored under key into value. Returns false
		// when the key is not present.
		Read(key []byte, value any) (bool, error)
	}

	Writer interface {
		Write(key []byte, value any) error
		// Delete of missing key is not an error.
		Delete(key []byte) error
	}

	/*
	DBTransaction is a read-write transaction. It MUST be completed by
	calling either Commit or Rollback, only one read-write transaction can
	be open at a time.
	*/
	DBTransaction interface {
		Reader
		Writer
		Commit() error
		Rollback() error
	}

	Iterator interface {
		Next()
		Valid() bool
		// Key returns the key of the current item or nil when not valid.
		Key() []byte
		Value(value any) error
		// Close releases associated resources, safe to call multiple times.
		Close() error
	}

	Iterable interface {
		// First returns forward iterator positioned on the first item.
		// NB! iterator MUST be closed, backends may hold a read lock until then.
		First() Iterator
		// Find returns forward iterator positioned on the first item whose
		// key is greater than or equal to key.
		Find(key []byte) Iterator
	}

	KeyValueDB interface {
		Reader
		Writer
		Iterable
		StartTx() (DBTransaction, error)
		Close() error
	}
)

func CheckKey(key []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	return nil
}

func CheckValue(val any) error {
	if val == nil {
		return ErrValueIsNil
	}
	if rv := reflect.ValueOf(val); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ErrValueIsNil
	}
	return nil
}

func CheckKeyAndValue(key []byte, val any) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	return CheckValue(val)
}

// IsEmpty returns true when there are no items in the db.
func IsEmpty(db Iterable) (empty bool, err error) {
	if db == nil {
		return true, fmt.Errorf("db is nil")
	}
	it := db.First()
	defer func() { err = errors.Join(err, it.Close()) }()
	return !it.Valid(), nil
}

/*
Update runs fn in a new transaction of db. The transaction is committed
when fn returns nil and rolled back otherwise.
*/
func Update(db KeyValueDB, fn func(tx DBTransaction) error) error {
	tx, err := db.StartTx()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
