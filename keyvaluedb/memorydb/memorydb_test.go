package memorydb

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaecom/substrate/keyvaluedb"
)

type testRecord struct {
	Name string
	Data []byte
}

func isEmpty(t *testing.T, db *MemoryDB) bool {
	t.Helper()
	empty, err := keyvaluedb.IsEmpty(db)
	require.NoError(t, err)
	return empty
}

func TestMemDB_IsEmpty(t *testing.T) {
	db := New()
	require.True(t, isEmpty(t, db))
	require.NoError(t, db.Write([]byte("foo"), "test"))
	require.False(t, isEmpty(t, db))

	empty, err := keyvaluedb.IsEmpty(nil)
	require.EqualError(t, err, "db is nil")
	require.True(t, empty)
}

func TestMemDB_InvalidKeyAndValue(t *testing.T) {
	db := New()
	var rec *testRecord
	require.ErrorIs(t, db.Write([]byte("data"), rec), keyvaluedb.ErrValueIsNil)
	require.ErrorIs(t, db.Write([]byte("data"), nil), keyvaluedb.ErrValueIsNil)
	require.ErrorIs(t, db.Write(nil, 1), keyvaluedb.ErrInvalidKey)

	var value uint64
	found, err := db.Read([]byte{}, &value)
	require.ErrorIs(t, err, keyvaluedb.ErrInvalidKey)
	require.False(t, found)
	found, err = db.Read([]byte("data"), rec)
	require.ErrorIs(t, err, keyvaluedb.ErrValueIsNil)
	require.False(t, found)
	require.ErrorIs(t, db.Delete(nil), keyvaluedb.ErrInvalidKey)
	require.True(t, isEmpty(t, db))
}

func TestMemDB_WriteReadDelete(t *testing.T) {
	db := New()
	in := &testRecord{Name: "test", Data: []byte{1, 2, 3}}
	require.NoError(t, db.Write([]byte("rec"), in))
	require.NoError(t, db.Write([]byte("int"), uint64(7)))

	var out testRecord
	found, err := db.Read([]byte("rec"), &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, *in, out)

	// wrong type
	var n uint64
	found, err = db.Read([]byte("rec"), &n)
	require.True(t, found)
	require.ErrorContains(t, err, "cannot unmarshal")

	require.NoError(t, db.Delete([]byte("rec")))
	require.NoError(t, db.Delete([]byte("rec")))
	found, err = db.Read([]byte("rec"), &out)
	require.NoError(t, err)
	require.False(t, found)

	// value which can't be encoded
	require.ErrorContains(t, db.Write([]byte("chan"), make(chan int)), "encoding value")
}

func TestMemDB_JSONCodec(t *testing.T) {
	db := New(WithCodec(json.Marshal, json.Unmarshal))
	require.NoError(t, db.Write([]byte("k"), "v"))
	var s string
	found, err := db.Read([]byte("k"), &s)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", s)
	require.Equal(t, []byte(`"v"`), db.db["k"])
}

func TestMemDB_Iterator(t *testing.T) {
	db := New()
	for _, k := range []string{"b2", "a1", "c3", "b1"} {
		require.NoError(t, db.Write([]byte(k), k))
	}

	collect := func(it keyvaluedb.Iterator) (keys []string) {
		defer func() { require.NoError(t, it.Close()) }()
		for ; it.Valid(); it.Next() {
			var v string
			require.NoError(t, it.Value(&v))
			require.Equal(t, string(it.Key()), v)
			keys = append(keys, v)
		}
		return keys
	}
	require.Equal(t, []string{"a1", "b1", "b2", "c3"}, collect(db.First()))
	require.Equal(t, []string{"b1", "b2", "c3"}, collect(db.Find([]byte("b"))))
	require.Equal(t, []string{"b2", "c3"}, collect(db.Find([]byte("b2"))))
	require.Empty(t, collect(db.Find([]byte("d"))))

	it := db.First()
	require.NoError(t, it.Close())
	require.False(t, it.Valid())
	require.Nil(t, it.Key())
	require.EqualError(t, it.Value(new(string)), "iterator invalid")
}

func TestMemDB_Tx(t *testing.T) {
	db := New()
	require.NoError(t, db.Write([]byte("keep"), "1"))

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("new"), "2"))
	require.NoError(t, tx.Delete([]byte("keep")))

	// not visible outside of the tx before commit
	var s string
	found, err := db.Read([]byte("new"), &s)
	require.NoError(t, err)
	require.False(t, found)
	found, err = tx.Read([]byte("new"), &s)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, tx.Commit())

	found, err = db.Read([]byte("new"), &s)
	require.NoError(t, err)
	require.True(t, found)
	found, err = db.Read([]byte("keep"), &s)
	require.NoError(t, err)
	require.False(t, found)

	// use after close
	_, err = tx.Read([]byte("new"), &s)
	require.ErrorIs(t, err, keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Write([]byte("new"), "3"), keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Delete([]byte("new")), keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Commit(), keyvaluedb.ErrTxClosed)
}

func TestMemDB_Update(t *testing.T) {
	db := New()
	expErr := errors.New("boom")
	err := keyvaluedb.Update(db, func(tx keyvaluedb.DBTransaction) error {
		require.NoError(t, tx.Write([]byte("k"), "v"))
		return expErr
	})
	require.ErrorIs(t, err, expErr)
	require.True(t, isEmpty(t, db))

	require.NoError(t, keyvaluedb.Update(db, func(tx keyvaluedb.DBTransaction) error {
		return tx.Write([]byte("k"), "v")
	}))
	require.False(t, isEmpty(t, db))
}

func TestMemDB_WriteError(t *testing.T) {
	db := New()
	expErr := errors.New("disk full")
	db.SetWriteError(expErr)
	require.ErrorIs(t, db.Write([]byte("k"), "v"), expErr)

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.ErrorIs(t, tx.Write([]byte("k"), "v"), expErr)
	require.NoError(t, tx.Rollback())

	db.SetWriteError(nil)
	require.NoError(t, db.Write([]byte("k"), "v"))
}
