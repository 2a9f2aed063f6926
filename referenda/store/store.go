/*
Package store keeps referendum records, per track state and bookkeeping
in a key-value database.

Referenda are never removed. All changes made by one engine operation go
through a single transaction (see Store.Update) so that a failed operation
leaves no trace.
*/
package store

import (
	"errors"
	"fmt"

	"github.com/gaecom/substrate/keyvaluedb"
	"github.com/gaecom/substrate/types"
)

var (
	ErrNotFound   = errors.New("referendum not found")
	ErrNotOngoing = errors.New("referendum is not ongoing")
	ErrTerminal   = errors.New("status of a closed referendum can't be changed")
)

const (
	prefixReferendum = 'r'
	prefixTrack      = 't'
)

var metaKey = []byte("meta")

func referendumKey(index types.ReferendumIndex) []byte {
	return append([]byte{prefixReferendum}, index.Bytes()...)
}

func trackKey(id types.TrackID) []byte {
	return append([]byte{prefixTrack}, id.Bytes()...)
}

type Store struct {
	db keyvaluedb.KeyValueDB
}

func New(db keyvaluedb.KeyValueDB) (*Store, error) {
	if db == nil {
		return nil, errors.New("key-value db is nil")
	}
	return &Store{db: db}, nil
}

/*
Update runs fn in a new transaction. Changes made through the transaction
are committed when fn returns nil and discarded otherwise.
*/
func (s *Store) Update(fn func(tx *Tx) error) error {
	return keyvaluedb.Update(s.db, func(dbTx keyvaluedb.DBTransaction) error {
		return fn(&Tx{tx: dbTx})
	})
}

// Get returns the committed state of the referendum.
func (s *Store) Get(index types.ReferendumIndex) (*Referendum, error) {
	return getReferendum(s.db, index)
}

func (s *Store) TrackState(id types.TrackID) (*TrackState, error) {
	return getTrackState(s.db, id)
}

func (s *Store) Meta() (*Meta, error) {
	return getMeta(s.db)
}

// Count returns the number of referenda ever submitted.
func (s *Store) Count() (uint32, error) {
	m, err := s.Meta()
	if err != nil {
		return 0, err
	}
	return uint32(m.NextIndex), nil
}

/*
List returns up to "limit" referenda starting from index "from" in
ascending index order. The callback variant Walk avoids loading all the
records into memory.
*/
func (s *Store) List(from types.ReferendumIndex, limit int) ([]*Referendum, error) {
	var res []*Referendum
	err := s.Walk(from, func(r *Referendum) bool {
		res = append(res, r)
		return limit <= 0 || len(res) < limit
	})
	return res, err
}

// Walk calls fn for every referendum starting from index "from" until fn returns false.
func (s *Store) Walk(from types.ReferendumIndex, fn func(r *Referendum) bool) (err error) {
	it := s.db.Find(referendumKey(from))
	defer func() { err = errors.Join(err, it.Close()) }()

	for ; it.Valid(); it.Next() {
		key := it.Key()
		if len(key) == 0 || key[0] != prefixReferendum {
			return nil
		}
		r := &Referendum{}
		if err := it.Value(r); err != nil {
			return fmt.Errorf("decoding referendum %x: %w", key[1:], err)
		}
		if !fn(r) {
			return nil
		}
	}
	return nil
}

// Tx gives typed access to a key-value transaction.
type Tx struct {
	tx keyvaluedb.DBTransaction
}

// Insert stores new referendum under the next free index and returns the index.
func (t *Tx) Insert(r *Referendum) (types.ReferendumIndex, error) {
	m, err := getMeta(t.tx)
	if err != nil {
		return 0, err
	}
	r.Index = m.NextIndex
	if err := t.tx.Write(referendumKey(r.Index), r); err != nil {
		return 0, fmt.Errorf("storing referendum %d: %w", r.Index, err)
	}
	m.NextIndex++
	if err := t.PutMeta(m); err != nil {
		return 0, err
	}
	return r.Index, nil
}

func (t *Tx) Get(index types.ReferendumIndex) (*Referendum, error) {
	return getReferendum(t.tx, index)
}

// EnsureOngoing returns the referendum when it exists and is ongoing,
// ErrNotOngoing otherwise.
func (t *Tx) EnsureOngoing(index types.ReferendumIndex) (*Referendum, error) {
	r, err := t.Get(index)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %d does not exist", ErrNotOngoing, index)
		}
		return nil, err
	}
	if !r.IsOngoing() {
		return nil, fmt.Errorf("%w: %d is %s", ErrNotOngoing, index, r.Status)
	}
	return r, nil
}

// Put writes back a modified referendum. Status of a terminal referendum
// can't be changed.
func (t *Tx) Put(r *Referendum) error {
	prev, err := t.Get(r.Index)
	if err != nil {
		return err
	}
	if prev.Status.IsTerminal() && prev.Status != r.Status {
		return fmt.Errorf("%w: referendum %d is %s", ErrTerminal, r.Index, prev.Status)
	}
	if err := t.tx.Write(referendumKey(r.Index), r); err != nil {
		return fmt.Errorf("storing referendum %d: %w", r.Index, err)
	}
	return nil
}

func (t *Tx) TrackState(id types.TrackID) (*TrackState, error) {
	return getTrackState(t.tx, id)
}

func (t *Tx) PutTrackState(id types.TrackID, ts *TrackState) error {
	if err := t.tx.Write(trackKey(id), ts); err != nil {
		return fmt.Errorf("storing state of track %d: %w", id, err)
	}
	return nil
}

func (t *Tx) Meta() (*Meta, error) {
	return getMeta(t.tx)
}

func (t *Tx) PutMeta(m *Meta) error {
	if err := t.tx.Write(metaKey, m); err != nil {
		return fmt.Errorf("storing meta: %w", err)
	}
	return nil
}

func getReferendum(db keyvaluedb.Reader, index types.ReferendumIndex) (*Referendum, error) {
	r := &Referendum{}
	found, err := db.Read(referendumKey(index), r)
	if err != nil {
		return nil, fmt.Errorf("reading referendum %d: %w", index, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
	}
	return r, nil
}

func getTrackState(db keyvaluedb.Reader, id types.TrackID) (*TrackState, error) {
	ts := &TrackState{}
	if _, err := db.Read(trackKey(id), ts); err != nil {
		return nil, fmt.Errorf("reading state of track %d: %w", id, err)
	}
	return ts, nil
}

func getMeta(db keyvaluedb.Reader) (*Meta, error) {
	m := &Meta{}
	if _, err := db.Read(metaKey, m); err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	return m, nil
}
