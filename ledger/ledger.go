/*
Package ledger implements the deposit ledger used by the referendum engine:
balances of accounts split into free and reserved parts.

Slashed funds are burnt, the total is kept for reporting.
*/
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaecom/substrate/keyvaluedb"
	"github.com/gaecom/substrate/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient free balance")
	ErrInsufficientReserve = errors.New("insufficient reserved balance")
	ErrOverflow            = errors.New("balance overflow")
)

const prefixAccount = 'a'

var slashedKey = []byte("slashed")

type Account struct {
	_        struct{}      `cbor:",toarray"`
	Free     types.Balance `json:"free" yaml:"free"`
	Reserved types.Balance `json:"reserved" yaml:"reserved"`
}

type Ledger struct {
	db  keyvaluedb.KeyValueDB
	log *slog.Logger
}

func accountKey(who types.AccountID) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefixAccount}, uint64(who))
}

// New creates ledger on top of the db, the db must not be shared with other users.
func New(db keyvaluedb.KeyValueDB, log *slog.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("key-value db is nil")
	}
	return &Ledger{db: db, log: log}, nil
}

/*
Endow adds amount to the free balance of the account. Used to set up
genesis balances.
*/
func (l *Ledger) Endow(who types.AccountID, amount types.Balance) error {
	return l.update(who, func(a *Account) error {
		if a.Free+amount < a.Free {
			return fmt.Errorf("%w: endowing %d to account %d", ErrOverflow, amount, who)
		}
		a.Free += amount
		return nil
	})
}

// Reserve moves amount from free to reserved balance.
func (l *Ledger) Reserve(who types.AccountID, amount types.Balance) error {
	err := l.update(who, func(a *Account) error {
		if a.Free < amount {
			return fmt.Errorf("%w: account %d has %d, needs %d", ErrInsufficientBalance, who, a.Free, amount)
		}
		a.Free -= amount
		a.Reserved += amount
		return nil
	})
	if err == nil {
		l.log.Debug(fmt.Sprintf("reserved %d from account %d", amount, who))
	}
	return err
}

// Refund moves amount from reserved back to free balance.
func (l *Ledger) Refund(who types.AccountID, amount types.Balance) error {
	err := l.update(who, func(a *Account) error {
		if a.Reserved < amount {
			return fmt.Errorf("%w: account %d has %d reserved, refunding %d", ErrInsufficientReserve, who, a.Reserved, amount)
		}
		a.Reserved -= amount
		a.Free += amount
		return nil
	})
	if err == nil {
		l.log.Debug(fmt.Sprintf("refunded %d to account %d", amount, who))
	}
	return err
}

// Slash burns amount of the account's reserved balance.
func (l *Ledger) Slash(who types.AccountID, amount types.Balance) error {
	err := keyvaluedb.Update(l.db, func(tx keyvaluedb.DBTransaction) error {
		a, err := readAccount(tx, who)
		if err != nil {
			return err
		}
		if a.Reserved < amount {
			return fmt.Errorf("%w: account %d has %d reserved, slashing %d", ErrInsufficientReserve, who, a.Reserved, amount)
		}
		a.Reserved -= amount
		if err := tx.Write(accountKey(who), a); err != nil {
			return fmt.Errorf("storing account %d: %w", who, err)
		}
		var total types.Balance
		if _, err := tx.Read(slashedKey, &total); err != nil {
			return fmt.Errorf("reading slashed total: %w", err)
		}
		return tx.Write(slashedKey, total+amount)
	})
	if err == nil {
		l.log.Info(fmt.Sprintf("slashed %d from account %d", amount, who))
	}
	return err
}

func (l *Ledger) Account(who types.AccountID) (Account, error) {
	a, err := readAccount(l.db, who)
	if err != nil {
		return Account{}, err
	}
	return *a, nil
}

// Slashed returns the total amount slashed so far.
func (l *Ledger) Slashed() (types.Balance, error) {
	var total types.Balance
	if _, err := l.db.Read(slashedKey, &total); err != nil {
		return 0, fmt.Errorf("reading slashed total: %w", err)
	}
	return total, nil
}

func (l *Ledger) update(who types.AccountID, fn func(a *Account) error) error {
	return keyvaluedb.Update(l.db, func(tx keyvaluedb.DBTransaction) error {
		a, err := readAccount(tx, who)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := tx.Write(accountKey(who), a); err != nil {
			return fmt.Errorf("storing account %d: %w", who, err)
		}
		return nil
	})
}

func readAccount(db keyvaluedb.Reader, who types.AccountID) (*Account, error) {
	a := &Account{}
	if _, err := db.Read(accountKey(who), a); err != nil {
		return nil, fmt.Errorf("reading account %d: %w", who, err)
	}
	return a, nil
}
