// Package bank is the sample schema used by the demo and the tests: accounts
// with an owner and a balance, and transfers between them.
package bank

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/andreyvit/cowdb"
	"github.com/andreyvit/cowdb/codec"
)

var (
	ErrNoAccount         = errors.New("no such account")
	ErrSameAccount       = errors.New("cannot transfer to the same account")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const (
	AccountType  = "Account"
	TransferType = "Transfer"
)

type Account struct {
	cowdb.Meta
	Owner   string  `json:"owner"`
	Balance float64 `json:"balance"`
}

func NewAccount(owner string, balance float64) *Account {
	return &Account{Owner: owner, Balance: balance}
}

func (a *Account) TypeName() string {
	return AccountType
}

func (a *Account) Serialize(w io.Writer) error {
	if err := a.WriteMeta(w); err != nil {
		return err
	}
	if err := codec.WriteString(w, a.Owner); err != nil {
		return err
	}
	return codec.WriteFloat64(w, a.Balance)
}

func (a *Account) Deserialize(r io.Reader) error {
	if err := a.ReadMeta(r); err != nil {
		return err
	}
	var err error
	if a.Owner, err = codec.ReadString(r); err != nil {
		return err
	}
	a.Balance, err = codec.ReadFloat64(r)
	return err
}

func (a *Account) Clone() cowdb.Record {
	c := *a
	return &c
}

func (a *Account) IndexValues() map[string]string {
	return map[string]string{
		"owner":   a.Owner,
		"balance": FormatAmount(a.Balance),
	}
}

func (a *Account) NumericFields() []string {
	return []string{"balance"}
}

type Transfer struct {
	cowdb.Meta
	From   uint64   `json:"from"`
	To     uint64   `json:"to"`
	Amount float64  `json:"amount"`
	Memo   string   `json:"memo,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// transferBody is the MsgPack-encoded part of a Transfer payload.
type transferBody struct {
	From   uint64   `msgpack:"f"`
	To     uint64   `msgpack:"t"`
	Amount float64  `msgpack:"a"`
	Memo   string   `msgpack:"m,omitempty"`
	Tags   []string `msgpack:"g,omitempty"`
}

func (t *Transfer) TypeName() string {
	return TransferType
}

func (t *Transfer) Serialize(w io.Writer) error {
	if err := t.WriteMeta(w); err != nil {
		return err
	}
	return cowdb.WriteMsgpack(w, &transferBody{t.From, t.To, t.Amount, t.Memo, t.Tags})
}

func (t *Transfer) Deserialize(r io.Reader) error {
	if err := t.ReadMeta(r); err != nil {
		return err
	}
	var body transferBody
	if err := cowdb.ReadMsgpack(r, &body); err != nil {
		return err
	}
	t.From, t.To, t.Amount, t.Memo, t.Tags = body.From, body.To, body.Amount, body.Memo, body.Tags
	return nil
}

func (t *Transfer) Clone() cowdb.Record {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	return &c
}

func (t *Transfer) IndexValues() map[string]string {
	return map[string]string{
		"from": strconv.FormatUint(t.From, 10),
		"to":   strconv.FormatUint(t.To, 10),
	}
}

// FormatAmount renders a balance the way the balance index stores it.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TransferFunds moves amount from one account to another by writing new
// versions of both, and records the movement as a Transfer. It returns the
// id of the Transfer record.
func TransferFunds(s *cowdb.Store, fromID, toID uint64, amount float64, memo string) (uint64, error) {
	if fromID == toID {
		return 0, ErrSameAccount
	}
	if amount <= 0 {
		return 0, fmt.Errorf("invalid amount %v", amount)
	}
	from := cowdb.Get[*Account](s, fromID)
	if !from.Valid() {
		return 0, fmt.Errorf("account %d: %w", fromID, ErrNoAccount)
	}
	to := cowdb.Get[*Account](s, toID)
	if !to.Valid() {
		return 0, fmt.Errorf("account %d: %w", toID, ErrNoAccount)
	}
	if from.Get().Balance < amount {
		return 0, fmt.Errorf("account %d has %s, needs %s: %w", fromID, FormatAmount(from.Get().Balance), FormatAmount(amount), ErrInsufficientFunds)
	}

	newFrom := from.NewVersion()
	newFrom.Get().Balance -= amount
	newTo := to.NewVersion()
	newTo.Get().Balance += amount

	if err := current(s, from, to); err != nil {
		return 0, err
	}
	if err := s.CompareAndUpdate(fromID, newFrom.Get()); err != nil {
		return 0, err
	}
	if err := s.CompareAndUpdate(toID, newTo.Get()); err != nil {
		// an OnChange hook moved the recipient under us; put the debit back
		refund := cowdb.Get[*Account](s, fromID).NewVersion()
		if refund.Valid() {
			refund.Get().Balance += amount
			if rerr := s.CompareAndUpdate(fromID, refund.Get()); rerr != nil {
				return 0, fmt.Errorf("%w (refunding account %d: %v)", err, fromID, rerr)
			}
		}
		return 0, err
	}
	return s.Add(&Transfer{From: fromID, To: toID, Amount: amount, Memo: memo}), nil
}

// current fails with *cowdb.ConflictError unless every handle still matches
// the stored version.
func current(s *cowdb.Store, hs ...cowdb.Handle[*Account]) error {
	for _, h := range hs {
		if cur := cowdb.Get[*Account](s, h.ID()); !cur.Valid() || cur.Version() != h.Version() {
			return &cowdb.ConflictError{TypeName: AccountType, ID: h.ID(), StoredVersion: cur.Version(), NewVersion: h.Version() + 1, Missing: !cur.Valid()}
		}
	}
	return nil
}
