package bank

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andreyvit/cowdb"
)

func TestAccountRoundTrip(t *testing.T) {
	a := NewAccount("Alice", 1000.25)
	a.SetID(7)
	a.SetVersion(3)

	payload, err := cowdb.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	b, err := cowdb.Decode[*Account](payload)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, b, a)
	if b.ID() != 7 || b.Version() != 3 {
		t.Fatalf("decoded id/version = %d/%d, wanted 7/3", b.ID(), b.Version())
	}
}

func TestTransferRoundTrip(t *testing.T) {
	tr := &Transfer{From: 1, To: 2, Amount: 200, Memo: "rent", Tags: []string{"monthly", "home"}}
	tr.SetID(3)
	tr.SetVersion(1)

	payload, err := cowdb.Encode(tr)
	if err != nil {
		t.Fatal(err)
	}
	got, err := cowdb.Decode[*Transfer](payload)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, got, tr)
}

func TestTruncatedAccount(t *testing.T) {
	a := NewAccount("Alice", 1000)
	a.SetID(1)
	payload, err := cowdb.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 8, 17, 20, len(payload) - 1} {
		_, err := cowdb.Decode[*Account](payload[:n])
		var de *cowdb.DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Decode(payload[:%d]) err = %v, wanted *DecodeError", n, err)
		}
	}
}

func TestTransferClone(t *testing.T) {
	tr := &Transfer{Tags: []string{"a"}}
	c := tr.Clone().(*Transfer)
	c.Tags[0] = "b"
	if tr.Tags[0] != "a" {
		t.Fatalf("clone shares Tags with the original")
	}
}

func TestTransferFunds(t *testing.T) {
	s := cowdb.New(cowdb.Options{})
	alice := s.Add(NewAccount("Alice", 1000))
	bob := s.Add(NewAccount("Bob", 500))

	tid, err := TransferFunds(s, alice, bob, 200, "lunch")
	if err != nil {
		t.Fatal(err)
	}

	a := cowdb.Get[*Account](s, alice)
	b := cowdb.Get[*Account](s, bob)
	if a.Get().Balance != 800 || a.Version() != 1 {
		t.Errorf("Alice = %v v%d, wanted 800 v1", a.Get().Balance, a.Version())
	}
	if b.Get().Balance != 700 || b.Version() != 1 {
		t.Errorf("Bob = %v v%d, wanted 700 v1", b.Get().Balance, b.Version())
	}

	tr := cowdb.Get[*Transfer](s, tid)
	if !tr.Valid() || tr.Get().From != alice || tr.Get().To != bob || tr.Get().Memo != "lunch" {
		t.Errorf("transfer = %+v, wanted %d -> %d lunch", tr.Get(), alice, bob)
	}
	if got := cowdb.Query[*Transfer](s, "from", "1"); len(got) != 1 || got[0].ID() != tid {
		t.Errorf("Query(from=1) = %v, wanted [%d]", got, tid)
	}

	if _, err := TransferFunds(s, alice, bob, 5000, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraft err = %v, wanted ErrInsufficientFunds", err)
	}
	if _, err := TransferFunds(s, alice, 99, 1, ""); !errors.Is(err, ErrNoAccount) {
		t.Errorf("missing account err = %v, wanted ErrNoAccount", err)
	}
	if _, err := TransferFunds(s, alice, alice, 1, ""); !errors.Is(err, ErrSameAccount) {
		t.Errorf("self transfer err = %v, wanted ErrSameAccount", err)
	}
	if _, err := TransferFunds(s, alice, tid, 1, ""); !errors.Is(err, ErrNoAccount) {
		t.Errorf("transfer to a Transfer err = %v, wanted ErrNoAccount", err)
	}
	if err := s.VerifyIndexes(); err != nil {
		t.Fatal(err)
	}
}

func TestTransferFundsRefundsOnConflict(t *testing.T) {
	var s *cowdb.Store
	var alice, bob uint64
	meddled := false
	s = cowdb.New(cowdb.Options{OnChange: func(ch *cowdb.Change) {
		if meddled || ch.Op() != cowdb.OpUpdate || ch.ID() != alice {
			return
		}
		meddled = true
		h := cowdb.Get[*Account](s, bob).NewVersion()
		s.Update(bob, h.Get())
	}})
	alice = s.Add(NewAccount("Alice", 1000))
	bob = s.Add(NewAccount("Bob", 500))

	_, err := TransferFunds(s, alice, bob, 200, "")
	var ce *cowdb.ConflictError
	if !errors.As(err, &ce) || ce.ID != bob {
		t.Fatalf("TransferFunds = %v, wanted *cowdb.ConflictError for %d", err, bob)
	}

	a := cowdb.Get[*Account](s, alice)
	deepEqual(t, a.Get().Balance, 1000.0)
	deepEqual(t, a.Version(), uint64(2))
	deepEqual(t, cowdb.Get[*Account](s, bob).Get().Balance, 500.0)
	deepEqual(t, len(cowdb.All[*Transfer](s)), 0)
}

func TestSaveLoadBothTypes(t *testing.T) {
	s := cowdb.New(cowdb.Options{})
	alice := s.Add(NewAccount("Alice", 1000))
	bob := s.Add(NewAccount("Bob", 500))
	tid, err := TransferFunds(s, alice, bob, 200, "")
	if err != nil {
		t.Fatal(err)
	}

	fn := filepath.Join(t.TempDir(), "accounts.bin")
	if err := s.Save(fn); err != nil {
		t.Fatal(err)
	}

	s2 := cowdb.New(cowdb.Options{})
	if err := cowdb.Load[*Account](s2, fn); err != nil {
		t.Fatal(err)
	}
	if s2.Len() != 2 || cowdb.Exists[*Transfer](s2, tid) {
		t.Fatalf("after loading accounts: len = %d, transfer present = %v", s2.Len(), cowdb.Exists[*Transfer](s2, tid))
	}
	if err := cowdb.Load[*Transfer](s2, fn); err != nil {
		t.Fatal(err)
	}
	for _, id := range []uint64{alice, bob} {
		deepEqual(t, cowdb.Get[*Account](s2, id).Get(), cowdb.Get[*Account](s, id).Get())
	}
	deepEqual(t, cowdb.Get[*Transfer](s2, tid).Get(), cowdb.Get[*Transfer](s, tid).Get())
	if s2.NextID() != tid+1 {
		t.Fatalf("NextID = %d, wanted %d", s2.NextID(), tid+1)
	}

	rich, err := cowdb.QueryRange[*Account](s2, "balance", "700", "800")
	if err != nil {
		t.Fatal(err)
	}
	if len(rich) != 2 {
		t.Fatalf("QueryRange(700..800) = %d results, wanted 2", len(rich))
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %+v, wanted %+v", a, e)
	}
}
