package chainstate

import (
	"testing"

	"devv.network/node/internal/primitives"
)

func testAddr(t *testing.T, seed byte) primitives.Address {
	t.Helper()
	body := make([]byte, 33)
	body[0] = 0x02
	body[1] = seed
	addr, err := primitives.NewWalletAddress(body)
	if err != nil {
		t.Fatalf("NewWalletAddress: %v", err)
	}
	return addr
}

func TestAddCoinAndAmount(t *testing.T) {
	cs := New()
	addr := testAddr(t, 1)
	cs.AddCoin(addr, 7, 100)
	cs.AddCoin(addr, 7, -30)
	if got := cs.Amount(7, addr); got != 70 {
		t.Fatalf("Amount = %d, want 70", got)
	}
	if got := cs.Amount(9, addr); got != 0 {
		t.Fatalf("Amount for an untouched coin = %d, want 0", got)
	}
}

func TestApplySummaryImmediateAndDelayed(t *testing.T) {
	cs := New()
	a := testAddr(t, 1)
	b := testAddr(t, 2)

	s := primitives.NewSummary()
	s.AddItem(a, 1, -100, 0)
	s.AddItem(b, 1, 70, 0)
	s.AddItem(b, 1, 30, 5000) // delayed credit, matures at block-time-ms 5000
	cs.ApplySummary(s)

	if got := cs.Amount(1, a); got != -100 {
		t.Fatalf("Amount(a) = %d, want -100", got)
	}
	if got := cs.Amount(1, b); got != 70 {
		t.Fatalf("Amount(b) before maturation = %d, want 70 (delayed credit not yet folded)", got)
	}

	cs.MatureDelayed(4999)
	if got := cs.Amount(1, b); got != 70 {
		t.Fatal("MatureDelayed must not fold a credit before its maturity time")
	}

	cs.MatureDelayed(5000)
	if got := cs.Amount(1, b); got != 100 {
		t.Fatalf("Amount(b) after maturation = %d, want 100", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cs := New()
	a := testAddr(t, 1)
	cs.AddCoin(a, 1, 50)

	clone := cs.Clone()
	clone.AddCoin(a, 1, 1000)

	if got := cs.Amount(1, a); got != 50 {
		t.Fatalf("mutating a clone affected the original: Amount = %d, want 50", got)
	}
	if got := clone.Amount(1, a); got != 1050 {
		t.Fatalf("Amount on clone = %d, want 1050", got)
	}
}

func TestClonePreservesPendingDelayed(t *testing.T) {
	cs := New()
	a := testAddr(t, 1)
	b := testAddr(t, 2)
	s := primitives.NewSummary()
	s.AddItem(a, 1, -10, 0)
	s.AddItem(b, 1, 10, 9000)
	cs.ApplySummary(s)

	clone := cs.Clone()
	clone.MatureDelayed(9000)
	if got := cs.Amount(1, b); got != 0 {
		t.Fatal("maturing a clone's pending credit must not affect the original")
	}
	if got := clone.Amount(1, b); got != 10 {
		t.Fatalf("clone Amount(b) after maturation = %d, want 10", got)
	}
}
