package primitives

import "testing"

func TestTransferRoundTrip(t *testing.T) {
	_, addr := newWalletKey(t)
	tr := Transfer{Address: addr, CoinID: 7, Amount: -500, Delay: 12345}
	data := tr.CanonicalBytes()
	parsed, n, err := ParseTransfer(data)
	if err != nil {
		t.Fatalf("ParseTransfer: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if !parsed.Address.Equal(tr.Address) || parsed.CoinID != tr.CoinID || parsed.Amount != tr.Amount || parsed.Delay != tr.Delay {
		t.Fatalf("transfer did not round trip: got %+v, want %+v", parsed, tr)
	}
}

func TestTransferIsDebit(t *testing.T) {
	_, addr := newWalletKey(t)
	debit := Transfer{Address: addr, CoinID: 1, Amount: -10}
	credit := Transfer{Address: addr, CoinID: 1, Amount: 10}
	if !debit.IsDebit() {
		t.Fatal("negative amount must be a debit")
	}
	if credit.IsDebit() {
		t.Fatal("positive amount must not be a debit")
	}
}
