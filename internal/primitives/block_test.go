package primitives

import (
	"errors"
	"testing"

	"devv.network/node/internal/nodeerrors"
)

func buildT2Tx(t *testing.T, amount int64) T2Transaction {
	t.Helper()
	priv, debit := newWalletKey(t)
	_, credit := newWalletKey(t)
	tx := T2Transaction{
		Operation: OpExchange,
		Transfers: []Transfer{
			{Address: debit, CoinID: 1, Amount: -amount},
			{Address: credit, CoinID: 1, Amount: amount},
		},
		Nonce: []byte{0x09},
	}
	hash := tx.SigningHash()
	sig, err := SignWallet(priv, hash[:])
	if err != nil {
		t.Fatalf("SignWallet: %v", err)
	}
	tx.Signature = sig
	return tx
}

func TestProposedBlockRoundTrip(t *testing.T) {
	t2 := buildT2Tx(t, 10)
	sum := NewSummary()
	for _, tr := range t2.Transfers {
		sum.AddItem(tr.Address, tr.CoinID, tr.Amount, tr.Delay)
	}
	_, nodeAddr := newNodeKey(t)
	nodePriv, _ := newNodeKey(t)
	val := NewValidation()
	sigHash := sum.Hash()
	sig, _ := SignNode(nodePriv, sigHash[:])
	val.Add(nodeAddr, sig)

	block := &ProposedBlock{
		Version:      BlockVersion,
		PrevHash:     GenesisHash,
		Transactions: []Transaction{NewT2(t2)},
		Summary:      sum,
		Validations:  val,
	}
	data := block.CanonicalBytes()
	parsed, n, err := ParseProposedBlock(data, TxKindT2)
	if err != nil {
		t.Fatalf("ParseProposedBlock: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if !parsed.PrevHash.Equal(GenesisHash) {
		t.Fatal("prev hash did not round trip")
	}
	if len(parsed.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(parsed.Transactions))
	}
	if string(parsed.CanonicalBytes()) != string(data) {
		t.Fatal("proposed block did not round trip byte-for-byte")
	}
}

func TestFinalBlockRoundTripAndHashChaining(t *testing.T) {
	t2 := buildT2Tx(t, 25)
	sum := NewSummary()
	for _, tr := range t2.Transfers {
		sum.AddItem(tr.Address, tr.CoinID, tr.Amount, tr.Delay)
	}
	val := NewValidation()

	final := &FinalBlock{
		Version:      BlockVersion,
		BlockTimeMs:  1000,
		PrevHash:     GenesisHash,
		MerkleRoot:   MerkleRootOf([]Transaction{NewT2(t2)}),
		Transactions: []Transaction{NewT2(t2)},
		Summary:      sum,
		Validations:  val,
	}
	data := final.CanonicalBytes()
	parsed, n, err := ParseFinalBlock(data, TxKindT2)
	if err != nil {
		t.Fatalf("ParseFinalBlock: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if parsed.Hash() != final.Hash() {
		t.Fatal("hash of the parsed block must match the original")
	}

	next := &FinalBlock{
		Version:     BlockVersion,
		BlockTimeMs: 2000,
		PrevHash:    final.Hash(),
		MerkleRoot:  ZeroHash,
		Summary:     NewSummary(),
		Validations: NewValidation(),
	}
	if !next.PrevHash.Equal(final.Hash()) {
		t.Fatal("successor block must chain to the predecessor's hash")
	}
}

func TestProposedBlockValidateRejectsAsymmetricSummary(t *testing.T) {
	t2 := buildT2Tx(t, 10)
	sum := NewSummary()
	// Fold only the debit side, leaving the summary's deltas unbalanced.
	sum.AddItem(t2.Transfers[0].Address, t2.Transfers[0].CoinID, t2.Transfers[0].Amount, 0)

	block := &ProposedBlock{
		Version:      BlockVersion,
		PrevHash:     GenesisHash,
		Transactions: []Transaction{NewT2(t2)},
		Summary:      sum,
		Validations:  NewValidation(),
	}

	err := block.Validate(stubINNChecker{})
	if err == nil {
		t.Fatal("expected Validate to reject an asymmetric summary")
	}
	if !errors.Is(err, nodeerrors.ErrSummaryAsymmetric) {
		t.Fatalf("got %v, want an error wrapping ErrSummaryAsymmetric", err)
	}
}

type stubINNChecker struct{}

func (stubINNChecker) IsINN(Address) bool { return false }
