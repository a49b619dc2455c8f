package repeater

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"devv.network/node/internal/primitives"
)

func genNodeKey(t *testing.T) (*ecdsa.PrivateKey, primitives.Address) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate node key: %v", err)
	}
	addr, err := primitives.NodeAddressFromPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("NodeAddressFromPublicKey: %v", err)
	}
	return priv, addr
}

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

func buildSignedBlock(t *testing.T, prev primitives.Hash, a, b primitives.Address, amount int64) *primitives.FinalBlock {
	t.Helper()
	s := primitives.NewSummary()
	s.AddItem(a, 1, -amount, 0)
	s.AddItem(b, 1, amount, 0)

	nodePriv, nodeAddr := genNodeKey(t)
	summaryHash := s.Hash()
	sig, err := primitives.SignNode(nodePriv, summaryHash[:])
	if err != nil {
		t.Fatalf("SignNode: %v", err)
	}
	val := primitives.NewValidation()
	val.Add(nodeAddr, sig)

	return &primitives.FinalBlock{
		Version:     primitives.BlockVersion,
		BlockTimeMs: 1000,
		PrevHash:    prev,
		MerkleRoot:  primitives.ZeroHash,
		Summary:     s,
		Validations: val,
	}
}

func openTestRepeater(t *testing.T) *Repeater {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "repeater.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndByHeight(t *testing.T) {
	r := openTestRepeater(t)
	a, b := testAddr(t, 1), testAddr(t, 2)
	block := buildSignedBlock(t, primitives.GenesisHash, a, b, 10)

	if err := r.Record(0, block); err != nil {
		t.Fatalf("Record: %v", err)
	}

	data, err := r.ByHeight(0)
	if err != nil {
		t.Fatalf("ByHeight: %v", err)
	}
	got, _, err := primitives.ParseFinalBlock(data, primitives.TxKindT2)
	if err != nil {
		t.Fatalf("ParseFinalBlock: %v", err)
	}
	if !got.PrevHash.Equal(primitives.GenesisHash) {
		t.Fatal("round-tripped block has the wrong prev_hash")
	}

	if _, err := r.ByHeight(1); err == nil {
		t.Fatal("expected an error for an unarchived height")
	}
}

func TestBySignatureFindsOwningBlock(t *testing.T) {
	r := openTestRepeater(t)
	a, b := testAddr(t, 1), testAddr(t, 2)
	block := buildSignedBlock(t, primitives.GenesisHash, a, b, 5)
	block.Transactions = []primitives.Transaction{}

	// A node's own finalized blocks always wrap their transactions as
	// T2Transaction (see txpool.ProposeBlock); the pool never places a
	// T1Transaction inside a FinalBlock it builds.
	walletPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	walletAddr, err := primitives.WalletAddressFromPublicKey(walletPriv.PubKey())
	if err != nil {
		t.Fatalf("WalletAddressFromPublicKey: %v", err)
	}
	t2 := primitives.T2Transaction{
		Operation: primitives.OpExchange,
		Transfers: []primitives.Transfer{
			{Address: walletAddr, CoinID: 1, Amount: -5},
			{Address: a, CoinID: 1, Amount: 5},
		},
		Nonce: []byte{1, 2, 3},
	}
	sig, err := primitives.SignWallet(walletPriv, t2.SigningHash().Bytes())
	if err != nil {
		t.Fatalf("SignWallet: %v", err)
	}
	t2.Signature = sig
	block.Transactions = append(block.Transactions, primitives.NewT2(t2))

	if err := r.Record(3, block); err != nil {
		t.Fatalf("Record: %v", err)
	}

	txSig := block.Transactions[0].Signature()
	data, err := r.BySignature(txSig)
	if err != nil {
		t.Fatalf("BySignature: %v", err)
	}
	got, _, err := primitives.ParseFinalBlock(data, primitives.TxKindT2)
	if err != nil {
		t.Fatalf("ParseFinalBlock: %v", err)
	}
	if got.BlockTimeMs != block.BlockTimeMs {
		t.Fatal("BySignature resolved to the wrong block")
	}
}

func TestBySignatureMissing(t *testing.T) {
	r := openTestRepeater(t)
	nodePriv, _ := genNodeKey(t)
	var zero primitives.Hash
	sig, err := primitives.SignNode(nodePriv, zero.Bytes())
	if err != nil {
		t.Fatalf("SignNode: %v", err)
	}
	if _, err := r.BySignature(sig); err == nil {
		t.Fatal("expected an error for a signature never recorded")
	}
}
