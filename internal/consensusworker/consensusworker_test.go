package consensusworker

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"devv.network/node/internal/blockchain"
	"devv.network/node/internal/bus"
	"devv.network/node/internal/chainstate"
	"devv.network/node/internal/keyring"
	"devv.network/node/internal/primitives"
	"devv.network/node/internal/txpool"
)

type fakeINN struct{ addr primitives.Address }

func (f fakeINN) IsINN(addr primitives.Address) bool { return addr.Equal(f.addr) }

type fakeForwarder struct{ calls int }

func (f *fakeForwarder) Handle(bus.Message) { f.calls++ }

func genWalletKey(t *testing.T) (*secp256k1.PrivateKey, primitives.Address) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate wallet key: %v", err)
	}
	addr, err := primitives.WalletAddressFromPublicKey(priv.PubKey())
	if err != nil {
		t.Fatalf("WalletAddressFromPublicKey: %v", err)
	}
	return priv, addr
}

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

func signedExchange(t *testing.T, priv *secp256k1.PrivateKey, debit, credit primitives.Address, amount int64) primitives.T2Transaction {
	t.Helper()
	tx := primitives.T2Transaction{
		Operation: primitives.OpExchange,
		Transfers: []primitives.Transfer{
			{Address: debit, CoinID: 1, Amount: -amount},
			{Address: credit, CoinID: 1, Amount: amount},
		},
	}
	hash := tx.SigningHash()
	sig, err := primitives.SignWallet(priv, hash[:])
	if err != nil {
		t.Fatalf("SignWallet: %v", err)
	}
	tx.Signature = sig
	return tx
}

// TestFullRoundFinalizesAndAppends wires a 3-peer shard end-to-end: the
// leader's consensus worker signs its own proposal as the first VALID (via
// the pool), two follower workers validate and emit VALID, and the leader's
// worker finalizes and appends once threshold is reached.
func TestFullRoundFinalizesAndAppends(t *testing.T) {
	b := bus.New()

	priv, debit := genWalletKey(t)
	_, credit := genWalletKey(t)

	leaderNodePriv, leaderAddr := genNodeKey(t)
	followerAPriv, followerAAddr := genNodeKey(t)
	followerBPriv, followerBAddr := genNodeKey(t)

	chain := blockchain.New()
	leaderPool := txpool.New(leaderAddr, keyring.Key{Address: leaderAddr, Node: leaderNodePriv}, 3, txpool.DefaultBatchSize, chain)

	tx := signedExchange(t, priv, debit, credit, 10)
	if err := leaderPool.AddTransactions(tx.CanonicalBytes(), fakeINN{}); err != nil {
		t.Fatalf("AddTransactions: %v", err)
	}

	state := chainstate.New()
	state.AddCoin(debit, 1, 100)

	block, err := leaderPool.ProposeBlock(chain.TipHash(), state)
	if err != nil {
		t.Fatalf("ProposeBlock: %v", err)
	}

	leaderWorker := New(b, leaderPool, chain, fakeINN{}, nil, 0, 3, 0, leaderAddr, keyring.Key{Address: leaderAddr, Node: leaderNodePriv})

	sub := b.Subscribe(bus.ShardTopic(0))
	b.Publish(bus.NewMessage(bus.ShardTopic(0), bus.TypeProposalBlock, block.CanonicalBytes(), 1))

	// Two followers validate the proposal independently and emit VALID.
	followerWorkerA := New(b, txpool.New(followerAAddr, keyring.Key{Address: followerAAddr, Node: followerAPriv}, 3, txpool.DefaultBatchSize, chain), chain, fakeINN{}, nil, 0, 3, 1, followerAAddr, keyring.Key{Address: followerAAddr, Node: followerAPriv})
	followerWorkerB := New(b, txpool.New(followerBAddr, keyring.Key{Address: followerBAddr, Node: followerBPriv}, 3, txpool.DefaultBatchSize, chain), chain, fakeINN{}, nil, 0, 3, 2, followerBAddr, keyring.Key{Address: followerBAddr, Node: followerBPriv})

	m := <-sub // the PROPOSAL_BLOCK we just published
	followerWorkerA.Handle(m)
	followerWorkerB.Handle(m)

	// Drain the two VALID messages into the leader.
	validA := <-sub
	validB := <-sub
	leaderWorker.Handle(validA)
	leaderWorker.Handle(validB)

	if chain.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after threshold reached", chain.Size())
	}

	select {
	case fin := <-sub:
		if fin.Type != bus.TypeFinalBlock {
			t.Fatalf("Type = %v, want TypeFinalBlock", fin.Type)
		}
	default:
		t.Fatal("expected a FINAL_BLOCK to be published once the leader finalized")
	}
}

func TestHandleForwardsCrossShardMessages(t *testing.T) {
	b := bus.New()
	fwd := &fakeForwarder{}
	_, nodeAddr := genNodeKey(t)
	chain := blockchain.New()
	pool := txpool.New(nodeAddr, keyring.Key{}, 3, txpool.DefaultBatchSize, chain)
	w := New(b, pool, chain, fakeINN{}, fwd, 0, 3, 0, nodeAddr, keyring.Key{})

	w.Handle(bus.NewMessage(bus.RemoteTopic(1), bus.TypeGetBlocksSince, nil, 0))
	w.Handle(bus.NewMessage(bus.RemoteTopic(1), bus.TypeBlocksSince, nil, 0))
	w.Handle(bus.NewMessage(bus.RemoteTopic(1), bus.TypeRequestBlock, nil, 0))

	if fwd.calls != 3 {
		t.Fatalf("forwarder calls = %d, want 3", fwd.calls)
	}
}
