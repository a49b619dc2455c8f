// Package validatorworker handles TRANSACTION_ANNOUNCEMENT traffic: it
// hands incoming batches to the pool and, on this node's leader turn,
// triggers a new proposal.
package validatorworker

import (
	"devv.network/node/internal/bus"
	"devv.network/node/internal/chainstate"
	"devv.network/node/internal/logging"
	"devv.network/node/internal/primitives"
	"devv.network/node/internal/txpool"
)

var log = logging.Logger("VLDW")

// ChainView is the slice of Blockchain the validator worker reads to know
// the current height and tip chain state; kept as an interface so this
// package doesn't import internal/blockchain for a three-method dependency.
type ChainView interface {
	Size() uint64
	TipHash() primitives.Hash
	GetHighestChainState() *chainstate.ChainState
}

// Worker dispatches TRANSACTION_ANNOUNCEMENT messages for one shard.
type Worker struct {
	bus        *bus.Bus
	pool       *txpool.TransactionPool
	chain      ChainView
	keys       primitives.INNChecker
	shardIndex int
	peerCount  int
	nodeIndex  int
}

// New builds a validator worker publishing PROPOSAL_BLOCK onto
// shard-<shardIndex> when it is this node's turn to propose.
func New(b *bus.Bus, pool *txpool.TransactionPool, chain ChainView, keys primitives.INNChecker, shardIndex, peerCount, nodeIndex int) *Worker {
	return &Worker{bus: b, pool: pool, chain: chain, keys: keys, shardIndex: shardIndex, peerCount: peerCount, nodeIndex: nodeIndex}
}

// isLeader reports whether this node proposes at height h, per
// height mod peer_count == node_index mod peer_count.
func (w *Worker) isLeader(height uint64) bool {
	return int(height%uint64(w.peerCount)) == w.nodeIndex%w.peerCount
}

// Handle processes one message; callers invoke it from a worker pool
// goroutine per §4.10.
func (w *Worker) Handle(m bus.Message) {
	if m.Type != bus.TypeTransactionAnnouncement {
		return
	}
	if err := w.pool.AddTransactions(m.Payload, w.keys); err != nil {
		log.Warnf("dropping malformed transaction batch: %v", err)
		return
	}

	height := w.chain.Size()
	if !w.isLeader(height) || w.pool.HasProposal() {
		return
	}

	block, err := w.pool.ProposeBlock(w.chain.TipHash(), w.chain.GetHighestChainState())
	if err != nil {
		log.Debugf("no proposal built at height %d: %v", height, err)
		return
	}
	w.bus.Publish(bus.NewMessage(bus.ShardTopic(w.shardIndex), bus.TypeProposalBlock, block.CanonicalBytes(), uint32(height)))
}
