// Package consensusworker drives the PROPOSAL_BLOCK / VALID / FINAL_BLOCK
// state machine described in §4.8, and forwards the cross-shard request
// types to the internetwork worker.
package consensusworker

import (
	"time"

	"devv.network/node/internal/bus"
	"devv.network/node/internal/chainstate"
	"devv.network/node/internal/keyring"
	"devv.network/node/internal/logging"
	"devv.network/node/internal/nodeerrors"
	"devv.network/node/internal/primitives"
	"devv.network/node/internal/txpool"
)

var log = logging.Logger("CNSW")

// Chain is the slice of Blockchain the consensus worker needs: appending
// finalized blocks and reading the tip for the next round's proposal.
type Chain interface {
	PushBack(block *primitives.FinalBlock) error
	Size() uint64
	TipHash() primitives.Hash
	GetHighestChainState() *chainstate.ChainState
}

// Forwarder hands REQUEST_BLOCK / GET_BLOCKS_SINCE / BLOCKS_SINCE messages
// to the internetwork worker; kept as an interface to avoid a dependency
// cycle between the two worker packages.
type Forwarder interface {
	Handle(m bus.Message)
}

// Worker dispatches consensus-tier bus messages for one shard.
type Worker struct {
	bus        *bus.Bus
	pool       *txpool.TransactionPool
	chain      Chain
	keys       primitives.INNChecker
	forwarder  Forwarder
	shardIndex int
	peerCount  int
	nodeIndex  int
	localAddr  primitives.Address
	localKey   keyring.Key
}

// New builds a consensus worker for one shard. localAddr/localKey are this
// node's own node-tier identity, used to sign VALID messages.
func New(b *bus.Bus, pool *txpool.TransactionPool, chain Chain, keys primitives.INNChecker, forwarder Forwarder, shardIndex, peerCount, nodeIndex int, localAddr primitives.Address, localKey keyring.Key) *Worker {
	return &Worker{
		bus: b, pool: pool, chain: chain, keys: keys, forwarder: forwarder,
		shardIndex: shardIndex, peerCount: peerCount, nodeIndex: nodeIndex,
		localAddr: localAddr, localKey: localKey,
	}
}

func (w *Worker) isLeader(height uint64) bool {
	return int(height%uint64(w.peerCount)) == w.nodeIndex%w.peerCount
}

// Handle processes one bus message, dispatching on its type.
func (w *Worker) Handle(m bus.Message) {
	switch m.Type {
	case bus.TypeProposalBlock:
		w.handleProposal(m)
	case bus.TypeValid:
		w.handleValid(m)
	case bus.TypeFinalBlock:
		w.handleFinalBlock(m)
	case bus.TypeRequestBlock, bus.TypeGetBlocksSince, bus.TypeBlocksSince:
		if w.forwarder != nil {
			w.forwarder.Handle(m)
		}
	default:
		log.Debugf("ignoring message of type %s on %s", m.Type, m.URI)
	}
}

func (w *Worker) handleProposal(m bus.Message) {
	block, _, err := primitives.ParseProposedBlock(m.Payload, primitives.TxKindT2)
	if err != nil {
		log.Warnf("dropping malformed PROPOSAL_BLOCK: %v", err)
		return
	}
	if err := block.Validate(w.keys); err != nil {
		log.Warnf("rejecting invalid proposal: %v", err)
		return
	}

	summaryHash := block.Summary.Hash()
	sig, err := w.localKey.Sign(summaryHash)
	if err != nil {
		log.Warnf("failed to sign VALID: %v", err)
		return
	}

	payload := make([]byte, 0, 32+len(w.localAddr.Bytes())+len(sig.Bytes()))
	payload = append(payload, block.PrevHash[:]...)
	payload = append(payload, w.localAddr.Bytes()...)
	payload = append(payload, sig.Bytes()...)
	w.bus.Publish(bus.NewMessage(bus.ShardTopic(w.shardIndex), bus.TypeValid, payload, m.Index))
}

func parseValidPayload(data []byte) (prevHash primitives.Hash, nodeAddr primitives.Address, sig primitives.Signature, err error) {
	prevHash, n, err := primitives.ParseHash(data)
	if err != nil {
		return
	}
	off := n
	nodeAddr, n, err = primitives.ParseAddress(data[off:])
	if err != nil {
		return
	}
	off += n
	sig, _, err = primitives.ParseSignature(data[off:])
	return
}

func (w *Worker) handleValid(m bus.Message) {
	if !w.isLeader(w.chain.Size()) {
		return
	}
	prevHash, nodeAddr, sig, err := parseValidPayload(m.Payload)
	if err != nil {
		log.Warnf("dropping malformed VALID: %v", err)
		return
	}
	if !w.pool.CheckValidation(prevHash, nodeAddr, sig) {
		return
	}

	final, err := w.pool.FinalizeLocalBlock(currentBlockTimeMs())
	if err != nil {
		log.Warnf("finalize_local_block failed after threshold reached: %v", err)
		return
	}
	if err := w.chain.PushBack(final); err != nil {
		log.Warnf("failed to append locally finalized block: %v", err)
		return
	}
	w.bus.Publish(bus.NewMessage(bus.ShardTopic(w.shardIndex), bus.TypeFinalBlock, final.CanonicalBytes(), m.Index))
}

func (w *Worker) handleFinalBlock(m bus.Message) {
	priorState := w.chain.GetHighestChainState()
	final, err := w.pool.FinalizeRemoteBlock(m.Payload, priorState)
	if err != nil {
		if nodeerrors.Fatal(err) {
			log.Warnf("fatal error finalizing remote block, escalating: %v", err)
		} else {
			log.Warnf("dropping remote final block: %v", err)
		}
		return
	}

	if err := w.chain.PushBack(final); err != nil {
		// The tip already advanced (a race with our own local finalization,
		// or a replayed message) — reverify the outstanding proposal against
		// the new tip and drop it silently, since PushBack's own prev_hash
		// check makes a second apply of the same block a safe no-op.
		log.Debugf("remote final block did not chain (likely already applied): %v", err)
		w.pool.ReverifyProposal()
		return
	}
	w.pool.ReverifyProposal()

	height := w.chain.Size()
	if w.pool.HasPending() && w.isLeader(height) && !w.pool.HasProposal() {
		block, err := w.pool.ProposeBlock(w.chain.TipHash(), w.chain.GetHighestChainState())
		if err != nil {
			log.Debugf("no proposal built after remote finalization at height %d: %v", height, err)
			return
		}
		w.bus.Publish(bus.NewMessage(bus.ShardTopic(w.shardIndex), bus.TypeProposalBlock, block.CanonicalBytes(), uint32(height)))
	}
}

// currentBlockTimeMs stamps a freshly finalized block with wall-clock time;
// a package-level var rather than a direct time.Now() call so tests can
// override it for deterministic FinalBlock.BlockTimeMs assertions.
var currentBlockTimeMs = func() uint64 {
	return uint64(time.Now().UnixMilli())
}
