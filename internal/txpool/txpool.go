// Package txpool holds the pending-transaction buffer and drives the
// propose/validate/finalize pipeline for one chain (a T2 shard or the T1
// root). It is the hardest single subsystem: a node holds at most one
// outstanding proposal per height, and every state transition is taken
// under a single mutex so propose/finalize races resolve deterministically.
package txpool

import (
	"fmt"
	"sync"

	"devv.network/node/internal/chainstate"
	"devv.network/node/internal/keyring"
	"devv.network/node/internal/logging"
	"devv.network/node/internal/metrics"
	"devv.network/node/internal/nodeerrors"
	"devv.network/node/internal/primitives"
)

var log = logging.Logger("TXPL")

// DefaultBatchSize is the default cap on transactions folded into one
// proposal, matching the spec's stated default.
const DefaultBatchSize = 10000

type acKey struct {
	addr string
	coin uint64
}

// ChainIndex is the minimal chain lookup the pool consults to reject a
// transaction already finalized on chain — the "or already on chain" half
// of the §7 DuplicateTx taxonomy entry ("signature already pooled or
// already on chain. Silent drop."). Satisfied by *blockchain.Blockchain;
// kept as an interface here to avoid a dependency on the blockchain
// package from txpool.
type ChainIndex interface {
	HeightOf(sig primitives.Signature) (uint64, bool)
}

// proposalState is the pool's own record of an outstanding proposal; the
// ChainState snapshot it was built against lives here rather than on
// primitives.ProposedBlock, since the wire encoding has no slot for it.
type proposalState struct {
	block    *primitives.ProposedBlock
	snapshot *chainstate.ChainState
}

// TransactionPool is guarded by a single mutex; every operation below
// acquires it, which serializes the per-height state machine without
// cross-locking against the other worker pools.
type TransactionPool struct {
	mu sync.Mutex

	pendingOrder []string
	pendingBySig map[string]primitives.T2Transaction

	proposal *proposalState

	chain     ChainIndex
	counters  *metrics.Counters
	batchSize int
	peerCount int

	localAddr primitives.Address
	localKey  keyring.Key
}

// New constructs an empty pool for a node signing as localAddr/localKey
// within a shard of peerCount peers. chain is consulted to reject
// transactions already finalized on chain; it may be nil in tests that
// never exercise that path.
func New(localAddr primitives.Address, localKey keyring.Key, peerCount, batchSize int, chain ChainIndex) *TransactionPool {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &TransactionPool{
		pendingBySig: make(map[string]primitives.T2Transaction),
		chain:        chain,
		counters:     &metrics.Counters{},
		batchSize:    batchSize,
		peerCount:    peerCount,
		localAddr:    localAddr,
		localKey:     localKey,
	}
}

// Counters exposes the pool's metrics registry.
func (p *TransactionPool) Counters() *metrics.Counters { return p.counters }

// Threshold is the number of signatures (inclusive) that finalize a
// proposal: strictly more than half the shard's peers.
func (p *TransactionPool) Threshold() int { return p.peerCount/2 + 1 }

func sigKey(sig primitives.Signature) string { return string(sig.Bytes()) }

// AddTransactions parses one or more canonical T2 transactions concatenated
// in batch, checks each for soundness, and inserts sound, non-duplicate
// transactions into the pending buffer keyed by signature. A transaction
// that fails to parse aborts the remainder of the batch (its byte offsets
// can no longer be trusted); one that parses but fails soundness is a
// per-tx drop and the scan continues.
func (p *TransactionPool) AddTransactions(batch []byte, inn primitives.INNChecker) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for cursor := 0; cursor < len(batch); {
		tx, n, err := primitives.ParseT2Transaction(batch[cursor:])
		if err != nil {
			p.counters.IncDroppedFrames()
			return fmt.Errorf("%w: batch truncated at offset %d: %v", nodeerrors.ErrMalformedFrame, cursor, err)
		}
		cursor += n

		if err := tx.Soundness(inn); err != nil {
			switch nodeerrors.Classify(err) {
			case nodeerrors.KindBadSignature:
				p.counters.IncRejectedBadSig()
			case nodeerrors.KindNotInnSigner:
				p.counters.IncRejectedNotInn()
			default:
				p.counters.IncRejectedMalformed()
			}
			log.Debugf("dropped unsound tx: %v", err)
			continue
		}

		key := sigKey(tx.Signature)
		if _, dup := p.pendingBySig[key]; dup {
			p.counters.IncRejectedDuplicate()
			continue
		}
		if p.chain != nil {
			if _, onChain := p.chain.HeightOf(tx.Signature); onChain {
				p.counters.IncRejectedDuplicate()
				continue
			}
		}
		p.pendingBySig[key] = tx
		p.pendingOrder = append(p.pendingOrder, key)
		p.counters.IncAcceptedTxs()
	}
	return nil
}

// HasPending reports whether any transaction awaits proposal.
func (p *TransactionPool) HasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingOrder) > 0
}

// PendingCount is the number of transactions awaiting proposal.
func (p *TransactionPool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingOrder)
}

// HasProposal reports whether a locally-built proposal is outstanding.
func (p *TransactionPool) HasProposal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proposal != nil
}

// foldAggregate implements the §4.5 aggregate-validity fold: a running
// per-(address,coin) committed-debit map makes the result independent of
// fold order. Only Exchange debits are balance-checked; Create/Modify/
// Delete may drive a snapshot balance negative (INN mint/retract).
func foldAggregate(txs []string, bySig map[string]primitives.T2Transaction, state *chainstate.ChainState) (accepted []primitives.T2Transaction, rejected []primitives.T2Transaction, summary *primitives.Summary) {
	committed := make(map[acKey]int64)
	summary = primitives.NewSummary()
	for _, key := range txs {
		tx := bySig[key]
		debitAddr, debitAmt, debitCoin, err := debitOf(tx)
		if err != nil {
			rejected = append(rejected, tx)
			continue
		}
		ak := acKey{addr: debitAddr.String(), coin: debitCoin}
		if tx.Operation == primitives.OpExchange {
			h := state.Amount(debitCoin, debitAddr)
			c := committed[ak]
			if h+c+debitAmt < 0 {
				rejected = append(rejected, tx)
				continue
			}
		}
		committed[ak] += debitAmt
		accepted = append(accepted, tx)
		for _, t := range tx.Transfers {
			summary.AddItem(t.Address, t.CoinID, t.Amount, t.Delay)
		}
	}
	return
}

func debitOf(tx primitives.T2Transaction) (primitives.Address, int64, uint64, error) {
	addr, err := tx.DebitAddress()
	if err != nil {
		return primitives.Address{}, 0, 0, err
	}
	for _, t := range tx.Transfers {
		if t.IsDebit() && t.Address.Equal(addr) {
			return addr, t.Amount, t.CoinID, nil
		}
	}
	return primitives.Address{}, 0, 0, nodeerrors.ErrNoDebitAddress
}

// ProposeBlock builds and stores a new proposal when called on this node's
// leader turn: it snapshots priorState, pops up to batchSize pending
// transactions, folds them via foldAggregate, and assembles a ProposedBlock
// with the local node's own validation signature attached first.
func (p *TransactionPool) ProposeBlock(prevHash primitives.Hash, priorState *chainstate.ChainState) (*primitives.ProposedBlock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proposal != nil {
		return nil, nodeerrors.ErrProposalAlreadyOutstanding
	}

	n := len(p.pendingOrder)
	if n > p.batchSize {
		n = p.batchSize
	}
	batch := p.pendingOrder[:n]
	snapshot := priorState.Clone()

	accepted, rejected, summary := foldAggregate(batch, p.pendingBySig, snapshot)
	for _, tx := range rejected {
		p.counters.IncRejectedInsufficient()
		log.Debugf("tx %x held for a later round: insufficient funds at propose time", tx.Signature.Bytes())
	}

	if err := summary.IsSane(); err != nil {
		// Nothing accepted this round; leave every popped tx pending and
		// report no proposal rather than emitting an empty block.
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrEmptySummary, err)
	}

	acceptedKeys := make(map[string]bool, len(accepted))
	txs := make([]primitives.Transaction, 0, len(accepted))
	for _, tx := range accepted {
		acceptedKeys[sigKey(tx.Signature)] = true
		txs = append(txs, primitives.NewT2(tx))
	}

	// Remove accepted txs from pending; re-append rejected (still-pending)
	// ones, in their original relative order, after any transactions beyond
	// this batch, for the next round.
	remaining := p.pendingOrder[n:]
	for _, key := range batch {
		if !acceptedKeys[key] {
			remaining = append(remaining, key)
		} else {
			delete(p.pendingBySig, key)
		}
	}
	p.pendingOrder = remaining

	block := &primitives.ProposedBlock{
		Version:      primitives.BlockVersion,
		PrevHash:     prevHash,
		Transactions: txs,
		Summary:      summary,
		Validations:  primitives.NewValidation(),
	}
	selfSig, err := p.localKey.Sign(summary.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: signing own proposal: %v", nodeerrors.ErrKeyMissing, err)
	}
	block.Validations.Add(p.localAddr, selfSig)

	p.proposal = &proposalState{block: block, snapshot: snapshot}
	p.counters.IncProposalsBuilt()
	return block, nil
}

// ReverifyProposal re-anchors an outstanding proposal to a new chain tip
// (reached because a peer's FinalBlock arrived first at this height). Per
// §4.5 and scenario S6, a transaction the superseded proposal carried must
// not be re-queued if it is already finalized on chain (via the incoming
// block or whatever else raced ahead of it) — only the transactions absent
// from the chain return to the pending buffer, since the next ProposeBlock
// call will re-run the identical validity fold against the new snapshot. If
// no proposal is outstanding this is a no-op.
func (p *TransactionPool) ReverifyProposal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proposal == nil {
		return
	}
	for _, tx := range p.proposal.block.Transactions {
		if p.chain != nil {
			if _, onChain := p.chain.HeightOf(tx.T2.Signature); onChain {
				continue
			}
		}
		key := sigKey(tx.T2.Signature)
		if _, known := p.pendingBySig[key]; known {
			continue
		}
		p.pendingBySig[key] = tx.T2
		p.pendingOrder = append(p.pendingOrder, key)
	}
	p.proposal = nil
}

// CheckValidation ingests a peer's VALID message on the leader: if
// prevHash matches the outstanding proposal, the signature is verified and
// appended (Validation.Add is itself idempotent against replays). Reports
// whether the cumulative signer count has crossed the finalize threshold.
func (p *TransactionPool) CheckValidation(prevHash primitives.Hash, nodeAddr primitives.Address, sig primitives.Signature) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proposal == nil || !p.proposal.block.PrevHash.Equal(prevHash) {
		return false
	}
	hash := p.proposal.block.Summary.Hash()
	if !primitives.VerifyNode(nodeAddr, hash[:], sig) {
		log.Warnf("ignoring unverifiable VALID from %s", nodeAddr)
		return false
	}
	p.proposal.block.Validations.Add(nodeAddr, sig)
	return p.proposal.block.Validations.Len() >= p.Threshold()
}

// FinalizeLocalBlock promotes the outstanding proposal to a FinalBlock once
// its threshold has been reached, stamping it with blockTimeMs and the
// merkle root of its transaction set, and clears the proposal. The caller
// is responsible for applying the result to a Blockchain.
func (p *TransactionPool) FinalizeLocalBlock(blockTimeMs uint64) (*primitives.FinalBlock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proposal == nil {
		return nil, nodeerrors.ErrNoOutstandingProposal
	}
	if p.proposal.block.Validations.Len() < p.Threshold() {
		return nil, nodeerrors.ErrThresholdNotMet
	}
	block := p.proposal.block
	final := &primitives.FinalBlock{
		Version:      block.Version,
		BlockTimeMs:  blockTimeMs,
		PrevHash:     block.PrevHash,
		MerkleRoot:   primitives.MerkleRootOf(block.Transactions),
		Transactions: block.Transactions,
		Summary:      block.Summary,
		Validations:  block.Validations,
	}
	p.proposal = nil
	p.counters.IncBlocksFinalized()
	return final, nil
}

// FinalizeRemoteBlock parses a peer's final block, re-validates every
// transaction against priorState, confirms the attached summary matches
// the recomputed aggregate and that the validation threshold is met, then
// drops any locally pending transaction whose signature appears in the
// block. It does not itself mutate priorState — applying the block to the
// authoritative ChainState is Blockchain.PushBack's job, so replaying this
// call (or a whole FINAL_BLOCK message) is inherently side-effect-free
// beyond the pending-set pruning, which is itself idempotent.
func (p *TransactionPool) FinalizeRemoteBlock(data []byte, priorState *chainstate.ChainState) (*primitives.FinalBlock, error) {
	block, _, err := primitives.ParseFinalBlock(data, primitives.TxKindT2)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sigs := make([]string, 0, len(block.Transactions))
	bySig := make(map[string]primitives.T2Transaction, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.Kind != primitives.TxKindT2 {
			return nil, fmt.Errorf("%w: unexpected T1 transaction in T2 block", nodeerrors.ErrInvalidFinalBlock)
		}
		key := sigKey(tx.T2.Signature)
		sigs = append(sigs, key)
		bySig[key] = tx.T2
	}

	snapshot := priorState.Clone()
	accepted, rejected, recomputed := foldAggregate(sigs, bySig, snapshot)
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: %d transaction(s) invalid against prior state", nodeerrors.ErrInvalidFinalBlock, len(rejected))
	}
	_ = accepted

	if string(recomputed.CanonicalBytes()) != string(block.Summary.CanonicalBytes()) {
		return nil, fmt.Errorf("%w: summary does not match recomputed aggregate", nodeerrors.ErrSummaryAsymmetric)
	}

	if block.Validations.Len() < p.Threshold() {
		return nil, nodeerrors.ErrThresholdNotMet
	}
	summaryHash := block.Summary.Hash()
	if !block.Validations.VerifyAll(summaryHash[:]) {
		return nil, nodeerrors.ErrBadSignature
	}

	for _, key := range sigs {
		if _, ok := p.pendingBySig[key]; ok {
			delete(p.pendingBySig, key)
			for i, k := range p.pendingOrder {
				if k == key {
					p.pendingOrder = append(p.pendingOrder[:i], p.pendingOrder[i+1:]...)
					break
				}
			}
		}
	}

	return block, nil
}
