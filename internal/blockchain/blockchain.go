// Package blockchain holds the append-only sequence of final blocks for one
// chain (a T2 shard or the T1 root), its rolling chain state, and a
// signature->height index.
package blockchain

import (
	"fmt"
	"sync"

	"devv.network/node/internal/chainstate"
	"devv.network/node/internal/logging"
	"devv.network/node/internal/nodeerrors"
	"devv.network/node/internal/primitives"
)

var log = logging.Logger("BLKC")

// Blockchain is the append-only FinalBlock sequence plus the ChainState
// folded from it. Appends happen only on the consensus thread that owns
// finalization; readers take the read side of mu.
type Blockchain struct {
	mu     sync.RWMutex
	blocks []*primitives.FinalBlock
	state  *chainstate.ChainState
	txIdx  map[string]uint64 // raw signature bytes (string of Bytes()) -> height
}

// New returns an empty chain with a fresh ChainState.
func New() *Blockchain {
	return &Blockchain{
		state: chainstate.New(),
		txIdx: make(map[string]uint64),
	}
}

func sigKey(sig primitives.Signature) string { return string(sig.Bytes()) }

// PushBack appends block, asserting it chains to the current tip (or
// Genesis at height 0), folds its summary into the rolling ChainState,
// matures any delayed credits at the block's timestamp, and indexes every
// transaction signature to this height.
func (bc *Blockchain) PushBack(block *primitives.FinalBlock) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	expectedPrev := primitives.GenesisHash
	if len(bc.blocks) > 0 {
		expectedPrev = bc.blocks[len(bc.blocks)-1].Hash()
	}
	if !block.PrevHash.Equal(expectedPrev) {
		return fmt.Errorf("%w: at height %d", nodeerrors.ErrPrevHashMismatch, len(bc.blocks))
	}

	bc.state.ApplySummary(block.Summary)
	bc.state.MatureDelayed(block.BlockTimeMs)

	height := uint64(len(bc.blocks))
	for _, tx := range block.Transactions {
		sig := tx.Signature()
		if sig.IsNull() {
			continue
		}
		bc.txIdx[sigKey(sig)] = height
	}
	bc.blocks = append(bc.blocks, block)
	log.Infof("appended block at height %d, %d txs", height, len(block.Transactions))
	return nil
}

// Size is the chain's current height (number of final blocks).
func (bc *Blockchain) Size() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return uint64(len(bc.blocks))
}

// HeightOf reports the height at which a transaction with this signature
// was finalized, used by the pool's duplicate-on-chain check.
func (bc *Blockchain) HeightOf(sig primitives.Signature) (uint64, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	h, ok := bc.txIdx[sigKey(sig)]
	return h, ok
}

// TipHash returns the hash a block at the next height must chain to.
func (bc *Blockchain) TipHash() primitives.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if len(bc.blocks) == 0 {
		return primitives.GenesisHash
	}
	return bc.blocks[len(bc.blocks)-1].Hash()
}

// GetHighestMerkleRoot returns the tip block's merkle root, or the zero
// hash on an empty chain.
func (bc *Blockchain) GetHighestMerkleRoot() primitives.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if len(bc.blocks) == 0 {
		return primitives.Hash{}
	}
	return bc.blocks[len(bc.blocks)-1].MerkleRoot
}

// GetHighestChainState returns a snapshot of the rolling chain state, safe
// for the caller to mutate or hold onto independently of further appends.
func (bc *Blockchain) GetHighestChainState() *chainstate.ChainState {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.Clone()
}

// PartialBinaryDump returns the concatenated canonical bytes of every block
// at height >= fromHeight, the payload a BLOCKS_SINCE reply carries.
func (bc *Blockchain) PartialBinaryDump(fromHeight uint64) []byte {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	var out []byte
	for h := fromHeight; h < uint64(len(bc.blocks)); h++ {
		out = append(out, bc.blocks[h].CanonicalBytes()...)
	}
	return out
}

// CopyTransactions returns every transaction across the whole chain, in
// height then in-block order, for offline analysis.
func (bc *Blockchain) CopyTransactions() []primitives.Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	var out []primitives.Transaction
	for _, b := range bc.blocks {
		out = append(out, b.Transactions...)
	}
	return out
}

// ApplyProjection credits transfers directly into the rolling chain state
// outside of a normal block append, the internetwork worker's mechanism for
// folding BLOCKS_SINCE credits (already filtered to this shard's
// designated wallets) into local balances without fabricating a FinalBlock
// for them.
func (bc *Blockchain) ApplyProjection(transfers []primitives.Transfer) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, t := range transfers {
		bc.state.AddCoin(t.Address, t.CoinID, t.Amount)
	}
}

// BlockAt returns the final block at height h.
func (bc *Blockchain) BlockAt(h uint64) (*primitives.FinalBlock, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if h >= uint64(len(bc.blocks)) {
		return nil, false
	}
	return bc.blocks[h], true
}
