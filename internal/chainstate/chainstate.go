// Package chainstate implements the per-address, per-coin balance ledger
// every proposal and final block is checked and folded against.
package chainstate

import (
	"devv.network/node/internal/primitives"
)

type delayedKey struct {
	addr     string
	coinID   uint64
	maturity uint64
}

// ChainState is Address -> coin_id -> balance, plus a set of pending
// delayed credits keyed by (address, coin_id, maturity_time). It carries no
// internal lock: per the append-only Blockchain's single-writer discipline,
// callers serialize mutation and snapshot via Clone before concurrent reads.
type ChainState struct {
	balances map[string]map[uint64]int64
	addrs    map[string]primitives.Address
	pending  map[delayedKey]int64
}

// New returns an empty ChainState.
func New() *ChainState {
	return &ChainState{
		balances: make(map[string]map[uint64]int64),
		addrs:    make(map[string]primitives.Address),
		pending:  make(map[delayedKey]int64),
	}
}

// AddCoin updates addr's coin_id balance by delta, creating the inner map on
// first touch. No lower-bound check is performed here — callers enforce
// validity (Exchange sufficiency, INN minting) before folding a transfer in.
func (cs *ChainState) AddCoin(addr primitives.Address, coinID uint64, delta int64) {
	key := addr.String()
	coins, ok := cs.balances[key]
	if !ok {
		coins = make(map[uint64]int64)
		cs.balances[key] = coins
		cs.addrs[key] = addr
	}
	coins[coinID] += delta
}

// Amount returns addr's current balance for coinID, or 0 if untouched.
func (cs *ChainState) Amount(coinID uint64, addr primitives.Address) int64 {
	coins, ok := cs.balances[addr.String()]
	if !ok {
		return 0
	}
	return coins[coinID]
}

// ApplySummary folds every entry of summary into the ledger: immediate
// CoinMap deltas apply to the balance right away; DelayedMap deltas are
// parked as pending credits keyed by (address, coin, maturity_time) — here
// the summary's delay field already carries the absolute block-time-ms
// maturity, not a relative duration, so no current-time arithmetic happens
// at fold time. MatureDelayed later promotes whichever pending entries have
// reached their maturity.
func (cs *ChainState) ApplySummary(s *primitives.Summary) {
	s.ForEach(func(addr primitives.Address, coinID uint64, delta int64, delay uint64) {
		if delay > 0 {
			cs.pending[delayedKey{addr: addr.String(), coinID: coinID, maturity: delay}] += delta
			cs.addrs[addr.String()] = addr
		} else {
			cs.AddCoin(addr, coinID, delta)
		}
	})
}

// MatureDelayed folds every pending delayed credit whose maturity_time is
// at or before blockTimeMs into the main balance, and forgets it. Called
// once per applied block with that block's block_time_ms.
func (cs *ChainState) MatureDelayed(blockTimeMs uint64) {
	for k, delta := range cs.pending {
		if k.maturity > blockTimeMs {
			continue
		}
		addr := cs.addrs[k.addr]
		cs.AddCoin(addr, k.coinID, delta)
		delete(cs.pending, k)
	}
}

// Clone deep-copies the ledger, used to snapshot state before proposing a
// block so concurrent pool activity never mutates a proposal's basis.
func (cs *ChainState) Clone() *ChainState {
	out := New()
	for key, coins := range cs.balances {
		inner := make(map[uint64]int64, len(coins))
		for coin, amt := range coins {
			inner[coin] = amt
		}
		out.balances[key] = inner
	}
	for key, addr := range cs.addrs {
		out.addrs[key] = addr
	}
	for k, v := range cs.pending {
		out.pending[k] = v
	}
	return out
}

// Addresses returns every address the ledger has ever touched, in no
// particular order — used only for diagnostics/tests, never for canonical
// encoding (Summary/Validation own that ordering contract).
func (cs *ChainState) Addresses() []primitives.Address {
	out := make([]primitives.Address, 0, len(cs.addrs))
	for _, a := range cs.addrs {
		out = append(out, a)
	}
	return out
}
