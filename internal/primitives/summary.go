package primitives

import (
	"encoding/binary"
	"fmt"
	"sort"

	"devv.network/node/internal/nodeerrors"
)

// delayedEntry is one DelayedMap slot: a coin whose delta matures at Delay
// (interpreted by ChainState as an absolute block_time_ms maturity).
type delayedEntry struct {
	CoinID uint64
	Delta  int64
	Delay  uint64
}

// coinEntry is one CoinMap slot: an immediately-applied coin delta.
type coinEntry struct {
	CoinID uint64
	Amount int64
}

// summaryItem is the per-address (DelayedMap, CoinMap) pair, each kept in
// ascending coin_id order so two summaries built from a permuted transfer
// set still encode identically.
type summaryItem struct {
	Delayed []delayedEntry
	Coins   []coinEntry
}

func (it *summaryItem) addDelayed(coin uint64, delta int64, delay uint64) {
	i := sort.Search(len(it.Delayed), func(i int) bool { return it.Delayed[i].CoinID >= coin })
	if i < len(it.Delayed) && it.Delayed[i].CoinID == coin {
		it.Delayed[i].Delta += delta
		return
	}
	it.Delayed = append(it.Delayed, delayedEntry{})
	copy(it.Delayed[i+1:], it.Delayed[i:])
	it.Delayed[i] = delayedEntry{CoinID: coin, Delta: delta, Delay: delay}
}

func (it *summaryItem) addCoin(coin uint64, delta int64) {
	i := sort.Search(len(it.Coins), func(i int) bool { return it.Coins[i].CoinID >= coin })
	if i < len(it.Coins) && it.Coins[i].CoinID == coin {
		it.Coins[i].Amount += delta
		return
	}
	it.Coins = append(it.Coins, coinEntry{})
	copy(it.Coins[i+1:], it.Coins[i:])
	it.Coins[i] = coinEntry{CoinID: coin, Amount: delta}
}

// summaryEntry pairs an address with its item, kept in a Summary's entries
// slice in ascending Address canonical-byte order.
type summaryEntry struct {
	Address Address
	Item    summaryItem
}

// Summary is the ordered Address -> (DelayedMap, CoinMap) mapping built by
// folding transfers over one or more transactions into a single block-level
// aggregate. Address order is total on canonical bytes, never a hash map.
type Summary struct {
	entries []summaryEntry
}

// NewSummary returns an empty Summary ready for AddItem calls.
func NewSummary() *Summary { return &Summary{} }

func (s *Summary) entryIndex(addr Address) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Address.Compare(addr) >= 0 })
	return i, i < len(s.entries) && s.entries[i].Address.Equal(addr)
}

func (s *Summary) entryFor(addr Address) *summaryEntry {
	i, ok := s.entryIndex(addr)
	if ok {
		return &s.entries[i]
	}
	s.entries = append(s.entries, summaryEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = summaryEntry{Address: addr}
	return &s.entries[i]
}

// AddItem folds one (address, coin, delta) contribution into the summary.
// delay > 0 routes into the address's DelayedMap, else its CoinMap.
// Duplicate (address, coin) contributions accumulate by addition; zero
// entries are retained rather than removed, preserving the address/coin key
// set regardless of fold order.
func (s *Summary) AddItem(addr Address, coin uint64, delta int64, delay uint64) {
	e := s.entryFor(addr)
	if delay > 0 {
		e.Item.addDelayed(coin, delta, delay)
	} else {
		e.Item.addCoin(coin, delta)
	}
}

// Merge folds every entry of other into s by addition on matching
// (address, coin) keys, used when aggregating multiple transactions.
func (s *Summary) Merge(other *Summary) {
	for _, e := range other.entries {
		for _, d := range e.Item.Delayed {
			s.AddItem(e.Address, d.CoinID, d.Delta, d.Delay)
		}
		for _, c := range e.Item.Coins {
			s.AddItem(e.Address, c.CoinID, c.Amount, 0)
		}
	}
}

// IsSane reports the §4.4 invariant: a summary must have at least one
// address entry, and its deltas (delayed and immediate together) must sum
// to zero across every address and coin.
func (s *Summary) IsSane() error {
	if len(s.entries) == 0 {
		return nodeerrors.ErrEmptySummary
	}
	var total int64
	for _, e := range s.entries {
		for _, d := range e.Item.Delayed {
			total += d.Delta
		}
		for _, c := range e.Item.Coins {
			total += c.Amount
		}
	}
	if total != 0 {
		return nodeerrors.ErrSummaryAsymmetric
	}
	return nil
}

// GetTransfers reconstructs the Transfer list this summary was (or could
// have been) built from, in canonical address/coin order: one Transfer per
// delayed entry (carrying its Delay) followed by one per immediate entry.
// Used when restating a T2 block's summary as a T1 transaction.
func (s *Summary) GetTransfers() []Transfer {
	var out []Transfer
	for _, e := range s.entries {
		for _, d := range e.Item.Delayed {
			out = append(out, Transfer{Address: e.Address, CoinID: d.CoinID, Amount: d.Delta, Delay: d.Delay})
		}
		for _, c := range e.Item.Coins {
			out = append(out, Transfer{Address: e.Address, CoinID: c.CoinID, Amount: c.Amount, Delay: 0})
		}
	}
	return out
}

// ForEach visits every (address, coin, delta, delay) contribution in the
// summary, delayed entries before immediate ones within each address. Used
// by ChainState.ApplySummary to fold the summary in one pass instead of
// reconstructing and re-scanning a Transfer list.
func (s *Summary) ForEach(fn func(addr Address, coinID uint64, delta int64, delay uint64)) {
	for _, e := range s.entries {
		for _, d := range e.Item.Delayed {
			fn(e.Address, d.CoinID, d.Delta, d.Delay)
		}
		for _, c := range e.Item.Coins {
			fn(e.Address, c.CoinID, c.Amount, 0)
		}
	}
}

// Addresses returns the summary's address set in ascending canonical order.
func (s *Summary) Addresses() []Address {
	out := make([]Address, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Address
	}
	return out
}

func putU64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

func putI64(out []byte, v int64) []byte {
	return putU64(out, uint64(v))
}

// CanonicalBytes encodes the summary per §4.1: address_count(u64) ||
// [ address || item ] in ascending address order, where each item is
// delay_count(u64) || coin_count(u64) || delayed entries || coin entries.
func (s *Summary) CanonicalBytes() []byte {
	out := putU64(nil, uint64(len(s.entries)))
	for _, e := range s.entries {
		out = append(out, e.Address.Bytes()...)
		out = putU64(out, uint64(len(e.Item.Delayed)))
		out = putU64(out, uint64(len(e.Item.Coins)))
		for _, d := range e.Item.Delayed {
			out = putU64(out, d.CoinID)
			out = putU64(out, d.Delay)
			out = putI64(out, d.Delta)
		}
		for _, c := range e.Item.Coins {
			out = putU64(out, c.CoinID)
			out = putI64(out, c.Amount)
		}
	}
	return out
}

// GetCanonical is an alias for CanonicalBytes matching the §4.4 operation name.
func (s *Summary) GetCanonical() []byte { return s.CanonicalBytes() }

// Hash returns the SHA-256 digest of the summary's canonical bytes, the
// value every Validation signature and T1 transaction signs over.
func (s *Summary) Hash() Hash { return SumHash(s.CanonicalBytes()) }

func readU64(data []byte) (uint64, int, error) {
	if len(data) < 8 {
		return 0, 0, fmt.Errorf("%w: truncated u64", nodeerrors.ErrMalformedTx)
	}
	return binary.LittleEndian.Uint64(data), 8, nil
}

func readI64(data []byte) (int64, int, error) {
	v, n, err := readU64(data)
	return int64(v), n, err
}

// ParseSummary reads a canonical Summary from the front of data.
func ParseSummary(data []byte) (*Summary, int, error) {
	addrCount, n, err := readU64(data)
	if err != nil {
		return nil, 0, err
	}
	off := n
	s := NewSummary()
	for i := uint64(0); i < addrCount; i++ {
		addr, n, err := ParseAddress(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n

		delayCount, n, err := readU64(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		coinCount, n, err := readU64(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n

		item := summaryItem{
			Delayed: make([]delayedEntry, 0, delayCount),
			Coins:   make([]coinEntry, 0, coinCount),
		}
		for j := uint64(0); j < delayCount; j++ {
			coin, n, err := readU64(data[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			delay, n, err := readU64(data[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			delta, n, err := readI64(data[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			item.Delayed = append(item.Delayed, delayedEntry{CoinID: coin, Delay: delay, Delta: delta})
		}
		for j := uint64(0); j < coinCount; j++ {
			coin, n, err := readU64(data[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			amount, n, err := readI64(data[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			item.Coins = append(item.Coins, coinEntry{CoinID: coin, Amount: amount})
		}
		s.entries = append(s.entries, summaryEntry{Address: addr, Item: item})
	}
	return s, off, nil
}
