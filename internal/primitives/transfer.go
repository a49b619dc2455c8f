package primitives

import (
	"encoding/binary"
	"fmt"

	"devv.network/node/internal/nodeerrors"
)

// Transfer is a single coin movement: a negative Amount is a debit, a
// positive Amount a credit. Delay, when nonzero, defers the credit until
// ChainState.MatureDelayed observes a block time at or past its maturity.
type Transfer struct {
	Address Address
	CoinID  uint64
	Amount  int64
	Delay   uint64
}

// IsDebit reports whether this transfer removes funds.
func (t Transfer) IsDebit() bool { return t.Amount < 0 }

// transferFixedLen is the wire size of coin_id+amount+delay, excluding the
// variable-length address prefix.
const transferFixedLen = 8 + 8 + 8

// CanonicalBytes encodes t as address_canonical || coin_id(u64) ||
// amount(i64) || delay(u64), all integers little-endian.
func (t Transfer) CanonicalBytes() []byte {
	out := make([]byte, 0, len(t.Address.Bytes())+transferFixedLen)
	out = append(out, t.Address.Bytes()...)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], t.CoinID)
	out = append(out, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], uint64(t.Amount))
	out = append(out, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], t.Delay)
	out = append(out, buf[:]...)
	return out
}

// ParseTransfer reads one canonical Transfer from the front of data,
// returning it and the number of bytes consumed.
func ParseTransfer(data []byte) (Transfer, int, error) {
	addr, n, err := ParseAddress(data)
	if err != nil {
		return Transfer{}, 0, err
	}
	if len(data) < n+transferFixedLen {
		return Transfer{}, 0, fmt.Errorf("%w: truncated transfer", nodeerrors.ErrMalformedTx)
	}
	rest := data[n:]
	coinID := binary.LittleEndian.Uint64(rest[0:8])
	amount := int64(binary.LittleEndian.Uint64(rest[8:16]))
	delay := binary.LittleEndian.Uint64(rest[16:24])
	return Transfer{Address: addr, CoinID: coinID, Amount: amount, Delay: delay}, n + transferFixedLen, nil
}
