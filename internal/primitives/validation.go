package primitives

import (
	"encoding/binary"
	"fmt"
	"sort"

	"devv.network/node/internal/nodeerrors"
)

// validationEntry pairs a signing node address with its signature over a
// summary digest.
type validationEntry struct {
	Address   Address
	Signature Signature
}

// Validation is the ordered node_address -> signature mapping attached to a
// proposed or final block. Ascending address order makes the permutation of
// VALID arrivals irrelevant to the resulting canonical bytes (§5).
type Validation struct {
	entries []validationEntry
}

// NewValidation returns an empty Validation.
func NewValidation() *Validation { return &Validation{} }

// Len reports the number of distinct signers.
func (v *Validation) Len() int { return len(v.entries) }

// Has reports whether addr has already signed.
func (v *Validation) Has(addr Address) bool {
	_, ok := v.index(addr)
	return ok
}

func (v *Validation) index(addr Address) (int, bool) {
	i := sort.Search(len(v.entries), func(i int) bool { return v.entries[i].Address.Compare(addr) >= 0 })
	return i, i < len(v.entries) && v.entries[i].Address.Equal(addr)
}

// Add inserts addr's signature, keeping ascending address order. Returns
// false if addr had already signed (the existing signature is left
// untouched — finalization is idempotent under replayed VALID messages).
func (v *Validation) Add(addr Address, sig Signature) bool {
	i, ok := v.index(addr)
	if ok {
		return false
	}
	v.entries = append(v.entries, validationEntry{})
	copy(v.entries[i+1:], v.entries[i:])
	v.entries[i] = validationEntry{Address: addr, Signature: sig}
	return true
}

// VerifyAll reports whether every attached signature verifies over hash.
func (v *Validation) VerifyAll(hash []byte) bool {
	for _, e := range v.entries {
		if !VerifyNode(e.Address, hash, e.Signature) {
			return false
		}
	}
	return true
}

// SignatureFor returns the signature addr attached, if any.
func (v *Validation) SignatureFor(addr Address) (Signature, bool) {
	i, ok := v.index(addr)
	if !ok {
		return Signature{}, false
	}
	return v.entries[i].Signature, true
}

// Addresses returns the signer set in ascending canonical order.
func (v *Validation) Addresses() []Address {
	out := make([]Address, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.Address
	}
	return out
}

// CanonicalBytes encodes the validation set per §4.1: count(u32) ||
// [ address || signature ] in ascending address order.
func (v *Validation) CanonicalBytes() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(v.entries)))
	for _, e := range v.entries {
		out = append(out, e.Address.Bytes()...)
		out = append(out, e.Signature.Bytes()...)
	}
	return out
}

// ParseValidation reads a canonical Validation from the front of data.
func ParseValidation(data []byte) (*Validation, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: truncated validation count", nodeerrors.ErrMalformedTx)
	}
	count := binary.LittleEndian.Uint32(data)
	off := 4
	v := NewValidation()
	for i := uint32(0); i < count; i++ {
		addr, n, err := ParseAddress(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		sig, n, err := ParseSignature(data[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		v.entries = append(v.entries, validationEntry{Address: addr, Signature: sig})
	}
	return v, off, nil
}
