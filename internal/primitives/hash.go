package primitives

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"devv.network/node/internal/nodeerrors"
)

// HashLen is the width of every hash in the wire protocol: a plain SHA-256
// digest, never double-hashed.
const HashLen = 32

// Hash is a fixed 32-byte SHA-256 digest.
type Hash [HashLen]byte

// ZeroHash is the all-zero digest used as a sentinel, never a real prev_hash.
var ZeroHash = Hash{}

// SumHash returns the SHA-256 digest of data.
func SumHash(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// GenesisHash is sha256("Genesis"), the prev_hash the first block in a chain
// must chain to.
var GenesisHash = SumHash([]byte("Genesis"))

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// Bytes returns h as a freshly-allocated slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashLen)
	copy(out, h[:])
	return out
}

// Equal reports whether h and o are the same digest.
func (h Hash) Equal(o Hash) bool { return h == o }

// Compare orders hashes byte-lexicographically.
func (h Hash) Compare(o Hash) int { return bytes.Compare(h[:], o[:]) }

// String renders h as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ParseHash reads a fixed HashLen-byte digest from the front of data.
func ParseHash(data []byte) (Hash, int, error) {
	if len(data) < HashLen {
		return Hash{}, 0, fmt.Errorf("%w: truncated hash", nodeerrors.ErrMalformedTx)
	}
	var h Hash
	copy(h[:], data[:HashLen])
	return h, HashLen, nil
}

// HashFromHex parses the hex form produced by String.
func HashFromHex(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", nodeerrors.ErrMalformedTx, err)
	}
	if len(raw) != HashLen {
		return Hash{}, fmt.Errorf("%w: hash must be %d bytes, got %d", nodeerrors.ErrMalformedTx, HashLen, len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}
