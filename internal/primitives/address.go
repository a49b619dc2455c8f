// Package primitives implements the Devv wire types: addresses, signatures,
// hashes, transfers, transactions, summaries, validations and blocks, plus
// their canonical byte encodings. Everything that gets hashed or signed in
// the validator core is a canonical encoding produced by this package.
package primitives

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"devv.network/node/internal/nodeerrors"
)

// AddressType is the single tag byte that precedes every address's key
// material on the wire.
type AddressType byte

const (
	// AddressTypeWallet marks a secp256k1 wallet address (compressed pubkey).
	AddressTypeWallet AddressType = 1
	// AddressTypeNode marks a secp384r1 (P-384) node address.
	AddressTypeNode AddressType = 2
)

const (
	walletAddressBodyLen = 33 // compressed secp256k1 public key
	nodeAddressBodyLen   = 49 // compressed-by-convention secp384r1 key: 1 prefix + 48 bytes
)

// Address is a tagged byte string: a type byte followed by the address
// body. Canonical form always includes the type prefix, and two addresses
// are equal iff their canonical bytes are equal.
type Address struct {
	typ  AddressType
	body []byte
}

// NewWalletAddress wraps a 33-byte compressed secp256k1 public key as a
// wallet address.
func NewWalletAddress(compressedPubKey []byte) (Address, error) {
	if len(compressedPubKey) != walletAddressBodyLen {
		return Address{}, fmt.Errorf("%w: wallet address body must be %d bytes, got %d", nodeerrors.ErrMalformedTx, walletAddressBodyLen, len(compressedPubKey))
	}
	body := make([]byte, walletAddressBodyLen)
	copy(body, compressedPubKey)
	return Address{typ: AddressTypeWallet, body: body}, nil
}

// NewNodeAddress wraps a 49-byte secp384r1 key encoding as a node address.
func NewNodeAddress(nodeKeyBytes []byte) (Address, error) {
	if len(nodeKeyBytes) != nodeAddressBodyLen {
		return Address{}, fmt.Errorf("%w: node address body must be %d bytes, got %d", nodeerrors.ErrMalformedTx, nodeAddressBodyLen, len(nodeKeyBytes))
	}
	body := make([]byte, nodeAddressBodyLen)
	copy(body, nodeKeyBytes)
	return Address{typ: AddressTypeNode, body: body}, nil
}

// ParseAddress reads a canonical address (type byte + body) from the front
// of data and returns it along with the number of bytes consumed.
func ParseAddress(data []byte) (Address, int, error) {
	if len(data) < 1 {
		return Address{}, 0, fmt.Errorf("%w: empty address", nodeerrors.ErrMalformedTx)
	}
	typ := AddressType(data[0])
	var bodyLen int
	switch typ {
	case AddressTypeWallet:
		bodyLen = walletAddressBodyLen
	case AddressTypeNode:
		bodyLen = nodeAddressBodyLen
	default:
		return Address{}, 0, fmt.Errorf("%w: 0x%x", nodeerrors.ErrUnknownAddressType, data[0])
	}
	if len(data) < 1+bodyLen {
		return Address{}, 0, fmt.Errorf("%w: truncated address", nodeerrors.ErrMalformedTx)
	}
	body := make([]byte, bodyLen)
	copy(body, data[1:1+bodyLen])
	return Address{typ: typ, body: body}, 1 + bodyLen, nil
}

// Type reports whether this is a wallet or node address.
func (a Address) Type() AddressType { return a.typ }

// IsZero reports whether a is the uninitialized Address{}.
func (a Address) IsZero() bool { return a.typ == 0 && a.body == nil }

// Bytes returns the canonical encoding: type byte followed by the body.
func (a Address) Bytes() []byte {
	out := make([]byte, 0, 1+len(a.body))
	out = append(out, byte(a.typ))
	out = append(out, a.body...)
	return out
}

// Equal reports whether a and b have identical canonical bytes.
func (a Address) Equal(b Address) bool {
	return a.typ == b.typ && bytes.Equal(a.body, b.body)
}

// Compare orders addresses lexicographically on canonical bytes, as
// required for the address-keyed ordered containers used by Summary and
// Validation.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// String renders the canonical bytes as hex, matching the PEM key file
// format's "<hex address>" convention from §6.
func (a Address) String() string {
	return hex.EncodeToString(a.Bytes())
}

// ParseAddressHex parses the hex form produced by String.
func ParseAddressHex(s string) (Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", nodeerrors.ErrMalformedTx, err)
	}
	addr, n, err := ParseAddress(raw)
	if err != nil {
		return Address{}, err
	}
	if n != len(raw) {
		return Address{}, fmt.Errorf("%w: trailing bytes after address", nodeerrors.ErrMalformedTx)
	}
	return addr, nil
}
