package primitives

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"devv.network/node/internal/nodeerrors"
)

// SignatureType is the tag byte preceding a signature's body. A zero value
// distinguishes the null signature (no signer yet).
type SignatureType byte

const (
	SignatureTypeNull   SignatureType = 0
	SignatureTypeWallet SignatureType = 1
	SignatureTypeNode   SignatureType = 2
)

const (
	walletSignatureBodyLen = 72  // fixed-width DER over secp256k1
	nodeSignatureBodyLen   = 103 // DER over secp384r1, padded/bounded to this width
)

// Signature is a tagged byte string carrying either a wallet-tier or a
// node-tier ECDSA signature, or nothing (the null signature).
type Signature struct {
	typ  SignatureType
	body []byte
}

// NullSignature returns the distinguished "no signature" value.
func NullSignature() Signature { return Signature{typ: SignatureTypeNull} }

// IsNull reports whether sig carries no signature material.
func (s Signature) IsNull() bool { return s.typ == SignatureTypeNull }

func (s Signature) Type() SignatureType { return s.typ }

// Bytes returns the canonical encoding: type byte followed by the body
// (empty body for the null signature).
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 1+len(s.body))
	out = append(out, byte(s.typ))
	out = append(out, s.body...)
	return out
}

func (s Signature) Equal(o Signature) bool {
	return s.typ == o.typ && bytes.Equal(s.body, o.body)
}

// ParseSignature reads a canonical signature from the front of data,
// returning it and the number of bytes consumed.
func ParseSignature(data []byte) (Signature, int, error) {
	if len(data) < 1 {
		return Signature{}, 0, fmt.Errorf("%w: empty signature", nodeerrors.ErrMalformedTx)
	}
	typ := SignatureType(data[0])
	var bodyLen int
	switch typ {
	case SignatureTypeNull:
		return Signature{typ: SignatureTypeNull}, 1, nil
	case SignatureTypeWallet:
		bodyLen = walletSignatureBodyLen
	case SignatureTypeNode:
		bodyLen = nodeSignatureBodyLen
	default:
		return Signature{}, 0, fmt.Errorf("%w: 0x%x", nodeerrors.ErrUnknownSignatureType, data[0])
	}
	if len(data) < 1+bodyLen {
		return Signature{}, 0, fmt.Errorf("%w: truncated signature", nodeerrors.ErrMalformedTx)
	}
	body := make([]byte, bodyLen)
	copy(body, data[1:1+bodyLen])
	return Signature{typ: typ, body: body}, 1 + bodyLen, nil
}

// asn1Signature mirrors the two-integer SEQUENCE any DER ECDSA signature
// is; SignNode marshals node-tier signatures through it in minimal DER.
type asn1Signature struct {
	R, S *big.Int
}

// fixedWidthWithSignGuard renders v as a (1+width)-byte big-endian value
// with a leading zero sign-guard byte, independent of v's natural length.
func fixedWidthWithSignGuard(v *big.Int, width int) []byte {
	b := v.Bytes()
	out := make([]byte, width+1)
	copy(out[width+1-len(b):], b)
	return out
}

// encodeFixedDER builds a DER SEQUENCE of two INTEGERs where each INTEGER is
// forced to coordWidth+1 content bytes (a leading 0x00 sign guard plus the
// coordWidth-byte value), which is the only way to get a length-independent
// total size out of ASN.1 INTEGER's variable minimal encoding.
func encodeFixedDER(r, s *big.Int, coordWidth int) []byte {
	encodeInt := func(v *big.Int) []byte {
		val := make([]byte, coordWidth+1) // leading 0x00 sign guard + value
		b := v.Bytes()
		copy(val[1+coordWidth-len(b):], b)
		return append([]byte{0x02, byte(len(val))}, val...)
	}
	content := append(encodeInt(r), encodeInt(s)...)
	return append([]byte{0x30, byte(len(content))}, content...)
}

// decodeFixedDER reads R and S from a DER SEQUENCE of two INTEGERs. It
// accepts the forced-guard wallet encoding as well as minimal DER, and
// ignores any trailing zero padding after the SEQUENCE.
func decodeFixedDER(der []byte) (r, s *big.Int, err error) {
	if len(der) < 2 || der[0] != 0x30 || der[1] >= 0x80 || int(der[1]) > len(der)-2 {
		return nil, nil, fmt.Errorf("%w: bad signature sequence", nodeerrors.ErrMalformedTx)
	}
	body := der[2 : 2+int(der[1])]
	ints := make([]*big.Int, 0, 2)
	for len(ints) < 2 {
		if len(body) < 2 || body[0] != 0x02 || body[1] >= 0x80 || int(body[1]) > len(body)-2 {
			return nil, nil, fmt.Errorf("%w: bad signature integer", nodeerrors.ErrMalformedTx)
		}
		ints = append(ints, new(big.Int).SetBytes(body[2:2+int(body[1])]))
		body = body[2+int(body[1]):]
	}
	return ints[0], ints[1], nil
}

// SignWallet signs hash with a wallet-tier (secp256k1) private key and
// returns a fixed 72-byte-bodied Signature.
func SignWallet(priv *secp256k1.PrivateKey, hash []byte) (Signature, error) {
	sig := dcrecdsa.Sign(priv, hash)
	der := encodeFixedDER(sig.R(), sig.S(), 32)
	if len(der) != walletSignatureBodyLen {
		return Signature{}, fmt.Errorf("internal error: wallet signature encoded to %d bytes, want %d", len(der), walletSignatureBodyLen)
	}
	return Signature{typ: SignatureTypeWallet, body: der}, nil
}

// VerifyWallet verifies sig over hash against a wallet address's embedded
// compressed public key.
func VerifyWallet(addr Address, hash []byte, sig Signature) bool {
	if addr.typ != AddressTypeWallet || sig.typ != SignatureTypeWallet {
		return false
	}
	pub, err := secp256k1.ParsePubKey(addr.body)
	if err != nil {
		return false
	}
	r, s, err := decodeFixedDER(sig.body)
	if err != nil {
		return false
	}
	dsig := dcrecdsa.NewSignature(r, s)
	return dsig.Verify(hash, pub)
}

// SignNode signs hash with a node-tier (secp384r1 / P-384) private key.
// Because stdlib ECDSA signing draws a fresh random nonce each call, an
// oversized (>nodeSignatureBodyLen) DER encoding is simply resigned; P-384's
// DER size only exceeds the target width when both coordinates need their
// sign-guard byte, which a handful of retries reliably avoids.
func SignNode(priv *ecdsa.PrivateKey, hash []byte) (Signature, error) {
	for attempt := 0; attempt < 16; attempt++ {
		r, s, err := ecdsa.Sign(rand.Reader, priv, hash)
		if err != nil {
			return Signature{}, fmt.Errorf("%w: %v", nodeerrors.ErrBadSignature, err)
		}
		der, err := asn1.Marshal(asn1Signature{R: r, S: s})
		if err != nil {
			return Signature{}, fmt.Errorf("%w: %v", nodeerrors.ErrBadSignature, err)
		}
		if len(der) <= nodeSignatureBodyLen {
			body := make([]byte, nodeSignatureBodyLen)
			copy(body, der) // zero-padded on the right; decoder ignores the pad
			return Signature{typ: SignatureTypeNode, body: body}, nil
		}
	}
	return Signature{}, fmt.Errorf("%w: could not fit node signature within %d bytes", nodeerrors.ErrBadSignature, nodeSignatureBodyLen)
}

// VerifyNode verifies sig over hash against a node address's embedded P-384
// public key.
func VerifyNode(addr Address, hash []byte, sig Signature) bool {
	if addr.typ != AddressTypeNode || sig.typ != SignatureTypeNode {
		return false
	}
	pub, err := nodePublicKeyFromAddressBody(addr.body)
	if err != nil {
		return false
	}
	r, s, err := decodeFixedDER(sig.body)
	if err != nil {
		return false
	}
	return ecdsa.Verify(pub, hash, r, s)
}

// nodeAddressBody encodes a P-384 public key as the 49-byte node address
// body: a 0x04 uncompressed-point marker is not affordable in 49 bytes
// (that needs 1+2*48=97), so node addresses store the SEC1 *compressed*
// point instead: 1 parity byte + 48-byte X coordinate.
func nodeAddressBody(pub *ecdsa.PublicKey) []byte {
	x := fixedWidthWithSignGuard(pub.X, 48)[1:] // drop the guard, keep 48 bytes
	parity := byte(2)
	if pub.Y.Bit(0) == 1 {
		parity = 3
	}
	out := make([]byte, nodeAddressBodyLen)
	out[0] = parity
	copy(out[1:], x)
	return out
}

func nodePublicKeyFromAddressBody(body []byte) (*ecdsa.PublicKey, error) {
	if len(body) != nodeAddressBodyLen {
		return nil, fmt.Errorf("%w: bad node address body length", nodeerrors.ErrMalformedTx)
	}
	curve := elliptic.P384()
	x := new(big.Int).SetBytes(body[1:])
	y, err := decompressP384Y(curve, x, body[0])
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// decompressP384Y recovers Y from X and a SEC1 parity byte (2 = even, 3 =
// odd) for a short-Weierstrass curve y^2 = x^3 - 3x + b mod p.
func decompressP384Y(curve elliptic.Curve, x *big.Int, parity byte) (*big.Int, error) {
	params := curve.Params()
	p := params.P
	ySq := new(big.Int).Exp(x, big.NewInt(3), p)
	threeX := new(big.Int).Lsh(x, 0)
	threeX.Mul(x, big.NewInt(3))
	ySq.Sub(ySq, threeX)
	ySq.Add(ySq, params.B)
	ySq.Mod(ySq, p)
	y := new(big.Int).ModSqrt(ySq, p)
	if y == nil {
		return nil, fmt.Errorf("%w: x is not on curve", nodeerrors.ErrMalformedTx)
	}
	if byte(y.Bit(0))+2 != parity {
		y.Sub(p, y)
	}
	return y, nil
}

// NodeAddressFromPublicKey derives the canonical node Address for pub.
func NodeAddressFromPublicKey(pub *ecdsa.PublicKey) (Address, error) {
	return NewNodeAddress(nodeAddressBody(pub))
}

// WalletAddressFromPublicKey derives the canonical wallet Address for pub.
func WalletAddressFromPublicKey(pub *secp256k1.PublicKey) (Address, error) {
	return NewWalletAddress(pub.SerializeCompressed())
}
