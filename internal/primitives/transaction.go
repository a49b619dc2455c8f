package primitives

import (
	"fmt"

	"devv.network/node/internal/nodeerrors"
)

// Operation tags a T2 transaction's intent.
type Operation uint8

const (
	OpCreate Operation = iota
	OpModify
	OpExchange
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "Create"
	case OpModify:
		return "Modify"
	case OpExchange:
		return "Exchange"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(op))
	}
}

// INNChecker answers whether addr holds INN (Issuing Node Network)
// privilege. Satisfied by internal/keyring.KeyRing; kept as an interface
// here so primitives never imports the key-storage layer.
type INNChecker interface {
	IsINN(addr Address) bool
}

// T2Transaction is one shard-level transaction: a tagged operation over a
// transfer list, nonce, and signature. Signature tier follows Operation:
// Exchange is wallet-signed by the debit address' owner; Create/Modify/
// Delete are node-signed by an INN address.
type T2Transaction struct {
	Operation Operation
	Transfers []Transfer
	Nonce     []byte
	Signature Signature
}

// PreSignatureBytes encodes everything a T2Transaction's signature covers:
// xfer_total_bytes(u64) || nonce_size(u64) || operation(u8) || transfers ||
// nonce. This, hashed with SHA-256, is the digest SignWallet/SignNode sign.
func (tx T2Transaction) PreSignatureBytes() []byte {
	xfers := make([]byte, 0, len(tx.Transfers)*64)
	for _, t := range tx.Transfers {
		xfers = append(xfers, t.CanonicalBytes()...)
	}
	out := putU64(nil, uint64(len(xfers)))
	out = putU64(out, uint64(len(tx.Nonce)))
	out = append(out, byte(tx.Operation))
	out = append(out, xfers...)
	out = append(out, tx.Nonce...)
	return out
}

// SigningHash is the SHA-256 digest signed over and verified against.
func (tx T2Transaction) SigningHash() Hash { return SumHash(tx.PreSignatureBytes()) }

// CanonicalBytes is PreSignatureBytes with the signature appended, the full
// wire/storage encoding of a T2Transaction.
func (tx T2Transaction) CanonicalBytes() []byte {
	return append(tx.PreSignatureBytes(), tx.Signature.Bytes()...)
}

// DebitAddress returns the transaction's single debit (negative-amount)
// address, failing with ErrNoDebitAddress or ErrMultipleDebitAddresses.
func (tx T2Transaction) DebitAddress() (Address, error) {
	found := false
	var addr Address
	for _, t := range tx.Transfers {
		if !t.IsDebit() {
			continue
		}
		if found {
			return Address{}, nodeerrors.ErrMultipleDebitAddresses
		}
		addr, found = t.Address, true
	}
	if !found {
		return Address{}, nodeerrors.ErrNoDebitAddress
	}
	return addr, nil
}

// sumsToZero reports whether the transfer list's amounts net to zero.
func (tx T2Transaction) sumsToZero() bool {
	var total int64
	for _, t := range tx.Transfers {
		total += t.Amount
	}
	return total == 0
}

// Soundness checks the §4.1 stateless validity of a T2 transaction:
// transfers sum to zero, exactly one debit address, the signature verifies
// against that address's embedded key, and — for any operation other than
// Exchange — the debit address must be INN-privileged.
func (tx T2Transaction) Soundness(inn INNChecker) error {
	if !tx.sumsToZero() {
		return nodeerrors.ErrSummaryAsymmetric
	}
	debit, err := tx.DebitAddress()
	if err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrMalformedTx, err)
	}
	hash := tx.SigningHash()
	switch tx.Operation {
	case OpExchange:
		if debit.Type() != AddressTypeWallet || tx.Signature.Type() != SignatureTypeWallet {
			return nodeerrors.ErrBadSignature
		}
		if !VerifyWallet(debit, hash[:], tx.Signature) {
			return nodeerrors.ErrBadSignature
		}
	default:
		if debit.Type() != AddressTypeNode || tx.Signature.Type() != SignatureTypeNode {
			return nodeerrors.ErrBadSignature
		}
		if !VerifyNode(debit, hash[:], tx.Signature) {
			return nodeerrors.ErrBadSignature
		}
		if !inn.IsINN(debit) {
			return nodeerrors.ErrNotInnSigner
		}
	}
	return nil
}

// ParseT2Transaction reads a canonical T2Transaction from the front of data.
func ParseT2Transaction(data []byte) (T2Transaction, int, error) {
	xferBytes, n, err := readU64(data)
	if err != nil {
		return T2Transaction{}, 0, err
	}
	off := n
	nonceSize, n, err := readU64(data[off:])
	if err != nil {
		return T2Transaction{}, 0, err
	}
	off += n
	if len(data) < off+1 {
		return T2Transaction{}, 0, fmt.Errorf("%w: truncated operation byte", nodeerrors.ErrMalformedTx)
	}
	op := Operation(data[off])
	off++

	if uint64(len(data)) < uint64(off)+xferBytes {
		return T2Transaction{}, 0, fmt.Errorf("%w: truncated transfer list", nodeerrors.ErrMalformedTx)
	}
	xferEnd := off + int(xferBytes)
	var transfers []Transfer
	for cursor := off; cursor < xferEnd; {
		t, n, err := ParseTransfer(data[cursor:xferEnd])
		if err != nil {
			return T2Transaction{}, 0, err
		}
		transfers = append(transfers, t)
		cursor += n
	}
	off = xferEnd

	if uint64(len(data)) < uint64(off)+nonceSize {
		return T2Transaction{}, 0, fmt.Errorf("%w: truncated nonce", nodeerrors.ErrMalformedTx)
	}
	nonce := make([]byte, nonceSize)
	copy(nonce, data[off:off+int(nonceSize)])
	off += int(nonceSize)

	sig, n, err := ParseSignature(data[off:])
	if err != nil {
		return T2Transaction{}, 0, err
	}
	off += n

	return T2Transaction{Operation: op, Transfers: transfers, Nonce: nonce, Signature: sig}, off, nil
}

// T1Transaction is a node-signed restatement of one T2 block's summary,
// carried on the T1 chain.
type T1Transaction struct {
	Summary       *Summary
	NodeAddress   Address
	NodeSignature Signature
}

// SigningHash is the SHA-256 digest of the summary's canonical bytes — T1
// transactions sign the summary, not their own framing.
func (tx T1Transaction) SigningHash() Hash { return tx.Summary.Hash() }

// CanonicalBytes encodes per §4.1: summary_size(u64) || summary ||
// node_address || node_signature.
func (tx T1Transaction) CanonicalBytes() []byte {
	sum := tx.Summary.CanonicalBytes()
	out := putU64(nil, uint64(len(sum)))
	out = append(out, sum...)
	out = append(out, tx.NodeAddress.Bytes()...)
	out = append(out, tx.NodeSignature.Bytes()...)
	return out
}

// ParseT1Transaction reads a canonical T1Transaction from the front of data.
func ParseT1Transaction(data []byte) (T1Transaction, int, error) {
	sumSize, n, err := readU64(data)
	if err != nil {
		return T1Transaction{}, 0, err
	}
	off := n
	if uint64(len(data)) < uint64(off)+sumSize {
		return T1Transaction{}, 0, fmt.Errorf("%w: truncated summary", nodeerrors.ErrMalformedTx)
	}
	sum, n, err := ParseSummary(data[off : uint64(off)+sumSize])
	if err != nil {
		return T1Transaction{}, 0, err
	}
	if uint64(n) != sumSize {
		return T1Transaction{}, 0, fmt.Errorf("%w: summary size mismatch", nodeerrors.ErrMalformedTx)
	}
	off += n

	addr, n, err := ParseAddress(data[off:])
	if err != nil {
		return T1Transaction{}, 0, err
	}
	off += n
	sig, n, err := ParseSignature(data[off:])
	if err != nil {
		return T1Transaction{}, 0, err
	}
	off += n
	return T1Transaction{Summary: sum, NodeAddress: addr, NodeSignature: sig}, off, nil
}

// TxKind tags which variant a Transaction carries.
type TxKind uint8

const (
	TxKindT2 TxKind = iota
	TxKindT1
)

// Transaction is the tagged sum over {T2Transaction, T1Transaction} that
// replaces a polymorphic transaction hierarchy: the core dispatches on Kind
// rather than on a virtual method table. The pool, blocks, and the chain
// each own their Transaction values outright — no shared-pointer aliasing.
type Transaction struct {
	Kind TxKind
	T2   T2Transaction
	T1   T1Transaction
}

// NewT2 wraps a T2Transaction as a Transaction.
func NewT2(tx T2Transaction) Transaction { return Transaction{Kind: TxKindT2, T2: tx} }

// NewT1 wraps a T1Transaction as a Transaction.
func NewT1(tx T1Transaction) Transaction { return Transaction{Kind: TxKindT1, T1: tx} }

// CanonicalBytes dispatches to the wrapped variant's encoding.
func (tx Transaction) CanonicalBytes() []byte {
	if tx.Kind == TxKindT1 {
		return tx.T1.CanonicalBytes()
	}
	return tx.T2.CanonicalBytes()
}

// SigningHash dispatches to the wrapped variant's signing digest.
func (tx Transaction) SigningHash() Hash {
	if tx.Kind == TxKindT1 {
		return tx.T1.SigningHash()
	}
	return tx.T2.SigningHash()
}

// Signature returns the wrapped variant's attached signature.
func (tx Transaction) Signature() Signature {
	if tx.Kind == TxKindT1 {
		return tx.T1.NodeSignature
	}
	return tx.T2.Signature
}

// Signer returns the address that signed this transaction.
func (tx Transaction) Signer() (Address, error) {
	if tx.Kind == TxKindT1 {
		return tx.T1.NodeAddress, nil
	}
	return tx.T2.DebitAddress()
}

// VerifySound checks stateless soundness regardless of tier: a T2
// transaction defers to T2Transaction.Soundness; a T1 transaction (a
// node's restatement of one T2 block's summary on the root chain) is sound
// when its node signature verifies over the summary digest it carries.
func (tx Transaction) VerifySound(inn INNChecker) error {
	if tx.Kind == TxKindT1 {
		hash := tx.T1.SigningHash()
		if !VerifyNode(tx.T1.NodeAddress, hash[:], tx.T1.NodeSignature) {
			return nodeerrors.ErrBadSignature
		}
		return nil
	}
	return tx.T2.Soundness(inn)
}
