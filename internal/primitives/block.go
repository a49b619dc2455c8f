package primitives

import (
	"encoding/binary"
	"fmt"

	"devv.network/node/internal/nodeerrors"
)

// BlockVersion is the only version this validator emits or accepts.
const BlockVersion uint8 = 1

// ProposedBlock is a not-yet-finalized block extension: a transaction set,
// the Summary folded from it, and the Validation signatures collected so
// far (at minimum the proposer's own). The §3 data model also names a
// chain_state_snapshot field, but §4.1's wire encoding has no slot for it —
// it is proposal-time bookkeeping the pool keeps alongside a ProposedBlock,
// never serialized here.
type ProposedBlock struct {
	Version      uint8
	PrevHash     Hash
	Transactions []Transaction
	Summary      *Summary
	Validations  *Validation
}

func encodeTransactions(txs []Transaction) []byte {
	var out []byte
	for _, tx := range txs {
		out = append(out, tx.CanonicalBytes()...)
	}
	return out
}

// CanonicalBytes encodes per §4.1: version(u8) || num_bytes(u64) ||
// prev_hash(32) || tx_size(u64) || sum_size(u64) || val_count(u32) || txs ||
// summary || validations. num_bytes is the byte length of everything from
// prev_hash onward, matching FinalBlock's equivalent framing field.
func (b *ProposedBlock) CanonicalBytes() []byte {
	txBytes := encodeTransactions(b.Transactions)
	sumBytes := b.Summary.CanonicalBytes()
	valBytes := b.Validations.CanonicalBytes()

	body := append([]byte{}, b.PrevHash[:]...)
	body = putU64(body, uint64(len(txBytes)))
	body = putU64(body, uint64(len(sumBytes)))
	var valCount [4]byte
	binary.LittleEndian.PutUint32(valCount[:], uint32(b.Validations.Len()))
	body = append(body, valCount[:]...)
	body = append(body, txBytes...)
	body = append(body, sumBytes...)
	body = append(body, valBytes...)

	out := []byte{b.Version}
	out = putU64(out, uint64(len(body)))
	out = append(out, body...)
	return out
}

// SigningHash is the digest a Validation signature signs over: the SHA-256
// of the proposal's summary canonical bytes, prefixed for VALID messages
// with prev_hash per §6 — callers needing the bus payload form use
// Summary.Hash directly plus PrevHash.
func (b *ProposedBlock) SigningHash() Hash { return b.Summary.Hash() }

// Validate checks everything the consensus worker requires before signing
// a VALID for this proposal: every transaction is sound, the summary is
// sane, and every validation signature already attached verifies against
// the summary digest.
func (b *ProposedBlock) Validate(inn INNChecker) error {
	for _, tx := range b.Transactions {
		if err := tx.VerifySound(inn); err != nil {
			return err
		}
	}
	if err := b.Summary.IsSane(); err != nil {
		return err
	}
	hash := b.SigningHash()
	if !b.Validations.VerifyAll(hash[:]) {
		return nodeerrors.ErrBadSignature
	}
	return nil
}

// ParseProposedBlock reads a canonical ProposedBlock, interpreting the
// embedded transaction list as txKind (T2 for a shard chain, T1 for the
// root chain) — the wire format carries no per-transaction kind tag because
// one node, and therefore one chain, is homogeneously T1 or T2 (§6 `mode`).
func ParseProposedBlock(data []byte, txKind TxKind) (*ProposedBlock, int, error) {
	if len(data) < 1+8 {
		return nil, 0, fmt.Errorf("%w: truncated block header", nodeerrors.ErrMalformedTx)
	}
	version := data[0]
	numBytes, _, err := readU64(data[1:])
	if err != nil {
		return nil, 0, err
	}
	bodyStart := 9
	if uint64(len(data)) < uint64(bodyStart)+numBytes {
		return nil, 0, fmt.Errorf("%w: truncated block body", nodeerrors.ErrMalformedTx)
	}
	body := data[bodyStart : uint64(bodyStart)+numBytes]

	prevHash, n, err := ParseHash(body)
	if err != nil {
		return nil, 0, err
	}
	off := n

	txSize, n, err := readU64(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	sumSize, n, err := readU64(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	if len(body) < off+4 {
		return nil, 0, fmt.Errorf("%w: truncated validation count", nodeerrors.ErrMalformedTx)
	}
	off += 4 // val_count is redundant with the count prefix inside validations itself

	if uint64(len(body)) < uint64(off)+txSize {
		return nil, 0, fmt.Errorf("%w: truncated transactions", nodeerrors.ErrMalformedTx)
	}
	txs, err := parseTransactions(body[off:uint64(off)+txSize], txKind)
	if err != nil {
		return nil, 0, err
	}
	off += int(txSize)

	if uint64(len(body)) < uint64(off)+sumSize {
		return nil, 0, fmt.Errorf("%w: truncated summary", nodeerrors.ErrMalformedTx)
	}
	sum, n, err := ParseSummary(body[off : uint64(off)+sumSize])
	if err != nil {
		return nil, 0, err
	}
	if uint64(n) != sumSize {
		return nil, 0, fmt.Errorf("%w: summary size mismatch", nodeerrors.ErrMalformedTx)
	}
	off += n

	val, n, err := ParseValidation(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n

	return &ProposedBlock{
		Version:      version,
		PrevHash:     prevHash,
		Transactions: txs,
		Summary:      sum,
		Validations:  val,
	}, bodyStart + off, nil
}

func parseTransactions(data []byte, kind TxKind) ([]Transaction, error) {
	var out []Transaction
	for cursor := 0; cursor < len(data); {
		switch kind {
		case TxKindT1:
			tx, n, err := ParseT1Transaction(data[cursor:])
			if err != nil {
				return nil, err
			}
			out = append(out, NewT1(tx))
			cursor += n
		default:
			tx, n, err := ParseT2Transaction(data[cursor:])
			if err != nil {
				return nil, err
			}
			out = append(out, NewT2(tx))
			cursor += n
		}
	}
	return out, nil
}

// FinalBlock is a ProposedBlock promoted once its Validation threshold is
// met: immutable, timestamped, and carrying the merkle root of its
// transaction set. Never mutated once appended to a Blockchain.
type FinalBlock struct {
	Version      uint8
	BlockTimeMs  uint64
	PrevHash     Hash
	MerkleRoot   Hash
	Transactions []Transaction
	Summary      *Summary
	Validations  *Validation
}

// MerkleRootOf computes the §4.5 merkle root: the SHA-256 of the
// concatenated canonical bytes of txs, in block order. Spec treats this as
// informational (§9 open question 3) — nothing on the ingest path verifies
// it against the transaction set, so a mismatch here is never surfaced as
// an error.
func MerkleRootOf(txs []Transaction) Hash {
	return SumHash(encodeTransactions(txs))
}

// CanonicalBytes encodes per §4.1: version(u8) || block_time_ms(u64) ||
// num_bytes(u64) || prev_hash(32) || merkle_root(32) || tx_size(u64) ||
// sum_size(u64) || val_count(u32) || txs || summary || validations.
func (b *FinalBlock) CanonicalBytes() []byte {
	txBytes := encodeTransactions(b.Transactions)
	sumBytes := b.Summary.CanonicalBytes()
	valBytes := b.Validations.CanonicalBytes()

	body := append([]byte{}, b.PrevHash[:]...)
	body = append(body, b.MerkleRoot[:]...)
	body = putU64(body, uint64(len(txBytes)))
	body = putU64(body, uint64(len(sumBytes)))
	var valCount [4]byte
	binary.LittleEndian.PutUint32(valCount[:], uint32(b.Validations.Len()))
	body = append(body, valCount[:]...)
	body = append(body, txBytes...)
	body = append(body, sumBytes...)
	body = append(body, valBytes...)

	out := []byte{b.Version}
	out = putU64(out, b.BlockTimeMs)
	out = putU64(out, uint64(len(body)))
	out = append(out, body...)
	return out
}

// Hash returns the SHA-256 of b's canonical bytes, the prev_hash a
// successor block must chain to.
func (b *FinalBlock) Hash() Hash { return SumHash(b.CanonicalBytes()) }

// ParseFinalBlock reads a canonical FinalBlock, interpreting embedded
// transactions as txKind (see ParseProposedBlock).
func ParseFinalBlock(data []byte, txKind TxKind) (*FinalBlock, int, error) {
	if len(data) < 1+8+8 {
		return nil, 0, fmt.Errorf("%w: truncated block header", nodeerrors.ErrMalformedTx)
	}
	version := data[0]
	blockTimeMs, _, err := readU64(data[1:])
	if err != nil {
		return nil, 0, err
	}
	numBytes, _, err := readU64(data[9:])
	if err != nil {
		return nil, 0, err
	}
	bodyStart := 17
	if uint64(len(data)) < uint64(bodyStart)+numBytes {
		return nil, 0, fmt.Errorf("%w: truncated block body", nodeerrors.ErrMalformedTx)
	}
	body := data[bodyStart : uint64(bodyStart)+numBytes]

	prevHash, n, err := ParseHash(body)
	if err != nil {
		return nil, 0, err
	}
	off := n
	merkleRoot, n, err := ParseHash(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n

	txSize, n, err := readU64(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	sumSize, n, err := readU64(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	if len(body) < off+4 {
		return nil, 0, fmt.Errorf("%w: truncated validation count", nodeerrors.ErrMalformedTx)
	}
	off += 4

	if uint64(len(body)) < uint64(off)+txSize {
		return nil, 0, fmt.Errorf("%w: truncated transactions", nodeerrors.ErrMalformedTx)
	}
	txs, err := parseTransactions(body[off:uint64(off)+txSize], txKind)
	if err != nil {
		return nil, 0, err
	}
	off += int(txSize)

	if uint64(len(body)) < uint64(off)+sumSize {
		return nil, 0, fmt.Errorf("%w: truncated summary", nodeerrors.ErrMalformedTx)
	}
	sum, n, err := ParseSummary(body[off : uint64(off)+sumSize])
	if err != nil {
		return nil, 0, err
	}
	if uint64(n) != sumSize {
		return nil, 0, fmt.Errorf("%w: summary size mismatch", nodeerrors.ErrMalformedTx)
	}
	off += n

	val, n, err := ParseValidation(body[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n

	return &FinalBlock{
		Version:      version,
		BlockTimeMs:  blockTimeMs,
		PrevHash:     prevHash,
		MerkleRoot:   merkleRoot,
		Transactions: txs,
		Summary:      sum,
		Validations:  val,
	}, bodyStart + off, nil
}
