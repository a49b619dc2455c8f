// Package nodeerrors centralizes the sentinel errors and failure taxonomy
// shared by the validator core. Subsystems wrap these with fmt.Errorf("%w: ...")
// for context; callers that need to branch on the taxonomy use Classify(err)
// instead of string matching.
package nodeerrors

import "errors"

// Sentinel errors, one per §7 taxonomy entry.
var (
	ErrMalformedFrame  = errors.New("malformed bus frame")
	ErrMalformedTx     = errors.New("malformed transaction bytes")
	ErrBadSignature    = errors.New("signature does not verify")
	ErrSummaryAsymmetric = errors.New("summary is not zero-sum")
	ErrPrevHashMismatch  = errors.New("block does not chain to tip")
	ErrThresholdNotMet   = errors.New("validation threshold not yet met")
	ErrDuplicateTx       = errors.New("duplicate transaction")
	ErrNotInnSigner      = errors.New("signer is not an INN address")
	ErrInsufficientFunds = errors.New("debit would drive balance negative")
	ErrKeyMissing        = errors.New("key ring lookup failed")

	// Additional structural errors used internally by primitives/pool/chain.
	ErrInvalidFinalBlock   = errors.New("invalid final block")
	ErrNoOutstandingProposal = errors.New("no outstanding proposal for this height")
	ErrProposalAlreadyOutstanding = errors.New("a proposal is already outstanding for this height")
	ErrUnknownAddressType  = errors.New("unknown address type byte")
	ErrUnknownSignatureType = errors.New("unknown signature type byte")
	ErrWrongKeyCurve        = errors.New("key does not match expected curve for address type")
	ErrEmptySummary         = errors.New("summary has no entries")
	ErrMultipleDebitAddresses = errors.New("transaction has more than one debit address")
	ErrNoDebitAddress         = errors.New("transaction has no debit address")
)

// Kind is the §7 error taxonomy, used where callers must decide between
// "drop silently", "drop and count", or "fatal at this height" without
// string-matching error text.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedFrame
	KindMalformedTx
	KindBadSignature
	KindSummaryAsymmetric
	KindPrevHashMismatch
	KindThresholdNotMet
	KindDuplicateTx
	KindNotInnSigner
	KindInsufficientFunds
	KindKeyMissing
)

var kindBySentinel = map[error]Kind{
	ErrMalformedFrame:    KindMalformedFrame,
	ErrMalformedTx:       KindMalformedTx,
	ErrBadSignature:      KindBadSignature,
	ErrSummaryAsymmetric: KindSummaryAsymmetric,
	ErrPrevHashMismatch:  KindPrevHashMismatch,
	ErrThresholdNotMet:   KindThresholdNotMet,
	ErrDuplicateTx:       KindDuplicateTx,
	ErrNotInnSigner:      KindNotInnSigner,
	ErrInsufficientFunds: KindInsufficientFunds,
	ErrKeyMissing:        KindKeyMissing,
}

// classify walks err's wrap chain against the §7 taxonomy.
func classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Classify classifies err against the §7 taxonomy.
func Classify(err error) Kind { return classify(err) }

// Fatal reports whether err, per §7, must escalate rather than being
// dropped-and-counted. Only SummaryAsymmetric and PrevHashMismatch on a
// peer's FinalBlock are fatal at a given height; everywhere else these
// same sentinels are per-tx drops, so Fatal is a statement about the
// *caller's* context (block-level), not the error alone.
func Fatal(err error) bool {
	switch classify(err) {
	case KindSummaryAsymmetric, KindPrevHashMismatch:
		return true
	default:
		return false
	}
}
