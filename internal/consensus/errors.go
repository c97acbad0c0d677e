package consensus

import "errors"

// Ban scores for the consensus-layer error taxonomy. A peer's cumulative
// score is tracked by the p2p package's BanManager; these are the
// consensus-side penalty values it should apply per offense.
const (
	BanScoreStructuralInvalid = 20
	BanScoreSignatureInvalid  = 50
	BanScoreConsensusInvalid  = 100 // immediate ban at BanThreshold=100
	BanScoreDoubleSpendBlock  = 50  // block origin only; local admission is a silent drop
)

// Sentinel errors for the taxonomy described in the spec's error-handling
// section. Consumers (chain, mempool, p2p) wrap these with fmt.Errorf and
// %w so errors.Is still matches, then consult BanScore to penalize the
// offending peer.
var (
	// ErrStructuralInvalid marks a malformed block, transaction, or header.
	// Unrecoverable for the offending item.
	ErrStructuralInvalid = errors.New("structural invalid")

	// ErrSignatureInvalid marks a cryptographic verification failure.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrConsensusInvalid marks a PoW, target, merkle, or coinbase reward
	// rule violation.
	ErrConsensusInvalid = errors.New("consensus invalid")

	// ErrDoubleSpendTx marks a mempool or block attempt to consume a
	// missing or already-consumed UTXO.
	ErrDoubleSpendTx = errors.New("double spend")

	// ErrNonceInvalid is a mempool-admission-only error; caller-recoverable.
	ErrNonceInvalid = errors.New("nonce invalid")

	// ErrPoolFull is transient and caller-recoverable with back-off.
	ErrPoolFull = errors.New("pool full")

	// ErrPeerTimeout is retried per the caller's retry policy; after the
	// maximum attempts it should be converted to ErrPeerUnavailable.
	ErrPeerTimeout = errors.New("peer timeout")

	// ErrPeerUnavailable marks a peer that exhausted its retry budget; the
	// caller should demote the peer.
	ErrPeerUnavailable = errors.New("peer unavailable")

	// ErrStoreUnavailable is fatal to the current operation. The caller
	// (sync, commit) must surface it; a health check should mark the node
	// unhealthy if it recurs.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrReorgDepthExceeded rejects an alternative tip as permanently
	// invalid rather than replaying it.
	ErrReorgDepthExceeded = errors.New("reorg depth exceeded")
)

// BanScore returns the ban-score penalty a peer should incur for err, and
// whether err carries a ban score at all (false for purely local/transient
// errors like ErrPoolFull or ErrNonceInvalid).
func BanScore(err error) (score int, penalize bool) {
	switch {
	case errors.Is(err, ErrConsensusInvalid):
		return BanScoreConsensusInvalid, true
	case errors.Is(err, ErrSignatureInvalid):
		return BanScoreSignatureInvalid, true
	case errors.Is(err, ErrDoubleSpendTx):
		return BanScoreDoubleSpendBlock, true
	case errors.Is(err, ErrStructuralInvalid):
		return BanScoreStructuralInvalid, true
	default:
		return 0, false
	}
}

// AsPeerUnavailable converts a timeout into ErrPeerUnavailable once the
// caller has exhausted its retry attempts. attemptsUsed and maxAttempts
// are both 1-indexed (one attempt already made counts as attemptsUsed=1).
func AsPeerUnavailable(err error, attemptsUsed, maxAttempts int) error {
	if errors.Is(err, ErrPeerTimeout) && attemptsUsed >= maxAttempts {
		return ErrPeerUnavailable
	}
	return err
}
