package types

// VotingPeriodStatus is the lifecycle state of a VotingPeriod.
type VotingPeriodStatus uint8

const (
	VotingPeriodActive VotingPeriodStatus = iota
	VotingPeriodCompleted
	VotingPeriodCancelled
)

func (s VotingPeriodStatus) String() string {
	switch s {
	case VotingPeriodActive:
		return "active"
	case VotingPeriodCompleted:
		return "completed"
	case VotingPeriodCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// VotingPeriodKind distinguishes what a voting period's outcome governs.
type VotingPeriodKind uint8

const (
	VotingPeriodNodeSelection VotingPeriodKind = iota
	VotingPeriodParameterChange
)

func (k VotingPeriodKind) String() string {
	switch k {
	case VotingPeriodNodeSelection:
		return "node_selection"
	case VotingPeriodParameterChange:
		return "parameter_change"
	default:
		return "unknown"
	}
}

// ChainVoteData carries a fork-choice ballot embedded in a Vote: which of
// two competing tips the voter supports.
type ChainVoteData struct {
	TargetChainID ChainID `json:"target_chain_id"`
}

// Vote is one voter's ballot within a VotingPeriod. VotingPower is fixed at
// submission time as floor(sqrt(balance)) and never recomputed; Balance is
// likewise snapshotted at Height and treated as final for the period.
type Vote struct {
	VoteID        Hash           `json:"vote_id"`
	PeriodID      uint64         `json:"period_id"`
	BlockHash     Hash           `json:"block_hash"`
	VoterAddress  Address        `json:"voter_address"`
	Approve       bool           `json:"approve"`
	VotingPower   Amount         `json:"voting_power"`
	Height        uint64         `json:"height"`
	Balance       Amount         `json:"balance"`
	Signature     []byte         `json:"signature"`
	PublicKey     []byte         `json:"public_key"`
	Timestamp     int64          `json:"timestamp"`
	ChainVoteData *ChainVoteData `json:"chain_vote_data,omitempty"`

	// HeldSince is the height since which Balance has been continuously
	// held, as resolved by the node's balance lookup at submission time.
	// It is not asserted by the voter and is excluded from SigningBytes;
	// VoteReward eligibility checks it against the maturity height.
	HeldSince uint64 `json:"held_since"`
}

// SigningBytes returns the canonical pre-signature encoding of the vote:
// BlockHash, PeriodID, VoterAddress, Approve, VotingPower, Height, Balance,
// Timestamp, then TargetChainID if ChainVoteData is set, integers as
// little-endian fixed widths. VoteID, Signature, PublicKey and HeldSince
// are not included.
func (v *Vote) SigningBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, v.BlockHash[:]...)
	buf = appendUint64(buf, v.PeriodID)
	buf = append(buf, v.VoterAddress[:]...)
	if v.Approve {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, v.VotingPower.Bytes()...)
	buf = appendUint64(buf, v.Height)
	buf = append(buf, v.Balance.Bytes()...)
	buf = appendInt64(buf, v.Timestamp)
	if v.ChainVoteData != nil {
		buf = append(buf, v.ChainVoteData.TargetChainID[:]...)
	}
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}

// VotingPeriod is a contiguous, non-overlapping block-height range during
// which votes are collected.
type VotingPeriod struct {
	PeriodID         uint64             `json:"period_id"`
	StartHeight      uint64             `json:"start_height"`
	EndHeight        uint64             `json:"end_height"`
	StartTime        int64              `json:"start_time"`
	EndTime          int64              `json:"end_time"`
	Status           VotingPeriodStatus `json:"status"`
	Kind             VotingPeriodKind   `json:"kind"`
	Votes            []Vote             `json:"votes"`
	VotesMerkleRoot  Hash               `json:"votes_merkle_root"`
	ForkDecisionHash *Hash              `json:"fork_decision,omitempty"`
}

// ChainTipStatus describes how a known tip relates to the active chain.
type ChainTipStatus uint8

const (
	ChainTipActive ChainTipStatus = iota
	ChainTipValidFork
	ChainTipValidHeaders
	ChainTipInvalid
)

func (s ChainTipStatus) String() string {
	switch s {
	case ChainTipActive:
		return "active"
	case ChainTipValidFork:
		return "valid_fork"
	case ChainTipValidHeaders:
		return "valid_headers"
	case ChainTipInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ChainTip describes one known chain head, active or competing.
type ChainTip struct {
	Height          uint64         `json:"height"`
	Hash            Hash           `json:"hash"`
	BranchLen       uint64         `json:"branch_len"`
	Status          ChainTipStatus `json:"status"`
	FirstBlockHash  *Hash          `json:"first_block_hash,omitempty"`
	LastValidatedAt int64          `json:"last_validated_at"`
}
