// Package voting implements the direct-voting layer: per-period ballot
// submission, tallying, and fork-choice arbitration that runs alongside
// proof-of-work consensus.
package voting

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/votapow/votapow-chain/config"
	"github.com/votapow/votapow-chain/internal/consensus"
	"github.com/votapow/votapow-chain/pkg/block"
	"github.com/votapow/votapow-chain/pkg/crypto"
	"github.com/votapow/votapow-chain/pkg/types"
)

// Voting errors.
var (
	ErrPeriodNotFound     = errors.New("voting period not found")
	ErrPeriodNotActive    = errors.New("voting period is not active")
	ErrDuplicateVote      = errors.New("voter already submitted a ballot for this period")
	ErrVoteTooLarge       = errors.New("vote exceeds max vote size")
	ErrAccountTooYoung    = errors.New("voter balance has not met the minimum account age")
	ErrBadSignature       = errors.New("vote signature does not verify")
	ErrAddressMismatch    = errors.New("vote public key does not derive the claimed voter address")
	ErrBadVotingPower     = errors.New("vote voting power does not match floor(sqrt(balance))")
	ErrNoEligibleVoters   = errors.New("no eligible voters recorded for this period")
	ErrBadRewardRecipient = errors.New("participation reward recipient did not vote in the closed period")
	ErrBadRewardAmount    = errors.New("participation reward amount does not match the per-voter schedule")
)

// BalanceLookup resolves a voter's balance and the height since which that
// balance has been continuously held, as of a given height. Satisfied by
// an adapter over the UTXO set.
type BalanceLookup interface {
	BalanceAndAge(addr types.Address, atHeight uint64) (balance types.Amount, heldSince uint64, err error)
}

// EligibleVoterFunc returns the number of addresses eligible to vote in a
// period (balance ≥ 0 and met MIN_ACCOUNT_AGE as of the period's start).
type EligibleVoterFunc func(periodID uint64) uint64

// Tally is the result of summing a period's ballots.
type Tally struct {
	TotalPower        types.Amount
	ApprovePower      types.Amount
	ParticipationRate float64
	ApprovalRate      float64
}

// Manager holds in-memory voting-period state. Periods are created by the
// chain at deterministic heights and persisted by the caller if durability
// across restarts is required; the manager itself does not touch storage.
type Manager struct {
	mu       sync.Mutex
	rules    config.VotingRules
	periods  map[uint64]*types.VotingPeriod
	seen     map[uint64]map[types.Address]bool // periodID -> voter -> submitted
	balances BalanceLookup
	eligible EligibleVoterFunc
}

// NewManager creates a voting manager parameterized by genesis voting rules.
func NewManager(rules config.VotingRules, balances BalanceLookup, eligible EligibleVoterFunc) *Manager {
	return &Manager{
		rules:    rules,
		periods:  make(map[uint64]*types.VotingPeriod),
		seen:     make(map[uint64]map[types.Address]bool),
		balances: balances,
		eligible: eligible,
	}
}

// OpenPeriod starts a new voting period at startHeight, closing after
// VotingPeriodBlocks or VotingPeriodMs, whichever triggers first.
func (m *Manager) OpenPeriod(periodID, startHeight uint64, startTime int64, kind types.VotingPeriodKind) *types.VotingPeriod {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &types.VotingPeriod{
		PeriodID:    periodID,
		StartHeight: startHeight,
		EndHeight:   startHeight + m.rules.VotingPeriodBlocks,
		StartTime:   startTime,
		EndTime:     startTime + m.rules.VotingPeriodMs/1000,
		Status:      types.VotingPeriodActive,
		Kind:        kind,
	}
	m.periods[periodID] = p
	m.seen[periodID] = make(map[types.Address]bool)
	return p
}

// Period returns a copy of the period's current state, or ErrPeriodNotFound.
func (m *Manager) Period(periodID uint64) (*types.VotingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[periodID]
	if !ok {
		return nil, ErrPeriodNotFound
	}
	cp := *p
	cp.Votes = append([]types.Vote(nil), p.Votes...)
	return &cp, nil
}

// CloseIfExpired transitions a period Active → Completed once height or
// wall-clock time has passed its end boundary. Returns true if the
// transition happened.
func (m *Manager) CloseIfExpired(periodID uint64, height uint64, now int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[periodID]
	if !ok {
		return false, ErrPeriodNotFound
	}
	if p.Status != types.VotingPeriodActive {
		return false, nil
	}
	if height > p.EndHeight || now >= p.EndTime {
		p.Status = types.VotingPeriodCompleted
		return true, nil
	}
	return false, nil
}

// Cancel transitions a period Active → Cancelled (emergency protocol action,
// recorded by the caller in its own audit log). A Completed period cannot
// be cancelled.
func (m *Manager) Cancel(periodID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[periodID]
	if !ok {
		return ErrPeriodNotFound
	}
	if p.Status == types.VotingPeriodCompleted {
		return fmt.Errorf("%w: period already completed", ErrPeriodNotActive)
	}
	p.Status = types.VotingPeriodCancelled
	return nil
}

// Submit validates and records a ballot, updating the period's incremental
// Merkle root over all submitted votes.
func (m *Manager) Submit(vote *types.Vote) error {
	if vote == nil {
		return fmt.Errorf("nil vote")
	}

	data, err := json.Marshal(vote)
	if err != nil {
		return fmt.Errorf("encode vote: %w", err)
	}
	if len(data) > m.rules.MaxVoteSizeBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrVoteTooLarge, len(data), m.rules.MaxVoteSizeBytes)
	}

	derived := crypto.AddressFromPubKey(vote.PublicKey)
	if derived != vote.VoterAddress {
		return ErrAddressMismatch
	}
	sigHash := crypto.Hash(vote.SigningBytes())
	if !crypto.VerifySignature(sigHash[:], vote.Signature, vote.PublicKey) {
		return ErrBadSignature
	}

	if m.balances != nil {
		balance, heldSince, err := m.balances.BalanceAndAge(vote.VoterAddress, vote.Height)
		if err != nil {
			return fmt.Errorf("resolve voter balance: %w", err)
		}
		if vote.Height < heldSince || vote.Height-heldSince < m.rules.MinAccountAge {
			return ErrAccountTooYoung
		}
		if expected := balance.Sqrt(); expected.Cmp(vote.VotingPower) != 0 {
			return ErrBadVotingPower
		}
		vote.HeldSince = heldSince
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[vote.PeriodID]
	if !ok {
		return ErrPeriodNotFound
	}
	if p.Status != types.VotingPeriodActive {
		return ErrPeriodNotActive
	}
	if m.seen[vote.PeriodID][vote.VoterAddress] {
		return ErrDuplicateVote
	}

	p.Votes = append(p.Votes, *vote)
	m.seen[vote.PeriodID][vote.VoterAddress] = true
	p.VotesMerkleRoot = voteMerkleRoot(p.Votes)
	return nil
}

func voteMerkleRoot(votes []types.Vote) types.Hash {
	hashes := make([]types.Hash, len(votes))
	for i := range votes {
		hashes[i] = crypto.Hash(votes[i].SigningBytes())
	}
	return block.ComputeMerkleRoot(hashes)
}

// TallyPeriod sums ballot power and computes the participation rate for a
// period. participation = voter_count / eligible_voter_count.
func (m *Manager) TallyPeriod(periodID uint64) (Tally, error) {
	m.mu.Lock()
	p, ok := m.periods[periodID]
	if !ok {
		m.mu.Unlock()
		return Tally{}, ErrPeriodNotFound
	}
	votes := append([]types.Vote(nil), p.Votes...)
	m.mu.Unlock()

	var total, approve types.Amount
	for _, v := range votes {
		total = total.Add(v.VotingPower)
		if v.Approve {
			approve = approve.Add(v.VotingPower)
		}
	}

	var eligible uint64
	if m.eligible != nil {
		eligible = m.eligible(periodID)
	}

	var participationRate float64
	if eligible > 0 {
		participationRate = float64(len(votes)) / float64(eligible)
	}

	var approvalRate float64
	if !total.IsZero() {
		// Scale to avoid losing precision: (approve * 1e9 / total) / 1e9.
		scaled := new(big.Int).Mul(approve.Big(), big.NewInt(1_000_000_000))
		scaled.Div(scaled, total.Big())
		approvalRate = float64(scaled.Int64()) / 1_000_000_000
	}

	return Tally{
		TotalPower:        total,
		ApprovePower:      approve,
		ParticipationRate: participationRate,
		ApprovalRate:      approvalRate,
	}, nil
}

// DecideFork resolves a contested fork between two tips by summed voting
// power of ballots whose chain_vote_data targets that tip. Ties (including
// zero votes on both sides) fall back to greater cumulative PoW work, then
// to the lexicographically smaller tip hash.
func (m *Manager) DecideFork(periodID uint64, aTip, bTip types.ChainTip, aWork, bWork *big.Int) (types.Hash, error) {
	m.mu.Lock()
	p, ok := m.periods[periodID]
	if !ok {
		m.mu.Unlock()
		return types.Hash{}, ErrPeriodNotFound
	}
	votes := append([]types.Vote(nil), p.Votes...)
	m.mu.Unlock()

	aChain := types.ChainID(aTip.Hash)
	bChain := types.ChainID(bTip.Hash)

	var aPower, bPower types.Amount
	for _, v := range votes {
		if v.ChainVoteData == nil {
			continue
		}
		switch v.ChainVoteData.TargetChainID {
		case aChain:
			aPower = aPower.Add(v.VotingPower)
		case bChain:
			bPower = bPower.Add(v.VotingPower)
		}
	}

	switch cmp := aPower.Cmp(bPower); {
	case cmp > 0:
		return aTip.Hash, nil
	case cmp < 0:
		return bTip.Hash, nil
	}

	// Tie on vote power: fall back to cumulative work.
	if aWork != nil && bWork != nil {
		switch cmp := aWork.Cmp(bWork); {
		case cmp > 0:
			return aTip.Hash, nil
		case cmp < 0:
			return bTip.Hash, nil
		}
	}

	// Still tied: lexicographically smaller tip hash wins.
	for i := range aTip.Hash {
		if aTip.Hash[i] != bTip.Hash[i] {
			if aTip.Hash[i] < bTip.Hash[i] {
				return aTip.Hash, nil
			}
			return bTip.Hash, nil
		}
	}
	return aTip.Hash, nil
}

// ValidateParticipationReward checks that a VoteReward transaction's
// recipient voted (approving or not) in the period that just closed at
// this height, that the amount matches the
// configured per-voter reward, and that the voter's balance has matured
// past consensus.VoteRewardMaturityHeight — the long-term-holder bar that
// is stricter than, and independent of, ordinary spend maturity.
func (m *Manager) ValidateParticipationReward(periodID uint64, recipient types.Address, amount types.Amount) error {
	m.mu.Lock()
	p, ok := m.periods[periodID]
	if !ok {
		m.mu.Unlock()
		return ErrPeriodNotFound
	}
	if p.Status != types.VotingPeriodCompleted {
		m.mu.Unlock()
		return fmt.Errorf("%w: period %d is not completed", ErrPeriodNotActive, periodID)
	}
	if !m.seen[periodID][recipient] {
		m.mu.Unlock()
		return ErrBadRewardRecipient
	}
	var vote *types.Vote
	for i := range p.Votes {
		if p.Votes[i].VoterAddress == recipient {
			vote = &p.Votes[i]
			break
		}
	}
	endHeight := p.EndHeight
	m.mu.Unlock()

	if vote == nil {
		return ErrBadRewardRecipient
	}
	if err := consensus.CheckVoteRewardMaturity(vote.HeldSince, endHeight); err != nil {
		return err
	}
	if amount.Uint64() != m.rules.VoteRewardAmount {
		return fmt.Errorf("%w: got %s, want %d", ErrBadRewardAmount, amount, m.rules.VoteRewardAmount)
	}
	return nil
}
