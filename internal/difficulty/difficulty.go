// Package difficulty implements the hybrid PoW + vote + network-health
// retarget algorithm that computes the next proof-of-work target.
package difficulty

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/votapow/votapow-chain/config"
)

// VoteStats summarizes voter participation for the window ending at the
// current retarget boundary.
type VoteStats struct {
	Participation float64 // voter_count / eligible_voter_count, in [0, 1]
	ApprovalRate  float64 // approve_power / total_power, in [0, 1]
}

// NetworkHealth carries the raw signals used to derive the health factor.
// Each *Rate/*Health field is expected in [0, 1], where 1.0 is healthiest
// (e.g. OrphanRate is inverted to OrphanHealth = 1 - orphan_rate before
// being passed in, so the weighting below always rewards higher values).
type NetworkHealth struct {
	OrphanHealth      float64 // 1 - orphan_rate
	PropagationHealth float64 // 1 - normalized median propagation time
	PeerCountHealth   float64 // normalized peer count vs target peer count
	LatencyHealth     float64 // 1 - normalized median peer latency
}

// score combines the four signals with the spec's fixed weights
// (0.4 / 0.3 / 0.2 / 0.1) into a single value in [0, 1].
func (h NetworkHealth) score() float64 {
	s := 0.4*h.OrphanHealth + 0.3*h.PropagationHealth + 0.2*h.PeerCountHealth + 0.1*h.LatencyHealth
	return clampFloat(s, 0, 1)
}

// factor maps the health score into the [0.9, 1.1] multiplier range.
func (h NetworkHealth) factor() float64 {
	return 0.9 + 0.2*h.score()
}

// Adjuster computes the next PoW target from chain history, vote
// statistics, and network health, per the hybrid retarget algorithm.
type Adjuster struct {
	rules           config.DifficultyRules
	targetBlockTime int64 // seconds
}

// NewAdjuster creates an adjuster parameterized by genesis difficulty rules.
func NewAdjuster(rules config.DifficultyRules, targetBlockTimeSeconds int) *Adjuster {
	return &Adjuster{rules: rules, targetBlockTime: int64(targetBlockTimeSeconds)}
}

// sigmoid is the logistic damping function σ(x) = 2/(1+e^(-4x)) - 1, which
// maps x ∈ (-∞, ∞) onto (-1, 1) with σ(0) = 0.
func sigmoid(x float64) float64 {
	return 2/(1+math.Exp(-4*x)) - 1
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// powAdjustment computes target_timespan / clamp(actual, target/4, target*4),
// dampened by how far the most recent hashrate sample has drifted from the
// window's average (a stand-in for an EMA: the window is short and
// refreshed every retarget, so the simple mean tracks it closely).
func (a *Adjuster) powAdjustment(actualTimespan int64, hashrateSamples []float64) float64 {
	target := a.targetBlockTime * int64(a.rules.WindowSize)
	if target <= 0 {
		target = 1
	}
	clamped := clampInt64(actualTimespan, target/4, target*4)
	if clamped <= 0 {
		clamped = 1
	}
	ratio := float64(target) / float64(clamped)

	if len(hashrateSamples) == 0 {
		return ratio
	}
	mean := stat.Mean(hashrateSamples, nil)
	if mean == 0 {
		return ratio
	}
	current := hashrateSamples[len(hashrateSamples)-1]
	damp := sigmoid((current - mean) / mean)

	// The further the latest sample has swung from the window average, the
	// more the raw timespan ratio is pulled back toward 1 (no change) —
	// this is what keeps a single noisy block interval from overcorrecting.
	return 1 + (ratio-1)*(1-0.5*math.Abs(damp))
}

// voteAdjustment computes the vote-influence term. Below MinVotesWeight
// participation the term is neutral (1.0): too few ballots to trust.
func (a *Adjuster) voteAdjustment(votes VoteStats) float64 {
	if votes.Participation < a.rules.MinVotesWeight {
		return 1.0
	}
	capped := math.Min(votes.Participation, a.rules.VotePowerCap)
	if a.rules.MinVotesWeight == 0 {
		return 1.0
	}
	return 1 + capped/a.rules.MinVotesWeight*(votes.ApprovalRate-0.5)*a.rules.AdjustmentFactor
}

// NextDifficulty computes the new difficulty for the upcoming retarget
// boundary. actualTimespan is the elapsed seconds over the last
// WindowSize blocks; hashrateSamples are the last HashRateWindow hashrate
// estimates (hashes/sec), most recent last.
func (a *Adjuster) NextDifficulty(current uint64, actualTimespan int64, hashrateSamples []float64, votes VoteStats, health NetworkHealth) uint64 {
	powAdj := a.powAdjustment(actualTimespan, hashrateSamples)
	voteAdj := a.voteAdjustment(votes)

	adj := powAdj*(1-a.rules.VoteInfluence) + voteAdj*a.rules.VoteInfluence
	adj *= health.factor()

	lo := 1 - a.rules.AdjustmentFactor
	hi := 1 + a.rules.AdjustmentFactor
	adj = clampFloat(adj, lo, hi)

	next := float64(current) * adj
	if next < 1 {
		next = 1
	}

	result := uint64(next)
	if a.rules.MinDifficulty > 0 && result < a.rules.MinDifficulty {
		result = a.rules.MinDifficulty
	}
	if a.rules.MaxDifficulty > 0 && result > a.rules.MaxDifficulty {
		result = a.rules.MaxDifficulty
	}
	return result
}

// ShouldRetarget reports whether height is a retarget boundary.
func (a *Adjuster) ShouldRetarget(height uint64) bool {
	return height > 0 && a.rules.DifficultyAdjustmentBlocks > 0 &&
		height%a.rules.DifficultyAdjustmentBlocks == 0
}
