// Package block defines block types and validation.
package block

import (
	"github.com/votapow/votapow-chain/pkg/tx"
	"github.com/votapow/votapow-chain/pkg/types"
)

// Block represents a block in the chain.
//
// Votes carries any direct-voting ballots closed out by this block (the
// period ending at Header.Height); Validators is the set of addresses whose
// votes counted toward that period's participation, i.e. the addresses
// eligible for a VoteReward payout gated by validateParticipationReward.
// Header.ValidatorRoot is the Merkle root of Votes' VoteIDs, so a light
// client can confirm Votes against the header without downloading the rest
// of the block.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
	Votes        []types.Vote      `json:"votes,omitempty"`
	Validators   []types.Address   `json:"validators,omitempty"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// VoteHashes returns the VoteID of every embedded vote, in order, for
// ValidatorRoot computation.
func (b *Block) VoteHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Votes))
	for i, v := range b.Votes {
		hashes[i] = v.VoteID
	}
	return hashes
}
