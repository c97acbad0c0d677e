// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/votapow/votapow-chain/internal/utxo"
	"github.com/votapow/votapow-chain/pkg/crypto"
	"github.com/votapow/votapow-chain/pkg/tx"
	"github.com/votapow/votapow-chain/pkg/types"
)

// Mempool errors. Names follow the error taxonomy mempool admission surfaces:
// SizeExceeded, BadSignature/structural failures collapse into ErrValidation
// (ValidateWithUTXOs already reports which rule failed), NonceInvalid,
// DoubleSpend (ErrConflict), FeeBelowMin (ErrFeeTooLow), PoolFull, Blacklisted.
var (
	ErrAlreadyExists     = errors.New("transaction already in mempool")
	ErrConflict          = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull          = errors.New("mempool is full")
	ErrValidation        = errors.New("transaction failed validation")
	ErrFeeTooLow         = errors.New("transaction fee below minimum")
	ErrCoinbaseNotMature = errors.New("coinbase output not mature")
	ErrSizeExceeded      = errors.New("transaction exceeds maximum size")
	ErrNonceInvalid      = errors.New("transaction nonce is not greater than the sender's last admitted nonce")
	ErrBlacklisted       = errors.New("transaction sender is blacklisted")
)

// DefaultExpiry is how long an unconfirmed transaction may sit in the pool
// before periodic maintenance drops it.
const DefaultExpiry = 24 * time.Hour

// MaxTxBytes bounds a single transaction's signing-bytes size.
const MaxTxBytes = 128 * 1024

// entry wraps a transaction with its fee and metadata.
type entry struct {
	tx      *tx.Transaction
	txHash  types.Hash
	fee     uint64
	feeRate float64 // fee per byte of SigningBytes.
	addedAt time.Time
	sender  types.Address
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu         sync.RWMutex
	txs        map[types.Hash]*entry         // txHash -> entry
	spends     map[types.Outpoint]types.Hash // outpoint -> txHash (conflict index)
	maxSize    int
	minFeeRate uint64 // Minimum fee rate in base units per byte (0 = no minimum).
	utxos      tx.UTXOProvider

	// Coinbase maturity checking.
	utxoSet          utxo.Set      // For maturity checks (nil = disabled).
	heightFn         func() uint64 // Current chain height.
	coinbaseMaturity uint64        // Required confirmations (0 = disabled).

	// Stake validation.
	stakeAmount uint64 // Exact amount required for stake outputs (0 = disabled).

	// Per-sender replay protection: last admitted LockTime value, which this
	// chain repurposes as a monotonic per-sender nonce. Disabled by default
	// since not every deployment requires strictly increasing LockTime;
	// enable with SetNonceEnforced for senders that opt into it.
	lastNonce     map[types.Address]uint64
	nonceEnforced bool

	blacklist map[types.Address]struct{}
	expiry    time.Duration
}

// SetNonceEnforced toggles per-sender monotonic nonce checking (using the
// transaction's LockTime field as the nonce).
func (p *Pool) SetNonceEnforced(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonceEnforced = enabled
}

// New creates a new mempool with the given UTXO provider and max size.
func New(utxos tx.UTXOProvider, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 50000
	}
	return &Pool{
		txs:       make(map[types.Hash]*entry),
		spends:    make(map[types.Outpoint]types.Hash),
		maxSize:   maxSize,
		utxos:     utxos,
		lastNonce: make(map[types.Address]uint64),
		blacklist: make(map[types.Address]struct{}),
		expiry:    DefaultExpiry,
	}
}

// SetBlacklist replaces the set of addresses whose transactions are refused
// and whose existing entries are pruned on the next Maintain call.
func (p *Pool) SetBlacklist(addrs []types.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blacklist = make(map[types.Address]struct{}, len(addrs))
	for _, a := range addrs {
		p.blacklist[a] = struct{}{}
	}
}

// IsBlacklisted reports whether the address is currently blacklisted.
func (p *Pool) IsBlacklisted(addr types.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.blacklist[addr]
	return ok
}

// SetExpiry overrides the default 24h expiry used by Maintain.
func (p *Pool) SetExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiry = d
}

// senderOf derives the spending address from a transaction's first input
// public key. A transaction with no inputs, or whose first input carries no
// public key (a coinbase), has no sender.
func senderOf(transaction *tx.Transaction) (types.Address, bool) {
	if len(transaction.Inputs) == 0 || len(transaction.Inputs[0].PubKey) == 0 {
		return types.Address{}, false
	}
	return crypto.AddressFromPubKey(transaction.Inputs[0].PubKey), true
}

// SetMinFeeRate sets the minimum fee rate (base units per byte) for transaction acceptance.
func (p *Pool) SetMinFeeRate(rate uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minFeeRate = rate
}

// MinFeeRate returns the current minimum fee rate (base units per byte).
func (p *Pool) MinFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minFeeRate
}

// SetStakeAmount sets the exact amount required for stake outputs.
// Transactions with ScriptTypeStake outputs whose value != stakeAmount are rejected.
func (p *Pool) SetStakeAmount(amount uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stakeAmount = amount
}

// SetCoinbaseMaturity enables coinbase maturity checking.
func (p *Pool) SetCoinbaseMaturity(maturity uint64, heightFn func() uint64, set utxo.Set) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coinbaseMaturity = maturity
	p.heightFn = heightFn
	p.utxoSet = set
}

// Add validates and adds a transaction to the mempool.
// Returns the computed fee. Rejects duplicates and double-spend conflicts.
func (p *Pool) Add(transaction *tx.Transaction) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.Hash()

	// Reject duplicates.
	if _, exists := p.txs[txHash]; exists {
		return 0, ErrAlreadyExists
	}

	if len(transaction.SigningBytes()) > MaxTxBytes {
		return 0, ErrSizeExceeded
	}

	sender, hasSender := senderOf(transaction)
	if hasSender {
		if _, blocked := p.blacklist[sender]; blocked {
			return 0, fmt.Errorf("%w: %s", ErrBlacklisted, sender)
		}
		if p.nonceEnforced {
			if last, seen := p.lastNonce[sender]; seen && transaction.LockTime <= last {
				return 0, fmt.Errorf("%w: got %d, want > %d", ErrNonceInvalid, transaction.LockTime, last)
			}
		}
	}

	// Check for double-spend conflicts.
	for _, in := range transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			return 0, fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, conflictHash)
		}
	}

	// Coinbase maturity check.
	if p.coinbaseMaturity > 0 && p.utxoSet != nil {
		currentHeight := p.heightFn()
		for _, in := range transaction.Inputs {
			if in.PrevOut.IsZero() {
				continue
			}
			u, uErr := p.utxoSet.Get(in.PrevOut)
			if uErr == nil && u.Coinbase && currentHeight-u.Height < p.coinbaseMaturity {
				return 0, fmt.Errorf("%w: need %d confirmations, have %d",
					ErrCoinbaseNotMature, p.coinbaseMaturity, currentHeight-u.Height)
			}
			if uErr == nil && u.LockedUntil > 0 && currentHeight < u.LockedUntil {
				return 0, fmt.Errorf("output locked until block %d, current %d", u.LockedUntil, currentHeight)
			}
		}
	}

	// UTXO-aware validation.
	fee, err := transaction.ValidateWithUTXOs(p.utxos)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Stake amount: enforce exact value on ScriptTypeStake outputs.
	if p.stakeAmount > 0 {
		for _, out := range transaction.Outputs {
			if out.Script.Type == types.ScriptTypeStake && out.Value != p.stakeAmount {
				return 0, fmt.Errorf("%w: stake output must be exactly %d, got %d", ErrValidation, p.stakeAmount, out.Value)
			}
		}
	}

	// Compute fee rate for minimum check and eviction comparison.
	sigBytes := len(transaction.SigningBytes())
	var feeRate float64
	if sigBytes > 0 {
		feeRate = float64(fee) / float64(sigBytes)
	}

	// Enforce minimum fee rate (fee per byte of SigningBytes), scaling up to
	// 2x at full utilization once the pool crosses 75% capacity.
	if p.minFeeRate > 0 {
		requiredFee := p.minFeeRate * uint64(sigBytes)
		requiredFee = p.scaleByUtilization(requiredFee)
		if fee < requiredFee {
			return 0, fmt.Errorf("%w: got %d, need %d (%d bytes × %d rate)", ErrFeeTooLow, fee, requiredFee, sigBytes, p.minFeeRate)
		}
	}

	// At capacity: reject. Making room is the job of periodic maintenance
	// (Evict/Maintain), which always drops the oldest entries first, never
	// a newer, lower-fee one, so admission itself cannot be used to bump a
	// paying transaction out of the pool.
	if len(p.txs) >= p.maxSize {
		return 0, ErrPoolFull
	}

	e := &entry{
		tx:      transaction,
		txHash:  txHash,
		fee:     fee,
		feeRate: feeRate,
		addedAt: time.Now(),
		sender:  sender,
	}

	// Add to pool and conflict index.
	p.txs[txHash] = e
	for _, in := range transaction.Inputs {
		if !in.PrevOut.IsZero() {
			p.spends[in.PrevOut] = txHash
		}
	}
	if hasSender {
		p.lastNonce[sender] = transaction.LockTime
	}

	return fee, nil
}

// scaleByUtilization linearly scales a base fee up to 2x as pool occupancy
// moves from 75% to 100% of maxSize, per the mempool back-pressure policy.
func (p *Pool) scaleByUtilization(base uint64) uint64 {
	if p.maxSize <= 0 {
		return base
	}
	util := float64(len(p.txs)) / float64(p.maxSize)
	if util <= 0.75 {
		return base
	}
	if util > 1 {
		util = 1
	}
	factor := 1 + (util-0.75)/0.25
	return uint64(float64(base) * factor)
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	// Clean up spend index.
	for _, in := range e.tx.Inputs {
		if !in.PrevOut.IsZero() {
			delete(p.spends, in.PrevOut)
		}
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// RemoveIncluded removes every transaction whose id appears among the
// block's transactions. Equivalent to RemoveConfirmed; named to match the
// contract used by block commit.
func (p *Pool) RemoveIncluded(transactions []*tx.Transaction) {
	p.RemoveConfirmed(transactions)
}

// Maintain drops expired entries and entries from now-blacklisted senders.
// Intended to be called periodically by the node's background loop.
func (p *Pool) Maintain() (expired, blacklisted int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.expiry)
	var toRemove []types.Hash
	for h, e := range p.txs {
		if e.addedAt.Before(cutoff) {
			toRemove = append(toRemove, h)
			expired++
			continue
		}
		if _, blocked := p.blacklist[e.sender]; blocked {
			toRemove = append(toRemove, h)
			blacklisted++
		}
	}
	for _, h := range toRemove {
		p.removeLocked(h)
	}
	return expired, blacklisted
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the fee for a transaction in the mempool (0 if not found).
func (p *Pool) GetFee(txHash types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return 0
	}
	return e.fee
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all transactions in the mempool.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// SelectForBlock returns transactions ordered by fee rate (highest first),
// up to the given limit.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}

	// Sort by fee rate descending.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].feeRate > entries[j].feeRate
	})

	if limit > len(entries) {
		limit = len(entries)
	}

	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}
