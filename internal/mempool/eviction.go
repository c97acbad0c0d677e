package mempool

import "sort"

// Evict removes the oldest transactions until the pool is at or below
// maxSize, for callers that shrink maxSize at runtime. Add itself never
// evicts: at capacity it rejects the new transaction with ErrPoolFull.
func (p *Pool) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.txs) <= p.maxSize {
		return 0
	}

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].addedAt.Before(entries[j].addedAt)
	})

	evicted := 0
	for len(p.txs) > p.maxSize && evicted < len(entries) {
		p.removeLocked(entries[evicted].txHash)
		evicted++
	}
	return evicted
}
