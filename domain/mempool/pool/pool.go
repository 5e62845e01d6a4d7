// Package pool implements spec.md §4.6's SharedPool and PendingPool: bounded
// FIFO transaction staging areas guarded by a single-writer/multi-reader
// lock, grounded on domain/miningmanager/mempool/transactions_pool.go's
// allTransactions/transactionsOrderedByFeeRate bookkeeping.
package pool

import (
	"sort"
	"sync"

	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/mempool/txindexes"
	"github.com/pkg/errors"
)

// entry is one pooled transaction plus its insertion timestamp, the FIFO
// ordering key both pools evict and scan by.
type entry struct {
	tx         *model.Transaction
	insertedAt uint64
}

// SharedPool is a bounded FIFO of transactions not yet known ready to mine:
// admission rejects a double-spend against the pool's own input index, and
// overflow evicts the oldest entries first (spec.md §4.6).
type SharedPool struct {
	mtx      sync.RWMutex
	capacity int
	order    []*entry // oldest first
	byHash   map[model.TxHash]*entry
	indexes  *txindexes.TxIndexes
}

// NewSharedPool creates a SharedPool bounded at capacity.
func NewSharedPool(capacity int) *SharedPool {
	return &SharedPool{
		capacity: capacity,
		byHash:   make(map[model.TxHash]*entry),
		indexes:  txindexes.New(),
	}
}

// Add admits tx at timestamp now. Returns ErrDoubleSpend if any input is
// already spent by a pooled transaction; otherwise evicts the oldest
// entries until there is room, then appends tx.
func (p *SharedPool) Add(tx *model.Transaction, now uint64) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, already := p.byHash[tx.Hash]; already {
		return nil
	}

	for _, ref := range tx.Inputs {
		if p.indexes.IsSpent(ref) {
			return errors.Wrapf(model.ErrDoubleSpend, "tx %s input %+v", tx.Hash, ref)
		}
	}

	for len(p.order) >= p.capacity && p.capacity > 0 {
		p.evictOldestLocked()
	}

	e := &entry{tx: tx, insertedAt: now}
	p.order = append(p.order, e)
	p.byHash[tx.Hash] = e
	p.indexes.Add(tx)
	return nil
}

func (p *SharedPool) evictOldestLocked() {
	if len(p.order) == 0 {
		return
	}
	oldest := p.order[0]
	p.order = p.order[1:]
	delete(p.byHash, oldest.tx.Hash)
	p.indexes.Remove(oldest.tx)
}

// Remove drops tx by hash. A no-op if tx is not pooled.
func (p *SharedPool) Remove(hash model.TxHash) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.removeLocked(hash)
}

func (p *SharedPool) removeLocked(hash model.TxHash) {
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	p.indexes.Remove(e.tx)
	for i, oe := range p.order {
		if oe == e {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// IsDoubleSpending reports whether any of tx's inputs are already spent by
// a pooled transaction.
func (p *SharedPool) IsDoubleSpending(tx *model.Transaction) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	for _, ref := range tx.Inputs {
		if p.indexes.IsSpent(ref) {
			return true
		}
	}
	return false
}

// ExtractPromotable scans the pool for transactions whose inputs all
// resolve in worldState, returning them in insertion order without
// removing them -- the caller (MemPool.clean) is responsible for moving
// them to PendingPool and removing them here.
func (p *SharedPool) ExtractPromotable(worldState model.WorldState) ([]*model.Transaction, error) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	var out []*model.Transaction
	for _, e := range p.order {
		ready, err := worldState.ContainsAllInputs(e.tx)
		if err != nil {
			return nil, errors.Wrapf(err, "checking tx %s", e.tx.Hash)
		}
		if ready {
			out = append(out, e.tx)
		}
	}
	return out, nil
}

// Len returns the number of pooled transactions.
func (p *SharedPool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.order)
}

// Has reports whether hash is currently pooled.
func (p *SharedPool) Has(hash model.TxHash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}

// PendingPool holds transactions known ready to mine against the current
// persisted world state (spec.md §4.6).
type PendingPool struct {
	mtx      sync.RWMutex
	capacity int
	order    []*entry
	byHash   map[model.TxHash]*entry
	indexes  *txindexes.TxIndexes
}

// NewPendingPool creates a PendingPool bounded at capacity.
func NewPendingPool(capacity int) *PendingPool {
	return &PendingPool{
		capacity: capacity,
		byHash:   make(map[model.TxHash]*entry),
		indexes:  txindexes.New(),
	}
}

// Add admits tx at timestamp now, with the same double-spend rule as
// SharedPool. Unlike SharedPool it never evicts: at capacity it returns
// ErrPoolFull.
func (p *PendingPool) Add(tx *model.Transaction, now uint64) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, already := p.byHash[tx.Hash]; already {
		return nil
	}

	for _, ref := range tx.Inputs {
		if p.indexes.IsSpent(ref) {
			return errors.Wrapf(model.ErrDoubleSpend, "tx %s input %+v", tx.Hash, ref)
		}
	}

	if p.capacity > 0 && len(p.order) >= p.capacity {
		return errors.Wrapf(model.ErrPoolFull, "pending pool at capacity %d", p.capacity)
	}

	e := &entry{tx: tx, insertedAt: now}
	p.order = append(p.order, e)
	p.byHash[tx.Hash] = e
	p.indexes.Add(tx)
	return nil
}

// Remove drops tx by hash. A no-op if tx is not pooled.
func (p *PendingPool) Remove(hash model.TxHash) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	p.indexes.Remove(e.tx)
	for i, oe := range p.order {
		if oe == e {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// IsDoubleSpending reports whether any of tx's inputs are already spent by
// a pooled transaction.
func (p *PendingPool) IsDoubleSpending(tx *model.Transaction) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	for _, ref := range tx.Inputs {
		if p.indexes.IsSpent(ref) {
			return true
		}
	}
	return false
}

// ExtractReadyTxs scans entries for which worldState.ContainsAllInputs is
// true, up to limit (0 means unlimited). The ready transactions are ordered
// by descending Transaction.Fee, in the manner of
// transactionsOrderedByFeeRate; insertion order only breaks ties between
// equal fees.
func (p *PendingPool) ExtractReadyTxs(worldState model.WorldState, limit int) ([]*model.Transaction, error) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	var ready []*model.Transaction
	for _, e := range p.order {
		ok, err := worldState.ContainsAllInputs(e.tx)
		if err != nil {
			return nil, errors.Wrapf(err, "checking tx %s", e.tx.Hash)
		}
		if ok {
			ready = append(ready, e.tx)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Fee() > ready[j].Fee()
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

// TakeOldTxs returns entries with insertedAt below threshold, in ascending
// insertion-time order, without removing them.
func (p *PendingPool) TakeOldTxs(threshold uint64) []*model.Transaction {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	var out []*model.Transaction
	for _, e := range p.order {
		if e.insertedAt < threshold {
			out = append(out, e.tx)
		}
	}
	return out
}

// AllTxs returns every pooled transaction in insertion order.
func (p *PendingPool) AllTxs() []*model.Transaction {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	out := make([]*model.Transaction, len(p.order))
	for i, e := range p.order {
		out[i] = e.tx
	}
	return out
}

// Len returns the number of pooled transactions.
func (p *PendingPool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.order)
}

// Has reports whether hash is currently pooled.
func (p *PendingPool) Has(hash model.TxHash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}
