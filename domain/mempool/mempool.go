// Package mempool implements spec.md §4.7: the per-group facade over
// SharedPool and PendingPool, grounded on
// domain/mempool/mempool.go's add/clean dispatch shape.
package mempool

import (
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/mempool/pool"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.MPOL)

// Config carries the per-group capacity and timing knobs spec.md §6 names
// under "mempool.*".
type Config struct {
	SharedPoolCapacity  int
	PendingPoolCapacity int
	CleanFrequency      uint64 // milliseconds
}

// MemPool is the per-group facade routing submissions between SharedPool
// and PendingPool.
type MemPool struct {
	group   model.GroupIndex
	config  Config
	shared  *pool.SharedPool
	pending *pool.PendingPool
}

// New constructs a MemPool for group.
func New(group model.GroupIndex, config Config) *MemPool {
	return &MemPool{
		group:   group,
		config:  config,
		shared:  pool.NewSharedPool(config.SharedPoolCapacity),
		pending: pool.NewPendingPool(config.PendingPoolCapacity),
	}
}

// Add routes tx to PendingPool if its inputs already resolve in
// worldState, else to SharedPool (spec.md §4.7).
func (mp *MemPool) Add(tx *model.Transaction, now uint64, worldState model.WorldState) error {
	ready, err := worldState.ContainsAllInputs(tx)
	if err != nil {
		return errors.Wrapf(err, "checking readiness of tx %s", tx.Hash)
	}
	if ready {
		if err := mp.pending.Add(tx, now); err != nil {
			return err
		}
		log.Debugf("tx %s admitted to pending pool for group %d", tx.Hash, mp.group)
		return nil
	}

	if err := mp.shared.Add(tx, now); err != nil {
		return err
	}
	log.Debugf("tx %s admitted to shared pool for group %d", tx.Hash, mp.group)
	return nil
}

// Clean runs the periodic maintenance pass spec.md §4.7 describes:
// promote shared transactions now ready, drop stale pending transactions,
// and forget anything included in a newly accepted block.
func (mp *MemPool) Clean(now uint64, worldState model.WorldState, includedInBlock []model.TxHash) error {
	promotable, err := mp.shared.ExtractPromotable(worldState)
	if err != nil {
		return errors.Wrap(err, "scanning shared pool for promotable transactions")
	}
	for _, tx := range promotable {
		if err := mp.pending.Add(tx, now); err != nil {
			if errors.Is(err, model.ErrPoolFull) {
				continue // leave it in shared; retry next clean pass
			}
			return errors.Wrapf(err, "promoting tx %s", tx.Hash)
		}
		mp.shared.Remove(tx.Hash)
	}

	threshold := uint64(0)
	if now > mp.config.CleanFrequency {
		threshold = now - mp.config.CleanFrequency
	}
	for _, tx := range mp.pending.TakeOldTxs(threshold) {
		mp.pending.Remove(tx.Hash)
	}

	for _, tx := range mp.pending.AllTxs() {
		stillReady, err := worldState.ContainsAllInputs(tx)
		if err != nil {
			return errors.Wrapf(err, "revalidating tx %s", tx.Hash)
		}
		if !stillReady {
			mp.pending.Remove(tx.Hash)
		}
	}

	for _, hash := range includedInBlock {
		mp.pending.Remove(hash)
		mp.shared.Remove(hash)
	}

	return nil
}

// ExtractReadyTxs returns up to limit pending transactions ready to mine
// (spec.md §4.8 step 4).
func (mp *MemPool) ExtractReadyTxs(worldState model.WorldState, limit int) ([]*model.Transaction, error) {
	return mp.pending.ExtractReadyTxs(worldState, limit)
}

// IsDoubleSpending reports whether any of tx's inputs are already spent by
// a transaction in either pool (spec.md §4.7).
func (mp *MemPool) IsDoubleSpending(tx *model.Transaction) bool {
	return mp.shared.IsDoubleSpending(tx) || mp.pending.IsDoubleSpending(tx)
}

// Len returns the combined number of pooled transactions.
func (mp *MemPool) Len() int {
	return mp.shared.Len() + mp.pending.Len()
}
