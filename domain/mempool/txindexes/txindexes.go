// Package txindexes implements spec.md §4.6's TxIndexes: the three
// mappings a pool maintains over its member transactions, grounded on
// domain/miningmanager/mempool/transactions_pool.go's
// chainedTransactionsByPreviousOutpoint bookkeeping.
package txindexes

import (
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
)

// TxIndexes tracks, over the union of transactions in a pool, which
// outputs are spent, which are still available, and which lockup scripts
// own them.
type TxIndexes struct {
	inputIndex   map[model.AssetOutputRef]model.TxHash
	outputIndex  map[model.AssetOutputRef]model.TxOutput
	addressIndex map[model.LockupScript]map[model.AssetOutputRef]struct{}
}

// New returns an empty TxIndexes.
func New() *TxIndexes {
	return &TxIndexes{
		inputIndex:   make(map[model.AssetOutputRef]model.TxHash),
		outputIndex:  make(map[model.AssetOutputRef]model.TxOutput),
		addressIndex: make(map[model.LockupScript]map[model.AssetOutputRef]struct{}),
	}
}

// Add indexes tx's inputs and outputs. A no-op if tx is already indexed
// (spec.md §4.6: "Add/remove must be idempotent").
func (ti *TxIndexes) Add(tx *model.Transaction) {
	for _, ref := range tx.Inputs {
		if _, already := ti.inputIndex[ref]; already {
			continue
		}
		ti.inputIndex[ref] = tx.Hash
	}

	for i, out := range tx.FixedOutputs {
		ref := model.AssetOutputRef{TxHash: tx.Hash, OutputIndex: uint32(i)}
		if _, already := ti.outputIndex[ref]; already {
			continue
		}
		ti.outputIndex[ref] = out

		set, ok := ti.addressIndex[out.LockupScript]
		if !ok {
			set = make(map[model.AssetOutputRef]struct{})
			ti.addressIndex[out.LockupScript] = set
		}
		set[ref] = struct{}{}
	}
}

// Remove un-indexes tx's inputs and outputs. A no-op if tx was never
// indexed.
func (ti *TxIndexes) Remove(tx *model.Transaction) {
	for _, ref := range tx.Inputs {
		if ti.inputIndex[ref] != tx.Hash {
			continue
		}
		delete(ti.inputIndex, ref)
	}

	for i, out := range tx.FixedOutputs {
		ref := model.AssetOutputRef{TxHash: tx.Hash, OutputIndex: uint32(i)}
		if _, ok := ti.outputIndex[ref]; !ok {
			continue
		}
		delete(ti.outputIndex, ref)

		if set, ok := ti.addressIndex[out.LockupScript]; ok {
			delete(set, ref)
			if len(set) == 0 {
				delete(ti.addressIndex, out.LockupScript)
			}
		}
	}
}

// IsSpent reports whether ref is recorded as spent by some indexed
// transaction.
func (ti *TxIndexes) IsSpent(ref model.AssetOutputRef) bool {
	_, spent := ti.inputIndex[ref]
	return spent
}

// GetUTXO returns ref's output, or ErrOutputSpent / ErrOutputNotFound.
func (ti *TxIndexes) GetUTXO(ref model.AssetOutputRef) (model.TxOutput, error) {
	if ti.IsSpent(ref) {
		return model.TxOutput{}, errors.Wrapf(model.ErrOutputSpent, "%+v", ref)
	}
	out, ok := ti.outputIndex[ref]
	if !ok {
		return model.TxOutput{}, errors.Wrapf(model.ErrOutputNotFound, "%+v", ref)
	}
	return out, nil
}

// UTXOsForAddress returns every unspent output known to belong to script.
func (ti *TxIndexes) UTXOsForAddress(script model.LockupScript) []model.AssetOutputRef {
	set := ti.addressIndex[script]
	out := make([]model.AssetOutputRef, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	return out
}

// SpendingTx returns the hash of the transaction that spends ref, if any.
func (ti *TxIndexes) SpendingTx(ref model.AssetOutputRef) (model.TxHash, bool) {
	h, ok := ti.inputIndex[ref]
	return h, ok
}
