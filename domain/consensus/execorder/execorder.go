// Package execorder computes the deterministic non-coinbase execution
// order for a block, per spec.md §4.8: scripted transactions are shuffled
// by a Fisher-Yates walk seeded from the block's parent hash and three of
// its own transaction hashes, while non-script transactions keep their
// original relative order and execute after the scripted ones. Any
// validator can recompute the same order from the block alone -- this is
// the front-running mitigation spec.md §4.8 describes.
package execorder

import (
	"encoding/binary"

	"github.com/blockflow/flowd/domain/consensus/model"
)

// NonCoinbaseExecutionOrder returns the indices of txs (the non-coinbase
// prefix of a block) in execution order.
func NonCoinbaseExecutionOrder(parentHash model.Hash, txs []*model.Transaction) []int {
	if len(txs) == 0 {
		return nil
	}

	var scripted, plain []int
	for i, tx := range txs {
		if tx.HasScript() {
			scripted = append(scripted, i)
		} else {
			plain = append(plain, i)
		}
	}

	if len(scripted) > 1 {
		seed := seedFrom(parentHash, txs)
		fisherYates(scripted, txs, seed)
	}

	order := make([]int, 0, len(txs))
	order = append(order, scripted...)
	order = append(order, plain...)
	return order
}

// seedFrom computes parentHash XOR tx[0].hash XOR tx[mid].hash XOR
// tx[last].hash over the full (pre-shuffle) transaction list.
func seedFrom(parentHash model.Hash, txs []*model.Transaction) model.Hash {
	mid := len(txs) / 2
	last := len(txs) - 1

	seed := parentHash
	xorInto(&seed, txs[0].Hash)
	xorInto(&seed, txs[mid].Hash)
	xorInto(&seed, txs[last].Hash)
	return seed
}

func xorInto(dst *model.Hash, src model.Hash) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// fisherYates permutes indices in place, using seed (stepped to the
// picked transaction's hash on every iteration) to choose each swap
// partner.
func fisherYates(indices []int, txs []*model.Transaction, seed model.Hash) {
	for i := len(indices) - 1; i > 0; i-- {
		j := int(seedToUint64(seed) % uint64(i+1))
		indices[i], indices[j] = indices[j], indices[i]
		seed = txs[indices[j]].Hash
	}
}

func seedToUint64(h model.Hash) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}
