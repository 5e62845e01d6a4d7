package model

import (
	"math/big"

	"github.com/pkg/errors"
)

// Block is a header plus its ordered transaction list. The last element is
// always the coinbase; the non-coinbase prefix carries user transactions
// (spec.md §3).
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Coinbase returns the block's coinbase transaction -- its last element.
func (b *Block) Coinbase() *Transaction {
	return b.Transactions[len(b.Transactions)-1]
}

// UserTransactions returns the non-coinbase prefix.
func (b *Block) UserTransactions() []*Transaction {
	return b.Transactions[:len(b.Transactions)-1]
}

// Validate checks the one structural invariant the Block type itself can
// check without consulting the DAG: it must carry at least a coinbase.
func (b *Block) Validate(groups int) error {
	if len(b.Transactions) == 0 {
		return errors.New("block has no transactions (missing coinbase)")
	}
	return b.Header.Validate(groups)
}

// BlockState is the persisted per-block record kept alongside the header:
// height, weight, and the root of the world state after this block is
// applied (spec.md §3, §6).
type BlockState struct {
	Height         uint64
	Weight         *big.Int
	WorldStateRoot Hash
}
