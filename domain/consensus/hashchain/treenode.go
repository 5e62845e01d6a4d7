package hashchain

import (
	"math/big"

	"github.com/blockflow/flowd/domain/consensus/model"
)

// TreeNode is the in-memory representation of a block on one chain: hash,
// height, weight, parent, and children, per spec.md §3. Pruning never
// removes nodes (only tips), so a plain hash-keyed map gives every node a
// stable identity without needing the arena-index scheme spec.md §9
// suggests for languages with ownership semantics -- Go's garbage collector
// already makes the cyclic parent/children references safe to keep as
// plain pointers.
type TreeNode struct {
	Hash      model.Hash
	Height    uint64
	Weight    *big.Int
	Target    model.CompactTarget
	Timestamp uint64

	Parent   *TreeNode
	Children map[model.Hash]*TreeNode
}

func newRootNode(hash model.Hash, timestamp uint64, target model.CompactTarget) *TreeNode {
	return &TreeNode{
		Hash:      hash,
		Height:    0,
		Weight:    model.TargetToWork(target),
		Target:    target,
		Timestamp: timestamp,
		Children:  make(map[model.Hash]*TreeNode),
	}
}

func newChildNode(hash model.Hash, parent *TreeNode, timestamp uint64, target model.CompactTarget) *TreeNode {
	weight := new(big.Int).Add(parent.Weight, model.TargetToWork(target))
	return &TreeNode{
		Hash:      hash,
		Height:    parent.Height + 1,
		Weight:    weight,
		Target:    target,
		Timestamp: timestamp,
		Parent:    parent,
		Children:  make(map[model.Hash]*TreeNode),
	}
}
