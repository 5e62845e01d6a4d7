package main

import (
	"strconv"

	"github.com/blockflow/flowd/domain/consensus/model"
)

// defaultMaxMiningTarget is the easiest compact target used when
// consensus.maxminingtarget is left unset.
const defaultMaxMiningTarget model.CompactTarget = 0x1e00ffff

// parseMaxMiningTarget parses a hex-encoded compact target, falling back to
// defaultMaxMiningTarget when hex is empty.
func parseMaxMiningTarget(hex string) (model.CompactTarget, error) {
	if hex == "" {
		return defaultMaxMiningTarget, nil
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, err
	}
	return model.CompactTarget(n), nil
}

// placeholderWorldState is a stand-in for the out-of-scope script/VM
// collaborator (spec.md §1): it reports every input as present and never
// changes root. It exists only so this binary's wiring has some WorldState
// to pass to blockchain.New; a real deployment swaps it for the actual
// trie-backed executor behind the model.WorldState interface.
type placeholderWorldState struct {
	root model.Hash
}

func (s placeholderWorldState) ContainsAllInputs(tx *model.Transaction) (bool, error) {
	return true, nil
}

func (s placeholderWorldState) Apply(tx *model.Transaction) (model.WorldState, error) {
	return s, nil
}

func (s placeholderWorldState) Root() model.Hash {
	return s.root
}

// genesisBlock builds the deterministic genesis block for chainIndex: a
// Deps vector of all-zero hashes (spec.md §3's sentinel for "no
// dependency") and a single coinbase paying nothing to nobody.
func genesisBlock(chainIndex model.ChainIndex, groups int, maxTarget model.CompactTarget) *model.Block {
	deps := make([]model.Hash, model.DepSlotCount(groups))
	for i := range deps {
		deps[i] = model.ZeroHash
	}

	var genesisHash model.Hash
	genesisHash[0] = byte(chainIndex.From)
	genesisHash[1] = byte(chainIndex.To)

	coinbase := &model.Transaction{Hash: genesisHash}

	return &model.Block{
		Header: model.BlockHeader{
			ChainIndex: chainIndex,
			Deps:       deps,
			Target:     maxTarget,
		},
		Transactions: []*model.Transaction{coinbase},
	}
}
