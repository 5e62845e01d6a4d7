// Package blockflow implements spec.md §4.5: for each group a broker owns,
// assembling the best-view cross-chain dependency vector a new block will
// carry, and the sync-facing views derived from the same underlying grid.
package blockflow

import (
	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.BFLW)

// BlockFlow assembles best-view dependency vectors across the chain grid
// and answers the sync-facing queries derived from the same view.
type BlockFlow struct {
	mc     *multichain.MultiChain
	groups int
	owned  model.BrokerConfig
}

// New wires a BlockFlow over mc, scoped to the groups owned describes.
func New(mc *multichain.MultiChain, owned model.BrokerConfig) *BlockFlow {
	return &BlockFlow{mc: mc, groups: mc.Groups(), owned: owned}
}

// depPosition returns the index of other within the ascending,
// group-skipping order used by BlockHeader.IncomingDeps/OutgoingDeps, or -1
// if other == g.
func depPosition(groups int, g, other model.GroupIndex) int {
	idx := 0
	for k := 0; k < groups; k++ {
		gk := model.GroupIndex(k)
		if gk == g {
			continue
		}
		if gk == other {
			return idx
		}
		idx++
	}
	return -1
}

// GetBestDeps selects the 2*G-1 dependency vector a new block mined with
// chainIndex.From == group should carry (spec.md §4.5). Each slot is the
// current best tip of the chain that slot names: incoming deps from chain
// (other, group), outgoing deps to chain (group, other), and the direct
// parent on the intra-group chain (group, group). Each chain's best tip
// (heaviest, ties broken by hash, see hashchain.BestTip) is chosen on its
// own. The selected tips are not checked against each other for cross-chain
// consistency, and a chain that changes while the vector is assembled is
// not re-read.
func (bf *BlockFlow) GetBestDeps(group model.GroupIndex) ([]model.Hash, error) {
	slots := model.DepSlotCount(bf.groups)
	selection := make([]model.Hash, slots)

	for k := 0; k < bf.groups; k++ {
		other := model.GroupIndex(k)
		if other == group {
			continue
		}
		pos := depPosition(bf.groups, group, other)

		in, err := bf.bestTip(model.ChainIndex{From: other, To: group})
		if err != nil {
			return nil, err
		}
		selection[pos] = in

		out, err := bf.bestTip(model.ChainIndex{From: group, To: other})
		if err != nil {
			return nil, err
		}
		selection[bf.groups-1+pos] = out
	}

	parent, err := bf.bestTip(model.ChainIndex{From: group, To: group})
	if err != nil {
		return nil, err
	}
	selection[slots-1] = parent

	log.Debugf("assembled best deps for group %d: %v", group, selection)
	return selection, nil
}

func (bf *BlockFlow) chain(ci model.ChainIndex) (*blockchain.BlockChain, error) {
	return bf.mc.GetBlockChain(ci)
}

func (bf *BlockFlow) bestTip(ci model.ChainIndex) (model.Hash, error) {
	c, err := bf.chain(ci)
	if err != nil {
		return model.Hash{}, err
	}
	best := c.BestTip()
	if best == nil {
		return model.Hash{}, errors.Wrapf(model.ErrMissingBlock, "chain %s has no tips", ci)
	}
	return best.Hash, nil
}

// syncStep is the exponential spacing getSyncLocators walks: the most
// recent heights are sampled densely, older ones sparsely, so a locator
// list stays short even for a deep chain.
const syncStep = 8

// GetSyncLocators returns, for each chain this broker owns, a sparse list
// of its best tip's ancestors at exponentially spaced heights, from the tip
// back to genesis (spec.md §4.5).
func (bf *BlockFlow) GetSyncLocators() (map[model.ChainIndex][]model.Hash, error) {
	out := make(map[model.ChainIndex][]model.Hash)
	for _, entry := range bf.mc.AllChains() {
		if !bf.owned.OwnsChain(entry.Index) {
			continue
		}
		c := entry.Chain
		best := c.BestTip()
		if best == nil {
			continue
		}

		var locators []model.Hash
		height := best.Height
		step := uint64(1)
		for {
			hash, err := c.GetPredecessor(best.Hash, height)
			if err != nil {
				return nil, errors.Wrapf(err, "locator for chain %s at height %d", entry.Index, height)
			}
			locators = append(locators, hash)
			if height == 0 {
				break
			}
			if height < step {
				height = 0
				continue
			}
			height -= step
			step *= syncStep
		}
		out[entry.Index] = locators
	}
	return out, nil
}

// GetSyncInventories answers, for each chain this broker owns, which
// locally known hashes extend past the hash the remote's locator names --
// the symmetric-difference hint a remote uses to request only what it is
// missing (spec.md §4.5). remoteLocators is keyed by chain; a chain absent
// from remoteLocators is treated as wholly unknown to the remote.
func (bf *BlockFlow) GetSyncInventories(remoteLocators map[model.ChainIndex][]model.Hash, limit int) (map[model.ChainIndex][]model.Hash, error) {
	out := make(map[model.ChainIndex][]model.Hash)
	for _, entry := range bf.mc.AllChains() {
		if !bf.owned.OwnsChain(entry.Index) {
			continue
		}
		c := entry.Chain

		locator := bf.commonAncestorLocator(c, remoteLocators[entry.Index])
		if locator.IsZero() {
			locator = c.GenesisHash()
		}

		hashes, err := c.GetHashesAfter(locator, limit)
		if err != nil {
			return nil, errors.Wrapf(err, "inventory for chain %s", entry.Index)
		}
		if len(hashes) > 0 {
			out[entry.Index] = hashes
		}
	}
	return out, nil
}

// commonAncestorLocator returns the first hash in remote's locator list
// (given tip-to-genesis order) that this chain also knows, i.e. the
// highest common ancestor the two locator lists agree on.
func (bf *BlockFlow) commonAncestorLocator(c *blockchain.BlockChain, remote []model.Hash) model.Hash {
	for _, h := range remote {
		if has, err := c.HasHeader(h); err == nil && has {
			return h
		}
	}
	return model.ZeroHash
}

// GetIntraCliqueSyncHashes returns every hash this broker owns on chains
// remote also owns -- the handshake payload two brokers in the same clique
// exchange to discover overlap before a full sync (spec.md §4.5).
func (bf *BlockFlow) GetIntraCliqueSyncHashes(remote model.BrokerConfig) (map[model.ChainIndex][]model.Hash, error) {
	out := make(map[model.ChainIndex][]model.Hash)
	for _, entry := range bf.mc.AllChains() {
		if !bf.owned.OwnsChain(entry.Index) || !remote.OwnsChain(entry.Index) {
			continue
		}
		hashes, err := entry.Chain.GetHashesAfter(entry.Chain.GenesisHash(), 0)
		if err != nil {
			return nil, errors.Wrapf(err, "intra-clique hashes for chain %s", entry.Index)
		}
		out[entry.Index] = append([]model.Hash{entry.Chain.GenesisHash()}, hashes...)
	}
	return out, nil
}
