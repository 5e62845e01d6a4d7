// Package multichain implements spec.md §4.4: a dense G*G array of chains,
// dispatching to the one (from,to) chain any operation addresses, and
// folding aggregate queries over every chain in the grid. MultiChain has no
// notion of broker ownership; aggregates are not restricted to the chains a
// broker owns.
package multichain

import (
	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/hashchain"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
)

// MultiChain owns groups*groups BlockChain instances, indexed row-major by
// ChainIndex.Flattened.
type MultiChain struct {
	groups int
	chains []*blockchain.BlockChain
}

// New wires a MultiChain over pre-constructed chains, one per (from,to)
// pair in row-major order (ChainIndex.Flattened order).
func New(groups int, chains []*blockchain.BlockChain) (*MultiChain, error) {
	if len(chains) != groups*groups {
		return nil, errors.Errorf("multichain: expected %d chains for %d groups, got %d", groups*groups, groups, len(chains))
	}
	return &MultiChain{groups: groups, chains: chains}, nil
}

// Groups returns G.
func (m *MultiChain) Groups() int {
	return m.groups
}

func (m *MultiChain) chainAt(ci model.ChainIndex) (*blockchain.BlockChain, error) {
	i := ci.Flattened(m.groups)
	if i < 0 || i >= len(m.chains) {
		return nil, errors.Wrapf(model.ErrInvalidChainIndex, "chain %s out of range for %d groups", ci, m.groups)
	}
	return m.chains[i], nil
}

// GetBlockChain dispatches to the BlockChain serving ci.
func (m *MultiChain) GetBlockChain(ci model.ChainIndex) (*blockchain.BlockChain, error) {
	return m.chainAt(ci)
}

// GetHeaderChain dispatches to the HeaderChain underlying ci's BlockChain.
func (m *MultiChain) GetHeaderChain(ci model.ChainIndex) (*headerchain.HeaderChain, error) {
	bc, err := m.chainAt(ci)
	if err != nil {
		return nil, err
	}
	return bc.HeaderChain, nil
}

// GetHashChain dispatches to the HashChain underlying ci's BlockChain.
func (m *MultiChain) GetHashChain(ci model.ChainIndex) (*hashchain.HashChain, error) {
	bc, err := m.chainAt(ci)
	if err != nil {
		return nil, err
	}
	return bc.HashChain, nil
}

// AllChains returns every (ChainIndex, BlockChain) pair this MultiChain
// owns, in row-major order.
func (m *MultiChain) AllChains() []struct {
	Index model.ChainIndex
	Chain *blockchain.BlockChain
} {
	out := make([]struct {
		Index model.ChainIndex
		Chain *blockchain.BlockChain
	}, len(m.chains))
	for i, c := range m.chains {
		out[i].Index = model.ChainIndexFromFlattened(i, m.groups)
		out[i].Chain = c
	}
	return out
}

// ChainsTouchingGroup returns every chain whose From or To is g. BlockFlow's
// best-deps assembly does not call it.
func (m *MultiChain) ChainsTouchingGroup(g model.GroupIndex) []*blockchain.BlockChain {
	out := make([]*blockchain.BlockChain, 0, 2*m.groups-1)
	for _, c := range m.chains {
		ci := c.ChainIndex()
		if ci.From == g || ci.To == g {
			out = append(out, c)
		}
	}
	return out
}

// NumHashes folds NumHashes over every chain in the grid (spec.md §4.4
// "Aggregations").
func (m *MultiChain) NumHashes() uint64 {
	var total uint64
	for _, c := range m.chains {
		total += c.NumHashes()
	}
	return total
}

// HeightedHeader pairs a header with the chain and height it was found at,
// the unit getHeightedBlockHeaders folds across chains.
type HeightedHeader struct {
	ChainIndex model.ChainIndex
	Height     uint64
	Hash       model.Hash
	Header     *model.BlockHeader
}

// GetHeightedBlockHeaders folds over every chain in the grid, returning every
// header whose timestamp falls in [tsFrom, tsTo) (spec.md §4.4).
func (m *MultiChain) GetHeightedBlockHeaders(tsFrom, tsTo uint64) ([]HeightedHeader, error) {
	var out []HeightedHeader
	for _, c := range m.chains {
		ci := c.ChainIndex()
		seen := make(map[model.Hash]struct{})
		for _, tip := range c.TipsByWeightDesc() {
			for n := tip; n != nil; n = n.Parent {
				if n.Timestamp < tsFrom {
					break
				}
				if _, dup := seen[n.Hash]; dup {
					continue
				}
				seen[n.Hash] = struct{}{}
				if n.Timestamp < tsTo {
					header, err := c.Header(n.Hash)
					if err != nil {
						return nil, errors.Wrapf(err, "header %s on chain %s", n.Hash, ci)
					}
					out = append(out, HeightedHeader{ChainIndex: ci, Height: n.Height, Hash: n.Hash, Header: header})
				}
			}
		}
	}
	return out, nil
}
