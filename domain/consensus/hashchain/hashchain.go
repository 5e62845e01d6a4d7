// Package hashchain implements the per-chain hash+weight+height index and
// tip set described in spec.md §4.1: HashChain. It is the bottom layer of
// the HashChain ⊂ HeaderChain ⊂ BlockChain tower (spec.md §9) -- plain Go
// struct embedding, since the only polymorphism this tree needs is across
// the G*G homogeneous chain instances.
package hashchain

import (
	"sort"
	"sync"

	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.HCHN)

// HashChain owns the hash -> TreeNode map, the tip set, a height -> hash
// roster, and an ordered (height, hash) index for range scans.
type HashChain struct {
	mtx sync.RWMutex

	nodes  map[model.Hash]*TreeNode
	tips   map[model.Hash]struct{}
	height map[uint64][]model.Hash // kept sorted by hash ascending

	genesisHash     model.Hash
	tipsPruneInterval uint64
	prunedHeight      uint64
	numHashes         uint64

	// sequence is bumped on every Add that inserts a new node.
	sequence uint64
}

// New creates a HashChain rooted at the given genesis hash/timestamp/target.
func New(genesisHash model.Hash, genesisTimestamp uint64, genesisTarget model.CompactTarget, tipsPruneInterval uint64) *HashChain {
	root := newRootNode(genesisHash, genesisTimestamp, genesisTarget)
	hc := &HashChain{
		nodes:             map[model.Hash]*TreeNode{genesisHash: root},
		tips:              map[model.Hash]struct{}{genesisHash: {}},
		height:            map[uint64][]model.Hash{0: {genesisHash}},
		genesisHash:       genesisHash,
		tipsPruneInterval: tipsPruneInterval,
		numHashes:         1,
	}
	return hc
}

// Sequence returns the current mutation counter. BlockFlow does not read
// it: best-deps assembly reads each chain once and never retries.
func (hc *HashChain) Sequence() uint64 {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	return hc.sequence
}

// Add creates a new node with the given parent, wiring child pointers and
// updating the tip set. Returns ErrMissingParent if parentHash is unknown.
func (hc *HashChain) Add(hash model.Hash, parentHash model.Hash, timestamp uint64, target model.CompactTarget) error {
	hc.mtx.Lock()
	defer hc.mtx.Unlock()

	if _, exists := hc.nodes[hash]; exists {
		return nil // idempotent: already known
	}

	parent, ok := hc.nodes[parentHash]
	if !ok {
		return errors.Wrapf(model.ErrMissingParent, "hash %s parent %s", hash, parentHash)
	}

	node := newChildNode(hash, parent, timestamp, target)
	hc.nodes[hash] = node
	parent.Children[hash] = node

	delete(hc.tips, parentHash)
	hc.tips[hash] = struct{}{}

	hc.insertHeightIndex(node.Height, hash)
	hc.numHashes++
	hc.sequence++

	hc.pruneTipsLocked()

	return nil
}

func (hc *HashChain) insertHeightIndex(height uint64, hash model.Hash) {
	bucket := hc.height[height]
	i := sort.Search(len(bucket), func(i int) bool { return !bucket[i].Less(hash) })
	bucket = append(bucket, model.Hash{})
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = hash
	hc.height[height] = bucket
}

// pruneTipsLocked drops tips whose height is stale relative to the best
// tip, bounding the size of the tip set (spec.md §4.1). Nodes themselves
// are never removed -- only their membership in hc.tips.
func (hc *HashChain) pruneTipsLocked() {
	best := hc.bestTipLocked()
	if best == nil {
		return
	}
	if best.Height <= hc.prunedHeight+hc.tipsPruneInterval {
		return
	}

	threshold := best.Height - hc.tipsPruneInterval
	pruned := 0
	for hash := range hc.tips {
		node := hc.nodes[hash]
		if node.Height < threshold && hash != best.Hash {
			delete(hc.tips, hash)
			pruned++
		}
	}
	if pruned > 0 {
		log.Debugf("pruned %d stale tips below height %d", pruned, threshold)
	}
	hc.prunedHeight = best.Height
}

// Tips returns a snapshot of the current tip hashes.
func (hc *HashChain) Tips() []model.Hash {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	out := make([]model.Hash, 0, len(hc.tips))
	for h := range hc.tips {
		out = append(out, h)
	}
	return out
}

// IsTip reports whether hash is currently a tip.
func (hc *HashChain) IsTip(hash model.Hash) bool {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	_, ok := hc.tips[hash]
	return ok
}

// BestTip returns the tip with maximum weight, ties broken by smaller hash
// (spec.md §3).
func (hc *HashChain) BestTip() *TreeNode {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	return hc.bestTipLocked()
}

func (hc *HashChain) bestTipLocked() *TreeNode {
	var best *TreeNode
	for hash := range hc.tips {
		node := hc.nodes[hash]
		if best == nil {
			best = node
			continue
		}
		cmp := node.Weight.Cmp(best.Weight)
		if cmp > 0 || (cmp == 0 && node.Hash.Less(best.Hash)) {
			best = node
		}
	}
	return best
}

// TipsByWeightDesc returns the current tips ordered from heaviest to
// lightest, ties broken by smaller hash. MultiChain.GetHeightedBlockHeaders
// walks back from these tips; BlockFlow only uses BestTip.
func (hc *HashChain) TipsByWeightDesc() []*TreeNode {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()

	out := make([]*TreeNode, 0, len(hc.tips))
	for h := range hc.tips {
		out = append(out, hc.nodes[h])
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Weight.Cmp(out[j].Weight)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Hash.Less(out[j].Hash)
	})
	return out
}

// Node returns the node for hash, if known.
func (hc *HashChain) Node(hash model.Hash) (*TreeNode, bool) {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	n, ok := hc.nodes[hash]
	return n, ok
}

// GetHeight returns the height of hash.
func (hc *HashChain) GetHeight(hash model.Hash) (uint64, bool) {
	n, ok := hc.Node(hash)
	if !ok {
		return 0, false
	}
	return n.Height, true
}

// GetWeight returns the cumulative weight of hash.
func (hc *HashChain) GetWeight(hash model.Hash) (model.Work, bool) {
	n, ok := hc.Node(hash)
	if !ok {
		return nil, false
	}
	return n.Weight, true
}

// NumHashes is the aggregate count of nodes ever added to this chain.
func (hc *HashChain) NumHashes() uint64 {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	return hc.numHashes
}

// GetPredecessor walks parents from hash while node.height > h, returning
// the ancestor at height h.
func (hc *HashChain) GetPredecessor(hash model.Hash, h uint64) (model.Hash, error) {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()

	node, ok := hc.nodes[hash]
	if !ok {
		return model.Hash{}, errors.Wrapf(model.ErrMissingBlock, "%s", hash)
	}
	for node.Height > h {
		if node.Parent == nil {
			return model.Hash{}, errors.Errorf("height %d is above genesis", h)
		}
		node = node.Parent
	}
	return node.Hash, nil
}

// ChainBack collects the inclusive path from hash back to height hUntil,
// ordered from hUntil to hash.
func (hc *HashChain) ChainBack(hash model.Hash, hUntil uint64) ([]model.Hash, error) {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()

	node, ok := hc.nodes[hash]
	if !ok {
		return nil, errors.Wrapf(model.ErrMissingBlock, "%s", hash)
	}
	if node.Height < hUntil {
		return nil, errors.Errorf("hash %s at height %d is below %d", hash, node.Height, hUntil)
	}

	var path []model.Hash
	for {
		path = append(path, node.Hash)
		if node.Height == hUntil {
			break
		}
		node = node.Parent
	}
	// reverse to hUntil..hash order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// GetHashesAfter enumerates descendants of locator in height order via BFS
// over child pointers, used to answer sync inventory requests.
func (hc *HashChain) GetHashesAfter(locator model.Hash, limit int) ([]model.Hash, error) {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()

	start, ok := hc.nodes[locator]
	if !ok {
		return nil, errors.Wrapf(model.ErrMissingBlock, "%s", locator)
	}

	var out []model.Hash
	queue := []*TreeNode{start}
	visited := map[model.Hash]struct{}{locator: {}}
	for len(queue) > 0 && (limit <= 0 || len(out) < limit) {
		current := queue[0]
		queue = queue[1:]

		children := make([]*TreeNode, 0, len(current.Children))
		for _, c := range current.Children {
			children = append(children, c)
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Hash.Less(children[j].Hash) })

		for _, c := range children {
			if _, seen := visited[c.Hash]; seen {
				continue
			}
			visited[c.Hash] = struct{}{}
			out = append(out, c.Hash)
			queue = append(queue, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// IsAncestorOf reports whether ancestor is an ancestor-or-equal of
// descendant, walking parent pointers. BlockFlow does not call it; its
// best-deps assembly runs no cross-chain consistency check.
func (hc *HashChain) IsAncestorOf(ancestor, descendant model.Hash) (bool, error) {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()

	descNode, ok := hc.nodes[descendant]
	if !ok {
		return false, errors.Wrapf(model.ErrMissingBlock, "%s", descendant)
	}
	ancNode, ok := hc.nodes[ancestor]
	if !ok {
		return false, errors.Wrapf(model.ErrMissingBlock, "%s", ancestor)
	}

	if ancNode.Height > descNode.Height {
		return false, nil
	}

	for node := descNode; node != nil; node = node.Parent {
		if node.Hash == ancestor {
			return true, nil
		}
		if node.Height <= ancNode.Height {
			break
		}
	}
	return false, nil
}

// GenesisHash returns the chain's genesis hash.
func (hc *HashChain) GenesisHash() model.Hash {
	return hc.genesisHash
}
