// Package blocktemplatebuilder implements spec.md §4.8: assembling a
// BlockTemplate from BlockFlow's best-deps view, the owning group's
// MemPool, and the target HeaderChain's next difficulty, grounded on the
// BlockTemplateBuilder.GetBlockTemplate shape in
// domain/miningmanager/model/interface_blocktemplatebuilder.go.
package blocktemplatebuilder

import (
	"github.com/blockflow/flowd/domain/consensus/blockflow"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
	"github.com/blockflow/flowd/domain/mempool"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.BTPL)

// Config carries the per-process knobs "mempool.txmaxnumberperblock" and
// "mining.blockreward".
type Config struct {
	TxMaxNumberPerBlock int
	BlockReward         model.Amount
}

// BlockTemplateBuilder assembles block templates for the groups this
// process mines.
type BlockTemplateBuilder struct {
	mc      *multichain.MultiChain
	flow    *blockflow.BlockFlow
	mempool func(group model.GroupIndex) *mempool.MemPool
	miner   func(group model.GroupIndex) (model.LockupScript, error)
	config  Config
}

// New wires a BlockTemplateBuilder. mempoolFor and minerFor resolve the
// per-group MemPool and payout address collaborators.
func New(mc *multichain.MultiChain, flow *blockflow.BlockFlow,
	mempoolFor func(model.GroupIndex) *mempool.MemPool,
	minerFor func(model.GroupIndex) (model.LockupScript, error),
	config Config) *BlockTemplateBuilder {

	return &BlockTemplateBuilder{mc: mc, flow: flow, mempool: mempoolFor, miner: minerFor, config: config}
}

// Build assembles a template for chainIndex (spec.md §4.8 steps 1-7).
func (b *BlockTemplateBuilder) Build(chainIndex model.ChainIndex, now uint64) (*model.Block, error) {
	deps, err := b.flow.GetBestDeps(chainIndex.From)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling deps for group %d", chainIndex.From)
	}
	parent := deps[len(deps)-1]

	bc, err := b.mc.GetBlockChain(chainIndex)
	if err != nil {
		return nil, err
	}

	worldState, err := bc.WorldStateAt(parent)
	if err != nil {
		return nil, errors.Wrapf(err, "loading world state at parent %s", parent)
	}

	mp := b.mempool(chainIndex.From)
	limit := b.config.TxMaxNumberPerBlock - 1 // reserve one slot for the coinbase
	if limit < 0 {
		limit = 0
	}
	candidates, err := mp.ExtractReadyTxs(worldState, limit)
	if err != nil {
		return nil, errors.Wrap(err, "extracting ready transactions")
	}

	payoutScript, err := b.miner(chainIndex.To)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving miner for group %d", chainIndex.To)
	}
	coinbase := buildCoinbase(payoutScript, b.config.BlockReward, candidates)

	target, err := bc.NextTargetAfter(parent)
	if err != nil {
		return nil, errors.Wrapf(err, "computing next target after %s", parent)
	}

	parentNode, ok := bc.Node(parent)
	if !ok {
		return nil, errors.Wrapf(model.ErrMissingParent, "%s", parent)
	}
	timestamp := parentNode.Timestamp + 1
	if now > timestamp {
		timestamp = now
	}

	txs := append(append([]*model.Transaction{}, candidates...), coinbase)

	header := model.BlockHeader{
		ChainIndex: chainIndex,
		Deps:       deps,
		TxsRoot:    txsRoot(txs),
		Timestamp:  timestamp,
		Target:     target,
	}

	log.Debugf("built template for chain %s: %d user txs, parent %s", chainIndex, len(candidates), parent)
	return &model.Block{Header: header, Transactions: txs}, nil
}

// buildCoinbase pays payoutScript the block reward plus the sum of
// candidate fees (spec.md §4.8 step 5).
func buildCoinbase(payoutScript model.LockupScript, reward model.Amount, candidates []*model.Transaction) *model.Transaction {
	var fees model.Amount
	for _, tx := range candidates {
		fees += tx.Fee()
	}

	return &model.Transaction{
		FixedOutputs: []model.TxOutput{{Amount: reward + fees, LockupScript: payoutScript}},
	}
}

// txsRoot is a placeholder commitment over the template's transactions;
// WorldState/TrieStorage collaborators define the real hashing scheme, so
// this only needs to be a deterministic function of tx identity for the
// template to be self-consistent before a miner fills in the nonce.
func txsRoot(txs []*model.Transaction) model.Hash {
	var root model.Hash
	for _, tx := range txs {
		for i := range root {
			root[i] ^= tx.Hash[i]
		}
	}
	return root
}
