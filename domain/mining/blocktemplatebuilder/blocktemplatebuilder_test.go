package blocktemplatebuilder

import (
	"path/filepath"
	"testing"

	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/blockflow"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
	"github.com/blockflow/flowd/domain/mempool"
)

type fakeWorldState struct{ root model.Hash }

func (s fakeWorldState) ContainsAllInputs(tx *model.Transaction) (bool, error) { return true, nil }
func (s fakeWorldState) Apply(tx *model.Transaction) (model.WorldState, error) {
	var next model.Hash
	for i := range next {
		next[i] = s.root[i] ^ tx.Hash[i]
	}
	return fakeWorldState{root: next}, nil
}
func (s fakeWorldState) Root() model.Hash { return s.root }

func testParams() headerchain.DifficultyParams {
	return headerchain.DifficultyParams{
		MedianTimeInterval: 2,
		ExpectedTimeSpan:   64_000,
		TimeSpanMin:        16_000,
		TimeSpanMax:        256_000,
	}
}

func newTestSetup(t *testing.T, groups int) (*BlockTemplateBuilder, *mempool.MemPool) {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	chains := make([]*blockchain.BlockChain, 0, groups*groups)
	for from := 0; from < groups; from++ {
		for to := 0; to < groups; to++ {
			ci := model.ChainIndex{From: model.GroupIndex(from), To: model.GroupIndex(to)}
			name := ci.String()
			var genesisHash model.Hash
			genesisHash[0] = byte(from)
			genesisHash[1] = byte(to)
			const target model.CompactTarget = 0x1e00ffff
			genesisBlock := &model.Block{
				Header:       model.BlockHeader{ChainIndex: ci, Deps: []model.Hash{model.ZeroHash}, Target: target},
				Transactions: []*model.Transaction{{Hash: genesisHash}},
			}
			bc := blockchain.New(ci,
				kv.Bucket("bodies-"+name), kv.Bucket("headers-"+name), kv.Bucket("state-"+name),
				16, genesisHash, genesisBlock, fakeWorldState{root: model.ZeroHash},
				1000, testParams())
			chains = append(chains, bc)
		}
	}

	mc, err := multichain.New(groups, chains)
	if err != nil {
		t.Fatalf("multichain.New: %v", err)
	}

	owned := model.BrokerConfig{Groups: groups, BrokerNum: 1, BrokerID: 0}
	flow := blockflow.New(mc, owned)

	mempools := make(map[model.GroupIndex]*mempool.MemPool)
	for g := 0; g < groups; g++ {
		mempools[model.GroupIndex(g)] = mempool.New(model.GroupIndex(g), mempool.Config{
			SharedPoolCapacity:  100,
			PendingPoolCapacity: 100,
			CleanFrequency:      1000,
		})
	}

	builder := New(mc, flow,
		func(g model.GroupIndex) *mempool.MemPool { return mempools[g] },
		func(g model.GroupIndex) (model.LockupScript, error) { return model.LockupScript("miner"), nil },
		Config{TxMaxNumberPerBlock: 10, BlockReward: 50})

	return builder, mempools[0]
}

func TestBuildAssemblesTemplateWithCoinbase(t *testing.T) {
	builder, mp := newTestSetup(t, 2)

	var txHash model.Hash
	txHash[0] = 0xAA
	tx := &model.Transaction{Hash: txHash, GasAmount: 2, GasPrice: 3}
	if err := mp.Add(tx, 100, fakeWorldState{root: model.ZeroHash}); err != nil {
		t.Fatalf("mempool Add: %v", err)
	}

	ci := model.ChainIndex{From: 0, To: 0}
	block, err := builder.Build(ci, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(block.Transactions) != 2 {
		t.Fatalf("expected 1 user tx + coinbase, got %d transactions", len(block.Transactions))
	}

	coinbase := block.Coinbase()
	wantAmount := model.Amount(50 + tx.Fee())
	if coinbase.FixedOutputs[0].Amount != wantAmount {
		t.Fatalf("expected coinbase amount %d, got %d", wantAmount, coinbase.FixedOutputs[0].Amount)
	}
	if coinbase.FixedOutputs[0].LockupScript != "miner" {
		t.Fatalf("expected coinbase to pay 'miner', got %q", coinbase.FixedOutputs[0].LockupScript)
	}

	want := model.DepSlotCount(2)
	if len(block.Header.Deps) != want {
		t.Fatalf("expected %d dep slots, got %d", want, len(block.Header.Deps))
	}
}

func TestBuildRespectsTxMaxNumberPerBlock(t *testing.T) {
	builder, mp := newTestSetup(t, 2)
	builder.config.TxMaxNumberPerBlock = 2 // 1 user tx + coinbase

	for i := byte(1); i <= 3; i++ {
		var h model.Hash
		h[0] = i
		if err := mp.Add(&model.Transaction{Hash: h}, uint64(i), fakeWorldState{root: model.ZeroHash}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	ci := model.ChainIndex{From: 0, To: 0}
	block, err := builder.Build(ci, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(block.UserTransactions()) != 1 {
		t.Fatalf("expected exactly 1 user tx under the cap, got %d", len(block.UserTransactions()))
	}
}
