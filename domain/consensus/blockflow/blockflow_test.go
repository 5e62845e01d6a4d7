package blockflow

import (
	"path/filepath"
	"testing"

	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
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

func newGridChain(t *testing.T, kv *kvstore.Store, ci model.ChainIndex) *blockchain.BlockChain {
	t.Helper()
	name := ci.String()
	var genesisHash model.Hash
	genesisHash[0] = byte(ci.From)
	genesisHash[1] = byte(ci.To)
	const target model.CompactTarget = 0x1e00ffff

	genesisBlock := &model.Block{
		Header:       model.BlockHeader{ChainIndex: ci, Deps: []model.Hash{model.ZeroHash}, Target: target},
		Transactions: []*model.Transaction{{Hash: genesisHash}},
	}

	return blockchain.New(ci,
		kv.Bucket("bodies-"+name), kv.Bucket("headers-"+name), kv.Bucket("state-"+name),
		16, genesisHash, genesisBlock, fakeWorldState{root: model.ZeroHash},
		1000, testParams())
}

func newTestFlow(t *testing.T, groups int) (*BlockFlow, *multichain.MultiChain, *kvstore.Store) {
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
			chains = append(chains, newGridChain(t, kv, ci))
		}
	}

	mc, err := multichain.New(groups, chains)
	if err != nil {
		t.Fatalf("multichain.New: %v", err)
	}

	owned := model.BrokerConfig{Groups: groups, BrokerNum: 1, BrokerID: 0}
	return New(mc, owned), mc, kv
}

func TestGetBestDepsReturnsFullVectorAtGenesis(t *testing.T) {
	bf, _, _ := newTestFlow(t, 3)

	deps, err := bf.GetBestDeps(1)
	if err != nil {
		t.Fatalf("GetBestDeps: %v", err)
	}
	want := model.DepSlotCount(3)
	if len(deps) != want {
		t.Fatalf("expected %d dep slots, got %d", want, len(deps))
	}

	// direct parent slot must be the intra-group chain's genesis.
	hub, err := mcChain(t, bf, model.ChainIndex{From: 1, To: 1})
	if err != nil {
		t.Fatalf("chain lookup: %v", err)
	}
	if deps[want-1] != hub.GenesisHash() {
		t.Fatalf("expected direct parent slot to be hub genesis %s, got %s", hub.GenesisHash(), deps[want-1])
	}
}

func mcChain(t *testing.T, bf *BlockFlow, ci model.ChainIndex) (*blockchain.BlockChain, error) {
	t.Helper()
	return bf.chain(ci)
}

func TestGetBestDepsTracksAdvancedTip(t *testing.T) {
	bf, mc, kv := newTestFlow(t, 2)

	hubIndex := model.ChainIndex{From: 0, To: 0}
	hub, err := mc.GetBlockChain(hubIndex)
	if err != nil {
		t.Fatalf("GetBlockChain: %v", err)
	}

	genesisHash := hub.GenesisHash()
	target, err := hub.NextTargetAfter(genesisHash)
	if err != nil {
		t.Fatalf("NextTargetAfter: %v", err)
	}

	var childHash model.Hash
	childHash[0] = 1
	childHash[31] = 1
	header := model.BlockHeader{ChainIndex: hubIndex, Deps: []model.Hash{genesisHash}, Timestamp: 1000, Target: target}
	block := &model.Block{Header: header, Transactions: []*model.Transaction{{Hash: childHash}}}

	if err := hub.Add(childHash, block, kv); err != nil {
		t.Fatalf("Add: %v", err)
	}

	deps, err := bf.GetBestDeps(0)
	if err != nil {
		t.Fatalf("GetBestDeps: %v", err)
	}
	if deps[len(deps)-1] != childHash {
		t.Fatalf("expected direct parent slot to track the new heavier tip %s, got %s", childHash, deps[len(deps)-1])
	}
}

func TestGetSyncLocatorsOnlyCoversOwnedChains(t *testing.T) {
	bf, _, _ := newTestFlow(t, 2)

	locators, err := bf.GetSyncLocators()
	if err != nil {
		t.Fatalf("GetSyncLocators: %v", err)
	}
	// BrokerID 0 of 1 broker owns every group, hence every chain.
	if len(locators) != 4 {
		t.Fatalf("expected locators for all 4 chains, got %d", len(locators))
	}
	for ci, l := range locators {
		if len(l) == 0 {
			t.Fatalf("expected non-empty locator list for chain %s", ci)
		}
	}
}

func TestGetIntraCliqueSyncHashesIncludesGenesis(t *testing.T) {
	bf, _, _ := newTestFlow(t, 2)
	owned := model.BrokerConfig{Groups: 2, BrokerNum: 1, BrokerID: 0}

	hashes, err := bf.GetIntraCliqueSyncHashes(owned)
	if err != nil {
		t.Fatalf("GetIntraCliqueSyncHashes: %v", err)
	}
	if len(hashes) != 4 {
		t.Fatalf("expected 4 chains in intra-clique view, got %d", len(hashes))
	}
	for ci, hs := range hashes {
		if len(hs) == 0 {
			t.Fatalf("expected at least the genesis hash for chain %s", ci)
		}
	}
}
