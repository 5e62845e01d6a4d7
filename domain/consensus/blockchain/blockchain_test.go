package blockchain

import (
	"path/filepath"
	"testing"

	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
)

// fakeWorldState is a minimal model.WorldState stand-in: its root hash is
// the previous root XORed with the applied transaction's hash, so the root
// changes with every applied transaction. XOR is order-independent, so
// different execution orders of the same transactions give the same root.
type fakeWorldState struct {
	root Hash
}

type Hash = model.Hash

func (s fakeWorldState) ContainsAllInputs(tx *model.Transaction) (bool, error) {
	return true, nil
}

func (s fakeWorldState) Apply(tx *model.Transaction) (model.WorldState, error) {
	var next Hash
	for i := range next {
		next[i] = s.root[i] ^ tx.Hash[i]
	}
	return fakeWorldState{root: next}, nil
}

func (s fakeWorldState) Root() model.Hash {
	return s.root
}

func hashFromByte(b byte) model.Hash {
	var h model.Hash
	h[len(h)-1] = b
	return h
}

func testParams() headerchain.DifficultyParams {
	return headerchain.DifficultyParams{
		MedianTimeInterval: 2,
		ExpectedTimeSpan:   64_000,
		TimeSpanMin:        16_000,
		TimeSpanMax:        256_000,
	}
}

func newTestChain(t *testing.T) (*BlockChain, *kvstore.Store) {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	chainIndex := model.ChainIndex{From: 0, To: 0}
	genesisHash := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff
	genesisHeader := model.BlockHeader{
		ChainIndex: chainIndex,
		Deps:       []model.Hash{model.ZeroHash},
		Target:     target,
	}
	genesisBlock := &model.Block{
		Header:       genesisHeader,
		Transactions: []*model.Transaction{{Hash: hashFromByte(0xFF)}}, // coinbase only
	}

	bc := New(chainIndex,
		kv.Bucket("block-bodies"), kv.Bucket("headers"), kv.Bucket("block-state"),
		16, genesisHash, genesisBlock, fakeWorldState{root: model.ZeroHash},
		1000, testParams())

	return bc, kv
}

func makeBlock(chainIndex model.ChainIndex, parent model.Hash, target model.CompactTarget, timestamp uint64, userTxHashes ...byte) (model.Hash, *model.Block) {
	txs := make([]*model.Transaction, 0, len(userTxHashes)+1)
	for _, b := range userTxHashes {
		txs = append(txs, &model.Transaction{Hash: hashFromByte(b)})
	}
	txs = append(txs, &model.Transaction{Hash: hashFromByte(0xC0)}) // coinbase

	header := model.BlockHeader{
		ChainIndex: chainIndex,
		Deps:       []model.Hash{parent},
		Timestamp:  timestamp,
		Target:     target,
	}
	block := &model.Block{Header: header, Transactions: txs}

	var hash model.Hash
	hash[0] = parent[0] + 1
	copy(hash[1:], parent[1:])
	return hash, block
}

func TestAddRejectsWrongChainIndex(t *testing.T) {
	bc, kv := newTestChain(t)

	wrongIndex := model.ChainIndex{From: 1, To: 2}
	hash, block := makeBlock(wrongIndex, hashFromByte(0), 0x1e00ffff, 1000, 0x01)

	if err := bc.Add(hash, block, kv); err == nil {
		t.Fatal("expected error for mismatched chain index, got nil")
	}
}

func TestAddRejectsMissingParentState(t *testing.T) {
	bc, kv := newTestChain(t)

	chainIndex := model.ChainIndex{From: 0, To: 0}
	unknownParent := hashFromByte(0x77)
	hash, block := makeBlock(chainIndex, unknownParent, 0x1e00ffff, 1000, 0x01)

	if err := bc.Add(hash, block, kv); err == nil {
		t.Fatal("expected error for unknown parent world state, got nil")
	}
}

func TestAddPersistsBlockAndAdvancesWorldState(t *testing.T) {
	bc, kv := newTestChain(t)

	chainIndex := model.ChainIndex{From: 0, To: 0}
	genesisHash := hashFromByte(0)

	target, err := bc.NextTargetAfter(genesisHash)
	if err != nil {
		t.Fatalf("NextTargetAfter: %v", err)
	}

	hash, block := makeBlock(chainIndex, genesisHash, target, 1000, 0x01, 0x02)

	if err := bc.Add(hash, block, kv); err != nil {
		t.Fatalf("Add: %v", err)
	}

	gotTxs, err := bc.Block(hash)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if len(gotTxs) != len(block.Transactions) {
		t.Fatalf("expected %d stored transactions, got %d", len(block.Transactions), len(gotTxs))
	}

	state, err := bc.BlockState(hash)
	if err != nil {
		t.Fatalf("BlockState: %v", err)
	}
	if state.Height != 1 {
		t.Fatalf("expected height 1, got %d", state.Height)
	}

	newState, err := bc.WorldStateAt(hash)
	if err != nil {
		t.Fatalf("WorldStateAt: %v", err)
	}
	if newState.Root() == (model.Hash{}) {
		t.Fatal("expected world state root to advance past zero hash")
	}
	if newState.Root() != state.WorldStateRoot {
		t.Fatal("expected cached world state root to match persisted block state root")
	}
}

func TestAddIsIdempotentAcrossHeaderChain(t *testing.T) {
	bc, kv := newTestChain(t)

	chainIndex := model.ChainIndex{From: 0, To: 0}
	genesisHash := hashFromByte(0)
	target, _ := bc.NextTargetAfter(genesisHash)
	hash, block := makeBlock(chainIndex, genesisHash, target, 1000, 0x01)

	if err := bc.Add(hash, block, kv); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := bc.Add(hash, block, kv); err != nil {
		t.Fatalf("second Add (idempotent) should not error: %v", err)
	}
}
