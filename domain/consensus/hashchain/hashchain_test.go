package hashchain

import (
	"math/big"
	"testing"

	"github.com/blockflow/flowd/domain/consensus/model"
)

func hashFromByte(b byte) model.Hash {
	var h model.Hash
	h[len(h)-1] = b
	return h
}

// TestSingleChainGrowth exercises spec.md §8 scenario 1: a single block
// added on top of genesis has height 1 and weight genesis+work(target).
func TestSingleChainGrowth(t *testing.T) {
	genesis := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff

	hc := New(genesis, 0, target, 100)

	b1 := hashFromByte(1)
	if err := hc.Add(b1, genesis, 1000, target); err != nil {
		t.Fatalf("Add: %v", err)
	}

	height, ok := hc.GetHeight(b1)
	if !ok || height != 1 {
		t.Fatalf("expected height 1, got %d (ok=%v)", height, ok)
	}

	genWeight, _ := hc.GetWeight(genesis)
	wantWeight := new(big.Int).Add(genWeight, model.TargetToWork(target))

	gotWeight, _ := hc.GetWeight(b1)
	if gotWeight.Cmp(wantWeight) != 0 {
		t.Fatalf("expected weight %s, got %s", wantWeight, gotWeight)
	}

	tips := hc.Tips()
	if len(tips) != 1 || tips[0] != b1 {
		t.Fatalf("expected tips=[%s], got %v", b1, tips)
	}

	if hc.IsTip(genesis) {
		t.Fatal("genesis should no longer be a tip")
	}

	best := hc.BestTip()
	if best.Hash != b1 {
		t.Fatalf("expected best tip %s, got %s", b1, best.Hash)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	genesis := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff
	hc := New(genesis, 0, target, 100)

	b1 := hashFromByte(1)
	if err := hc.Add(b1, genesis, 1000, target); err != nil {
		t.Fatalf("Add: %v", err)
	}
	numBefore := hc.NumHashes()
	if err := hc.Add(b1, genesis, 1000, target); err != nil {
		t.Fatalf("Add (repeat): %v", err)
	}
	if hc.NumHashes() != numBefore {
		t.Fatalf("expected numHashes unchanged, got %d -> %d", numBefore, hc.NumHashes())
	}
}

func TestAddMissingParent(t *testing.T) {
	genesis := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff
	hc := New(genesis, 0, target, 100)

	orphan := hashFromByte(9)
	unknownParent := hashFromByte(8)
	err := hc.Add(orphan, unknownParent, 1000, target)
	if err == nil {
		t.Fatal("expected error for missing parent")
	}
}

func TestBestTipTieBreakByHash(t *testing.T) {
	genesis := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff
	hc := New(genesis, 0, target, 100)

	a := hashFromByte(2)
	b := hashFromByte(1) // lexicographically smaller
	if err := hc.Add(a, genesis, 1000, target); err != nil {
		t.Fatal(err)
	}
	if err := hc.Add(b, genesis, 1000, target); err != nil {
		t.Fatal(err)
	}

	best := hc.BestTip()
	if best.Hash != b {
		t.Fatalf("expected tie-break to pick smaller hash %s, got %s", b, best.Hash)
	}
}

func TestIsAncestorOf(t *testing.T) {
	genesis := hashFromByte(0)
	const target model.CompactTarget = 0x1e00ffff
	hc := New(genesis, 0, target, 100)

	b1 := hashFromByte(1)
	b2 := hashFromByte(2)
	if err := hc.Add(b1, genesis, 1000, target); err != nil {
		t.Fatal(err)
	}
	if err := hc.Add(b2, b1, 2000, target); err != nil {
		t.Fatal(err)
	}

	ok, err := hc.IsAncestorOf(genesis, b2)
	if err != nil || !ok {
		t.Fatalf("expected genesis to be ancestor of b2, got %v err=%v", ok, err)
	}

	ok, err = hc.IsAncestorOf(b2, genesis)
	if err != nil || ok {
		t.Fatalf("expected b2 to not be ancestor of genesis, got %v err=%v", ok, err)
	}
}
