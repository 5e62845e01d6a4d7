package execorder

import (
	"reflect"
	"testing"

	"github.com/blockflow/flowd/domain/consensus/model"
)

func hashFromByte(b byte) model.Hash {
	var h model.Hash
	h[len(h)-1] = b
	return h
}

func tx(hashByte byte, scripted bool) *model.Transaction {
	t := &model.Transaction{Hash: hashFromByte(hashByte)}
	if scripted {
		t.Script = []byte{0x01}
	}
	return t
}

// TestExecutionOrderDeterminism exercises spec.md §8 scenario 5: the same
// inputs always produce the same permutation, scripted txs first, plain
// txs preserving original order after them.
func TestExecutionOrderDeterminism(t *testing.T) {
	parent := hashFromByte(0x01)
	txs := []*model.Transaction{
		tx(0xA1, true),  // scripted A
		tx(0xB2, false), // plain B
		tx(0xC3, true),  // scripted C
		tx(0xD4, true),  // scripted D
	}

	order1 := NonCoinbaseExecutionOrder(parent, txs)
	order2 := NonCoinbaseExecutionOrder(parent, txs)

	if !reflect.DeepEqual(order1, order2) {
		t.Fatalf("expected deterministic order, got %v then %v", order1, order2)
	}

	if len(order1) != len(txs) {
		t.Fatalf("expected permutation of all %d txs, got %d", len(txs), len(order1))
	}

	// index 1 (plain B) must come after every scripted index.
	posOfPlain := -1
	for pos, idx := range order1 {
		if idx == 1 {
			posOfPlain = pos
		}
	}
	for pos, idx := range order1 {
		if idx != 1 && pos > posOfPlain {
			t.Fatalf("expected all scripted txs before plain tx, but found scripted index %d at position %d after plain at %d", idx, pos, posOfPlain)
		}
	}
}

func TestExecutionOrderNoScriptsPreservesOrder(t *testing.T) {
	parent := hashFromByte(0x01)
	txs := []*model.Transaction{
		tx(0xA1, false),
		tx(0xB2, false),
		tx(0xC3, false),
	}

	order := NonCoinbaseExecutionOrder(parent, txs)
	want := []int{0, 1, 2}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected original order %v, got %v", want, order)
	}
}
