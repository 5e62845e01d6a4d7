package txindexes

import (
	"testing"

	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
)

func hashFromByte(b byte) model.Hash {
	var h model.Hash
	h[len(h)-1] = b
	return h
}

func TestAddIndexesInputsAndOutputs(t *testing.T) {
	ti := New()
	ref := model.AssetOutputRef{TxHash: hashFromByte(1), OutputIndex: 0}
	tx := &model.Transaction{
		Hash:         hashFromByte(2),
		Inputs:       []model.AssetOutputRef{ref},
		FixedOutputs: []model.TxOutput{{Amount: 100, LockupScript: "alice"}},
	}

	ti.Add(tx)

	if !ti.IsSpent(ref) {
		t.Fatal("expected input ref to be marked spent")
	}

	outRef := model.AssetOutputRef{TxHash: tx.Hash, OutputIndex: 0}
	out, err := ti.GetUTXO(outRef)
	if err != nil {
		t.Fatalf("GetUTXO: %v", err)
	}
	if out.Amount != 100 {
		t.Fatalf("expected amount 100, got %d", out.Amount)
	}

	utxos := ti.UTXOsForAddress("alice")
	if len(utxos) != 1 || utxos[0] != outRef {
		t.Fatalf("expected address index to contain %+v, got %+v", outRef, utxos)
	}
}

func TestGetUTXOSpentTakesPrecedenceOverNotFound(t *testing.T) {
	ti := New()
	ref := model.AssetOutputRef{TxHash: hashFromByte(9), OutputIndex: 3}
	tx := &model.Transaction{Hash: hashFromByte(1), Inputs: []model.AssetOutputRef{ref}}
	ti.Add(tx)

	_, err := ti.GetUTXO(ref)
	if !errors.Is(err, model.ErrOutputSpent) {
		t.Fatalf("expected ErrOutputSpent, got %v", err)
	}
}

func TestGetUTXOUnknownReturnsNotFound(t *testing.T) {
	ti := New()
	_, err := ti.GetUTXO(model.AssetOutputRef{TxHash: hashFromByte(5)})
	if !errors.Is(err, model.ErrOutputNotFound) {
		t.Fatalf("expected ErrOutputNotFound, got %v", err)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	ti := New()
	tx := &model.Transaction{
		Hash:         hashFromByte(1),
		FixedOutputs: []model.TxOutput{{Amount: 50, LockupScript: "bob"}},
	}
	ti.Add(tx)
	ti.Add(tx)

	if len(ti.UTXOsForAddress("bob")) != 1 {
		t.Fatalf("expected exactly one indexed output after duplicate Add")
	}
}

func TestRemoveIsIdempotentAndClearsIndexes(t *testing.T) {
	ti := New()
	ref := model.AssetOutputRef{TxHash: hashFromByte(1), OutputIndex: 0}
	tx := &model.Transaction{
		Hash:         hashFromByte(2),
		Inputs:       []model.AssetOutputRef{ref},
		FixedOutputs: []model.TxOutput{{Amount: 10, LockupScript: "carol"}},
	}
	ti.Add(tx)

	ti.Remove(tx)
	ti.Remove(tx) // idempotent: no panic, no error path to observe

	if ti.IsSpent(ref) {
		t.Fatal("expected input ref to be un-marked after remove")
	}
	if len(ti.UTXOsForAddress("carol")) != 0 {
		t.Fatal("expected address index entry removed")
	}
}
