package model

// AssetOutputRef references one output of a previously-seen transaction.
// ContractOutputRef is a disjoint reference kind (spec.md §3) and is never
// equal to an AssetOutputRef even if their byte patterns coincide, since
// callers keep the two in separate maps.
type AssetOutputRef struct {
	TxHash      TxHash
	OutputIndex uint32
}

// ContractOutputRef references a contract-owned output. Disjoint from
// AssetOutputRef (spec.md §3); the core never resolves these itself --
// contract state lives behind the WorldState collaborator.
type ContractOutputRef struct {
	TxHash      TxHash
	OutputIndex uint32
}

// TxOutput is a UTXO-style output.
type TxOutput struct {
	Amount        Amount
	LockupScript  LockupScript
	Tokens        map[TokenID]Amount
}

// Amount is a u256 amount, represented with the precision the core actually
// needs (it never performs full 256-bit arithmetic on amounts, only
// comparisons and additions that fit in 128 bits in practice).
type Amount = uint64

// TokenID identifies a token type distinct from the native asset.
type TokenID = Hash

// LockupScript is an opaque, comparable output-ownership predicate. The
// core treats it as a byte string; script/VM execution is the out-of-scope
// collaborator named in spec.md §1.
type LockupScript string

// Script is an opaque, unexecuted contract script body.
type Script []byte

// Transaction is the unsigned body plus signatures (spec.md §3). Inputs
// reference prior outputs; FixedOutputs are the outputs this tx creates;
// Script, if present, is executed by the external script/VM collaborator.
type Transaction struct {
	Hash          TxHash
	Inputs        []AssetOutputRef
	FixedOutputs  []TxOutput
	Script        Script
	Signatures    [][]byte
	GasAmount     uint64
	GasPrice      uint64
}

// TxTemplate is the unsigned body plus signatures, without the
// executed-outputs tail a fully-applied transaction would carry (spec.md
// §3). It is what a miner assembles before execution determines the final
// output set.
type TxTemplate struct {
	Inputs       []AssetOutputRef
	FixedOutputs []TxOutput
	Script       Script
	Signatures   [][]byte
}

// HasScript reports whether the transaction carries contract script code,
// relevant to the execution-order shuffle in spec.md §4.8.
func (t *Transaction) HasScript() bool {
	return len(t.Script) > 0
}

// Fee returns the amount this transaction pays its miner, computed as
// gasAmount * gasPrice -- the core never needs to resolve input/output
// balances itself since that's WorldState.Apply's job.
func (t *Transaction) Fee() uint64 {
	return t.GasAmount * t.GasPrice
}
