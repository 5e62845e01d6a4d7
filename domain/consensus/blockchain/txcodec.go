package blockchain

import (
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// encodeTx/decodeTx serialize model.Transaction using the protobuf wire
// primitives directly (varint and length-delimited records), standing in
// for a generated .pb.go message (no protoc invocation in this exercise).
// Field order mirrors model.Transaction and is fixed rather than
// tag-addressed, since both sides always agree on the schema version.
func encodeTx(tx *model.Transaction, buf []byte) []byte {
	buf = appendHash(buf, tx.Hash)

	buf = protowire.AppendVarint(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = appendHash(buf, in.TxHash)
		buf = protowire.AppendVarint(buf, uint64(in.OutputIndex))
	}

	buf = protowire.AppendVarint(buf, uint64(len(tx.FixedOutputs)))
	for _, out := range tx.FixedOutputs {
		buf = protowire.AppendVarint(buf, out.Amount)
		buf = protowire.AppendBytes(buf, []byte(out.LockupScript))
		buf = protowire.AppendVarint(buf, uint64(len(out.Tokens)))
		for id, amt := range out.Tokens {
			buf = appendHash(buf, id)
			buf = protowire.AppendVarint(buf, amt)
		}
	}

	buf = protowire.AppendBytes(buf, tx.Script)

	buf = protowire.AppendVarint(buf, uint64(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		buf = protowire.AppendBytes(buf, sig)
	}

	buf = protowire.AppendVarint(buf, tx.GasAmount)
	buf = protowire.AppendVarint(buf, tx.GasPrice)

	return buf
}

func decodeTx(r []byte) (*model.Transaction, []byte, error) {
	tx := &model.Transaction{}
	var err error

	tx.Hash, r, err = takeHash(r)
	if err != nil {
		return nil, nil, err
	}

	var n uint64
	n, r, err = takeVarint(r)
	if err != nil {
		return nil, nil, err
	}
	tx.Inputs = make([]model.AssetOutputRef, n)
	for i := range tx.Inputs {
		tx.Inputs[i].TxHash, r, err = takeHash(r)
		if err != nil {
			return nil, nil, err
		}
		var outIdx uint64
		outIdx, r, err = takeVarint(r)
		if err != nil {
			return nil, nil, err
		}
		tx.Inputs[i].OutputIndex = uint32(outIdx)
	}

	n, r, err = takeVarint(r)
	if err != nil {
		return nil, nil, err
	}
	tx.FixedOutputs = make([]model.TxOutput, n)
	for i := range tx.FixedOutputs {
		tx.FixedOutputs[i].Amount, r, err = takeVarint(r)
		if err != nil {
			return nil, nil, err
		}
		var lockup []byte
		lockup, r, err = takeBytes(r)
		if err != nil {
			return nil, nil, err
		}
		tx.FixedOutputs[i].LockupScript = model.LockupScript(lockup)

		var tokenCount uint64
		tokenCount, r, err = takeVarint(r)
		if err != nil {
			return nil, nil, err
		}
		if tokenCount > 0 {
			tx.FixedOutputs[i].Tokens = make(map[model.TokenID]model.Amount, tokenCount)
			for j := uint64(0); j < tokenCount; j++ {
				var id model.Hash
				id, r, err = takeHash(r)
				if err != nil {
					return nil, nil, err
				}
				var amt uint64
				amt, r, err = takeVarint(r)
				if err != nil {
					return nil, nil, err
				}
				tx.FixedOutputs[i].Tokens[id] = amt
			}
		}
	}

	var script []byte
	script, r, err = takeBytes(r)
	if err != nil {
		return nil, nil, err
	}
	tx.Script = script

	n, r, err = takeVarint(r)
	if err != nil {
		return nil, nil, err
	}
	tx.Signatures = make([][]byte, n)
	for i := range tx.Signatures {
		tx.Signatures[i], r, err = takeBytes(r)
		if err != nil {
			return nil, nil, err
		}
	}

	tx.GasAmount, r, err = takeVarint(r)
	if err != nil {
		return nil, nil, err
	}
	tx.GasPrice, r, err = takeVarint(r)
	if err != nil {
		return nil, nil, err
	}

	return tx, r, nil
}

func appendHash(buf []byte, h model.Hash) []byte {
	return append(buf, h[:]...)
}

func takeHash(r []byte) (model.Hash, []byte, error) {
	if len(r) < model.HashSize {
		return model.Hash{}, nil, errors.New("txcodec: truncated hash")
	}
	return model.HashFromSlice(r[:model.HashSize]), r[model.HashSize:], nil
}

func takeVarint(r []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(r)
	if n < 0 {
		return 0, nil, errors.New("txcodec: truncated varint")
	}
	return v, r[n:], nil
}

func takeBytes(r []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(r)
	if n < 0 {
		return nil, nil, errors.New("txcodec: truncated byte slice")
	}
	return v, r[n:], nil
}
