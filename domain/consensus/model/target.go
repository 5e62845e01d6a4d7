package model

import "math/big"

// Work is cumulative proof-of-work, measured in the same units TargetToWork
// produces: enough that big.Int arithmetic (Add, Cmp) is all a chain needs
// to track and compare tip weight (spec.md §3).
type Work = *big.Int

// CompactTarget is the compact (nBits-style) representation of a 256-bit
// proof-of-work target: one exponent byte plus a 3-byte mantissa, the same
// encoding btcsuite-derived chains use for header.Bits.
type CompactTarget uint32

// bigOne is reused across conversions to avoid repeated allocation, mirroring
// dagconfig's bigOne package var.
var bigOne = big.NewInt(1)

// CompactToBig expands a CompactTarget into the big.Int it represents.
func CompactToBig(compact CompactTarget) *big.Int {
	mantissa := uint(compact & 0x007fffff)
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact collapses a big.Int into its compact representation.
func BigToCompact(n *big.Int) CompactTarget {
	if n.Sign() == 0 {
		return 0
	}

	var isNegative bool
	work := n
	if n.Sign() < 0 {
		isNegative = true
		work = new(big.Int).Neg(n)
	}

	exponent := uint((work.BitLen() + 7) / 8)
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(work.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		shifted := new(big.Int).Rsh(work, 8*(exponent-3))
		mantissa = uint32(shifted.Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := CompactTarget(uint32(exponent)<<24 | mantissa)
	if isNegative {
		compact |= 0x00800000
	}
	return compact
}

// TargetToWork converts a block's target into the amount of cumulative
// proof-of-work it represents: work = 2^256 / (target + 1), the standard
// difficulty-to-work conversion (spec.md §3, "weight(node) = weight(parent) +
// target_to_work(node.target)").
func TargetToWork(compact CompactTarget) *big.Int {
	target := CompactToBig(compact)
	if target.Sign() <= 0 {
		return big.NewInt(1)
	}

	// 2^256
	denominator := new(big.Int).Add(target, bigOne)
	numerator := new(big.Int).Lsh(bigOne, 256)
	return numerator.Div(numerator, denominator)
}
