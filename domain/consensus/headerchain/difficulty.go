package headerchain

import (
	"math/big"
	"sort"

	"github.com/blockflow/flowd/domain/consensus/hashchain"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
)

// DifficultyParams carries the DigiShield-style knobs from spec.md §4.2 and
// §6 ("consensus.medianTimeInterval", "consensus.expectedTimeSpan", ...).
type DifficultyParams struct {
	MedianTimeInterval uint64
	ExpectedTimeSpan   int64 // milliseconds
	TimeSpanMin        int64
	TimeSpanMax        int64
}

// medianTimestamp returns the median of the last `window` timestamps
// walking up from node (inclusive), per spec.md §4.2 step 4: "Median is the
// value at position window/2 after sorting the last window timestamps up
// the parent chain." ok is false if the chain is shorter than window.
func medianTimestamp(node *hashchain.TreeNode, window uint64) (median int64, ok bool) {
	if window == 0 {
		return 0, false
	}

	timestamps := make([]int64, 0, window)
	for n := node; n != nil && uint64(len(timestamps)) < window; n = n.Parent {
		timestamps = append(timestamps, int64(n.Timestamp))
	}
	if uint64(len(timestamps)) < window {
		return 0, false
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2], true
}

// calHashTarget computes the next target after parent, per spec.md §4.2.
// If either median is undefined (chain too short), the parent's target is
// reused unchanged.
func calHashTarget(parent *hashchain.TreeNode, params DifficultyParams) model.CompactTarget {
	if parent.Parent == nil {
		return parent.Target
	}

	m1, ok1 := medianTimestamp(parent, params.MedianTimeInterval)
	m2, ok2 := medianTimestamp(parent.Parent, params.MedianTimeInterval)
	if !ok1 || !ok2 {
		return parent.Target
	}

	timeSpan := params.ExpectedTimeSpan + (m1-m2-params.ExpectedTimeSpan)/4
	if timeSpan < params.TimeSpanMin {
		timeSpan = params.TimeSpanMin
	}
	if timeSpan > params.TimeSpanMax {
		timeSpan = params.TimeSpanMax
	}

	parentTarget := model.CompactToBig(parent.Target)
	newTarget := new(big.Int).Mul(parentTarget, big.NewInt(timeSpan))
	newTarget.Div(newTarget, big.NewInt(params.ExpectedTimeSpan)) // floor division

	return model.BigToCompact(newTarget)
}

// errTargetMismatch is a Validation error: an incoming header's target does
// not match the value calHashTarget would derive for its parent.
var errTargetMismatch = errors.Wrap(model.ErrInvalidTarget, "header target does not match calculated target")
