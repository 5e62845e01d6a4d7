package model

import "github.com/pkg/errors"

// BlockHeader is the per-chain header. Deps is the fixed-length,
// position-encoded cross-chain dependency vector described in spec.md §3:
// the first G-1 entries are incoming-dep hashes (one per group other than
// From), the next G-1 are outgoing-deps, and the final entry is the direct
// parent on (From, To).
type BlockHeader struct {
	ChainIndex ChainIndex
	Deps       []Hash // length == DepSlotCount(groups)
	TxsRoot    Hash
	Timestamp  uint64 // monotonic milliseconds
	Target     CompactTarget
	Nonce      [32]byte // u256 nonce, opaque to the core
}

// DirectParent returns the header's direct parent on its own chain -- the
// last slot of Deps.
func (h *BlockHeader) DirectParent() Hash {
	return h.Deps[len(h.Deps)-1]
}

// IncomingDeps returns the first G-1 dep slots.
func (h *BlockHeader) IncomingDeps(groups int) []Hash {
	return h.Deps[:groups-1]
}

// OutgoingDeps returns the middle G-1 dep slots.
func (h *BlockHeader) OutgoingDeps(groups int) []Hash {
	return h.Deps[groups-1 : 2*groups-2]
}

// Validate checks the structural invariant from spec.md §3: deps.length ==
// 2*G-1.
func (h *BlockHeader) Validate(groups int) error {
	want := DepSlotCount(groups)
	if len(h.Deps) != want {
		return errors.Errorf("header has %d deps, want %d (groups=%d)", len(h.Deps), want, groups)
	}
	return nil
}
