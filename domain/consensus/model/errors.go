package model

import "github.com/pkg/errors"

// Sentinel errors for the error kinds enumerated in spec.md §7. Callers at
// the actor/session layer type-switch (via errors.Is) on these to decide
// whether to retry, queue a download, penalize a peer, or crash.
var (
	// ErrMissingParent is a MissingDependency error: a header referenced a
	// parent hash not yet present in the chain.
	ErrMissingParent = errors.New("missing parent")

	// ErrMissingBlock is a MissingDependency error surfaced by BlockFlow
	// when a prerequisite block for best-deps assembly is absent
	// (spec.md §4.5).
	ErrMissingBlock = errors.New("missing block")

	// ErrInvalidChainIndex is a Validation error: a block was routed to the
	// wrong (from,to) chain.
	ErrInvalidChainIndex = errors.New("block chain index mismatch")

	// ErrInvalidDeps is a Validation error: a header's dep vector failed
	// the position/ordering invariant in spec.md §3.
	ErrInvalidDeps = errors.New("invalid dependency vector")

	// ErrInvalidTarget is a Validation error: a header's target does not
	// match the value calHashTarget derives (spec.md §4.2).
	ErrInvalidTarget = errors.New("invalid target")

	// ErrInvalidExecution is a Validation error: a block's transactions
	// failed to execute against the parent's world state (spec.md §4.3).
	ErrInvalidExecution = errors.New("invalid execution")

	// ErrDoubleSpend is a Validation error: a transaction spends an output
	// already spent by a pooled transaction (spec.md §4.6).
	ErrDoubleSpend = errors.New("double spend")

	// ErrOutputSpent is returned by TxIndexes.GetUTXO for an output that
	// has already been consumed by a pooled transaction.
	ErrOutputSpent = errors.New("output already spent")

	// ErrOutputNotFound is returned by TxIndexes.GetUTXO for an output the
	// pool has no record of.
	ErrOutputNotFound = errors.New("output not found")

	// ErrPoolFull is a Capacity error: a pool rejected an addition because
	// it is at capacity (spec.md §4.6).
	ErrPoolFull = errors.New("pool is full")
)
