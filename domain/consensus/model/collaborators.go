package model

import "context"

// WorldState is the collaborator interface the core depends on for
// transaction execution. spec.md §1 treats script/VM execution as a pure
// function (WorldState, Tx) -> Result<WorldState>; the core never
// implements it, only calls it (§6 "Collaborator interfaces").
type WorldState interface {
	// ContainsAllInputs reports whether every input the transaction spends
	// is currently unspent in this world state.
	ContainsAllInputs(tx *Transaction) (bool, error)

	// Apply executes tx against the current state and returns the
	// resulting state. Implementations reject tx (returning an error)
	// rather than mutate the receiver.
	Apply(tx *Transaction) (WorldState, error)

	// Root returns the trie root hash addressing this state.
	Root() Hash
}

// TrieStorage is the collaborator that stores versioned key/value state
// trees addressable by root hash (spec.md §1 treats the merkle-patricia
// trie as "a versioned key/value map with root hashes").
type TrieStorage interface {
	Put(root Hash, key, value []byte) (newRoot Hash, err error)
	Get(root Hash, key []byte) ([]byte, error)
	Delete(root Hash, key []byte) (newRoot Hash, err error)
	Commit(root Hash) (Hash, error)
}

// Miner is the out-of-scope mining-worker collaborator (spec.md §6).
type Miner interface {
	Start(ctx context.Context) error
	Stop()
	SubmitSolution(nonce [32]byte) (*Block, error)
}

// TxHandler is the collaborator responsible for gossiping transactions to
// peers (spec.md §6).
type TxHandler interface {
	Broadcast(txs []*Transaction) error
}

// BlockChainHandler is the collaborator responsible for routing newly
// received blocks into the local consensus engine (spec.md §6).
type BlockChainHandler interface {
	AddBlock(block *Block, origin string) error
}
