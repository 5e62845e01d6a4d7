package model

import "encoding/hex"

// HashSize is the number of bytes in a Hash.
const HashSize = 32

// Hash is a 32-byte opaque digest. BlockHash and TxHash are both Hash under
// the hood; the core treats them as equality-comparable fixed-width bytes,
// never inspecting their internal structure (spec.md §3).
type Hash [HashSize]byte

// BlockHash identifies a block by the hash of its header.
type BlockHash = Hash

// TxHash identifies a transaction by the hash of its body.
type TxHash = Hash

// ZeroHash is the all-zero hash, used as a sentinel for "no dependency".
var ZeroHash = Hash{}

// String returns the hex encoding of the hash, most-significant byte first.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Less reports whether h sorts lexicographically before other. Used to break
// weight ties deterministically (spec.md §3, "ties broken by smaller hash").
func (h Hash) Less(other Hash) bool {
	for i := 0; i < HashSize; i++ {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// HashFromSlice copies b into a Hash, panicking if the length does not
// match. Used at deserialization boundaries where length is already
// guaranteed by the wire/KV layer.
func HashFromSlice(b []byte) Hash {
	var h Hash
	if len(b) != HashSize {
		panic("model: invalid hash length")
	}
	copy(h[:], b)
	return h
}
