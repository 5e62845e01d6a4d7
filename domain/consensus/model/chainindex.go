package model

import "fmt"

// GroupIndex identifies one of the G shard groups, 0 <= GroupIndex < G.
type GroupIndex uint8

// ChainIndex identifies one of the G*G chains as an ordered pair of groups.
// ChainIndex{0,0} and ChainIndex{0,1} are distinct chains even though they
// share the "from" group (spec.md §3).
type ChainIndex struct {
	From GroupIndex
	To   GroupIndex
}

func (c ChainIndex) String() string {
	return fmt.Sprintf("(%d,%d)", c.From, c.To)
}

// Flattened returns the row-major index of the chain in a G*G array.
func (c ChainIndex) Flattened(groups int) int {
	return int(c.From)*groups + int(c.To)
}

// ChainIndexFromFlattened is the inverse of Flattened.
func ChainIndexFromFlattened(i, groups int) ChainIndex {
	return ChainIndex{From: GroupIndex(i / groups), To: GroupIndex(i % groups)}
}

// DepSlotCount is the number of dependency hashes recorded by every header:
// G-1 incoming deps, G-1 outgoing deps, and the direct parent (spec.md §3).
func DepSlotCount(groups int) int {
	return 2*groups - 1
}

// BrokerConfig declares which contiguous slice of groups this broker
// instance is responsible for (spec.md §3, §6 "broker.*").
type BrokerConfig struct {
	Groups    int
	BrokerNum int
	BrokerID  int
}

// GroupRange returns the half-open range of groups [start, end) this broker
// owns, assuming groups are distributed contiguously across brokers.
func (c BrokerConfig) GroupRange() (start, end GroupIndex) {
	groupsPerBroker := c.Groups / c.BrokerNum
	start = GroupIndex(c.BrokerID * groupsPerBroker)
	end = start + GroupIndex(groupsPerBroker)
	return start, end
}

// OwnsGroup reports whether this broker is responsible for group g.
func (c BrokerConfig) OwnsGroup(g GroupIndex) bool {
	start, end := c.GroupRange()
	return g >= start && g < end
}

// OwnsChain reports whether this broker owns chain (from,to) -- i.e. it
// owns the "from" group, since that's the chain whose tip set and mempool
// the broker maintains.
func (c BrokerConfig) OwnsChain(ci ChainIndex) bool {
	return c.OwnsGroup(ci.From)
}
