// Package broker implements spec.md §4.10: the per-connection BrokerHandler
// state machine (HandShaking -> Exchanging -> Closed) and the Router/Route
// message-dispatch abstraction it runs on, grounded on
// protocol/handshake.go's router/route-by-command pattern and
// netadapter/router/route.go's Route type. The wire bytes-on-the-socket
// layer is the out-of-scope collaborator named in spec.md §1; this package
// only implements the framing/dispatch surface, transport-agnostic so a
// real socket or streaming RPC binding can drive it later (see DESIGN.md).
package broker

import "github.com/blockflow/flowd/domain/consensus/model"

// Command identifies a Payload's wire type, the same role
// wire.MessageCommand plays for Route dispatch.
type Command uint8

const (
	CmdHello Command = iota
	CmdPing
	CmdPong
	CmdSyncRequest
	CmdSyncResponse
	CmdGetBlocks
	CmdSendBlocks
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "Hello"
	case CmdPing:
		return "Ping"
	case CmdPong:
		return "Pong"
	case CmdSyncRequest:
		return "SyncRequest"
	case CmdSyncResponse:
		return "SyncResponse"
	case CmdGetBlocks:
		return "GetBlocks"
	case CmdSendBlocks:
		return "SendBlocks"
	default:
		return "Unknown"
	}
}

// Payload is a wire protocol message (spec.md §6).
type Payload interface {
	Command() Command
}

// Hello is the first message a session sends: identifies the sending
// clique and the groups its broker owns.
type Hello struct {
	CliqueID   uint32
	BrokerInfo model.BrokerConfig
}

func (Hello) Command() Command { return CmdHello }

// Ping carries a nonzero nonce; the matching Pong must echo it.
type Ping struct {
	Nonce     uint64
	Timestamp uint64
}

func (Ping) Command() Command { return CmdPing }

// Pong answers a Ping.
type Pong struct {
	Nonce uint64
}

func (Pong) Command() Command { return CmdPong }

// SyncRequest carries one locator list per chain the sender wants to sync.
type SyncRequest struct {
	Locators map[model.ChainIndex][]model.Hash
}

func (SyncRequest) Command() Command { return CmdSyncRequest }

// SyncResponse answers a SyncRequest with the hashes the sender has beyond
// what the requester's locators named.
type SyncResponse struct {
	Inventories map[model.ChainIndex][]model.Hash
}

func (SyncResponse) Command() Command { return CmdSyncResponse }

// GetBlocks requests full block bodies by hash.
type GetBlocks struct {
	Hashes []model.Hash
}

func (GetBlocks) Command() Command { return CmdGetBlocks }

// SendBlocks answers a GetBlocks with full block bodies.
type SendBlocks struct {
	Blocks []*model.Block
}

func (SendBlocks) Command() Command { return CmdSendBlocks }
