package core

import "github.com/dkeye/groupcall/internal/protocol"

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// Transport delivers addressed messages to connected clients and keeps
// named groups (one per room) for fan-out.
type Transport interface {
	JoinGroup(sid SessionID, group string)
	LeaveGroup(sid SessionID, group string)
	CurrentGroupOf(sid SessionID) (string, bool)

	Send(sid SessionID, msg protocol.Outbound) error
	// Broadcast sends msg to every member of group except exclude.
	Broadcast(group string, msg protocol.Outbound, exclude SessionID) PublishResult

	// Disconnect closes the connection. Its disconnect handler runs as usual.
	Disconnect(sid SessionID)
}
