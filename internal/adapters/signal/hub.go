package signal

import (
	"errors"
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Hub is the websocket core.Transport: live connections plus one group per
// room for fan-out.
type Hub struct {
	mu     sync.RWMutex
	conns  map[core.SessionID]core.SignalConnection
	groups map[string]map[core.SessionID]struct{}
	byConn map[core.SessionID]string
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[core.SessionID]core.SignalConnection),
		groups: make(map[string]map[core.SessionID]struct{}),
		byConn: make(map[core.SessionID]string),
	}
}

func (h *Hub) Register(sid core.SessionID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[sid]; ok && old != conn {
		old.Close()
	}
	h.conns[sid] = conn
}

// Unregister forgets sid and its group membership.
func (h *Hub) Unregister(sid core.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, sid)
	if group, ok := h.byConn[sid]; ok {
		h.removeLocked(sid, group)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) JoinGroup(sid core.SessionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.byConn[sid]; ok {
		h.removeLocked(sid, old)
	}
	members := h.groups[group]
	if members == nil {
		members = make(map[core.SessionID]struct{})
		h.groups[group] = members
	}
	members[sid] = struct{}{}
	h.byConn[sid] = group
}

func (h *Hub) LeaveGroup(sid core.SessionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sid, group)
}

func (h *Hub) removeLocked(sid core.SessionID, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	if h.byConn[sid] == group {
		delete(h.byConn, sid)
	}
}

func (h *Hub) CurrentGroupOf(sid core.SessionID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g, ok := h.byConn[sid]
	return g, ok
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) Send(sid core.SessionID, msg protocol.Outbound) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	conn, ok := h.conns[sid]
	h.mu.RUnlock()
	if !ok {
		return core.ErrConnClosed
	}
	return conn.TrySend(frame)
}

func (h *Hub) Broadcast(group string, msg protocol.Outbound, exclude core.SessionID) core.PublishResult {
	var res core.PublishResult
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.hub").Str("group", group).Msg("broadcast encode")
		return res
	}

	type target struct {
		sid  core.SessionID
		conn core.SignalConnection
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.groups[group]))
	for sid := range h.groups[group] {
		if sid == exclude {
			continue
		}
		if conn, ok := h.conns[sid]; ok {
			targets = append(targets, target{sid, conn})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		switch err := t.conn.TrySend(frame); {
		case err == nil:
			res.SendTo++
		case errors.Is(err, core.ErrBackpressure):
			res.Dropped = append(res.Dropped, t.sid)
		default:
			log.Debug().Err(err).Str("module", "signal.hub").Str("sid", string(t.sid)).Msg("broadcast skip")
		}
	}
	return res
}

func (h *Hub) Disconnect(sid core.SessionID) {
	h.mu.RLock()
	conn, ok := h.conns[sid]
	h.mu.RUnlock()
	if ok {
		conn.Close()
	}
}

var _ core.Transport = (*Hub)(nil)
