package coretest

import (
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/protocol"
)

// Transport is a core.Transport that records outbound messages per
// connection instead of writing them anywhere.
type Transport struct {
	mu           sync.Mutex
	groups       map[string]map[core.SessionID]struct{}
	byConn       map[core.SessionID]string
	sent         map[core.SessionID][]protocol.Outbound
	full         map[core.SessionID]bool
	disconnected []core.SessionID
}

func NewTransport() *Transport {
	return &Transport{
		groups: make(map[string]map[core.SessionID]struct{}),
		byConn: make(map[core.SessionID]string),
		sent:   make(map[core.SessionID][]protocol.Outbound),
		full:   make(map[core.SessionID]bool),
	}
}

func (t *Transport) JoinGroup(sid core.SessionID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byConn[sid]; ok {
		delete(t.groups[old], sid)
	}
	if t.groups[group] == nil {
		t.groups[group] = make(map[core.SessionID]struct{})
	}
	t.groups[group][sid] = struct{}{}
	t.byConn[sid] = group
}

func (t *Transport) LeaveGroup(sid core.SessionID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups[group], sid)
	if t.byConn[sid] == group {
		delete(t.byConn, sid)
	}
}

func (t *Transport) CurrentGroupOf(sid core.SessionID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.byConn[sid]
	return g, ok
}

func (t *Transport) Send(sid core.SessionID, msg protocol.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendLocked(sid, msg)
}

func (t *Transport) sendLocked(sid core.SessionID, msg protocol.Outbound) error {
	if t.full[sid] {
		return core.ErrBackpressure
	}
	t.sent[sid] = append(t.sent[sid], msg)
	return nil
}

func (t *Transport) Broadcast(group string, msg protocol.Outbound, exclude core.SessionID) core.PublishResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := core.PublishResult{}
	for sid := range t.groups[group] {
		if sid == exclude {
			continue
		}
		if err := t.sendLocked(sid, msg); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	return res
}

func (t *Transport) Disconnect(sid core.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = append(t.disconnected, sid)
}

// SetFull makes every later send to sid fail with backpressure.
func (t *Transport) SetFull(sid core.SessionID, full bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.full[sid] = full
}

func (t *Transport) Disconnected() []core.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.SessionID(nil), t.disconnected...)
}

func (t *Transport) Messages(sid core.SessionID) []protocol.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Outbound(nil), t.sent[sid]...)
}

func (t *Transport) Reset(sid core.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sent, sid)
}

// Filter returns the messages sent to sid that have type T.
func Filter[T protocol.Outbound](t *Transport, sid core.SessionID) []T {
	var out []T
	for _, m := range t.Messages(sid) {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
