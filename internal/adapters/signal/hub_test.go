package signal

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return core.ErrConnClosed
	case c.full:
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		var env struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Event)
	}
	return out
}

func TestHubGroups(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{}, &fakeConn{}
	h.Register("a", a)
	h.Register("b", b)
	require.Equal(t, 2, h.Count())

	h.JoinGroup("a", "r1")
	h.JoinGroup("b", "r1")
	assert.Equal(t, 2, h.GroupSize("r1"))

	h.JoinGroup("b", "r2")
	assert.Equal(t, 1, h.GroupSize("r1"))
	g, ok := h.CurrentGroupOf("b")
	require.True(t, ok)
	assert.Equal(t, "r2", g)

	h.LeaveGroup("b", "r1")
	g, ok = h.CurrentGroupOf("b")
	require.True(t, ok, "leaving another group keeps the current one")
	assert.Equal(t, "r2", g)

	h.Unregister("b")
	_, ok = h.CurrentGroupOf("b")
	assert.False(t, ok)
	assert.Equal(t, 0, h.GroupSize("r2"))
	assert.Equal(t, 1, h.Count())
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{full: true}
	for sid, conn := range map[core.SessionID]*fakeConn{"a": a, "b": b, "c": c} {
		h.Register(sid, conn)
		h.JoinGroup(sid, "r1")
	}

	res := h.Broadcast("r1", protocol.LeaveRoom{UserID: "x"}, "a")
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []core.SessionID{"c"}, res.Dropped)
	assert.Empty(t, a.events(t))
	assert.Equal(t, []string{"leaveRoom"}, b.events(t))

	b.Close()
	res = h.Broadcast("r1", protocol.LeaveRoom{UserID: "x"}, "")
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []core.SessionID{"c"}, res.Dropped)
}

func TestHubSend(t *testing.T) {
	h := NewHub()
	a := &fakeConn{}
	h.Register("a", a)

	require.NoError(t, h.Send("a", protocol.Error{Message: "boom"}))
	assert.Equal(t, []string{"error"}, a.events(t))
	require.ErrorIs(t, h.Send("missing", protocol.Error{}), core.ErrConnClosed)

	a.full = true
	require.ErrorIs(t, h.Send("a", protocol.Error{}), core.ErrBackpressure)

	h.Disconnect("a")
	assert.True(t, a.closed)
}

func TestHubRegisterReplacesConnection(t *testing.T) {
	h := NewHub()
	old, fresh := &fakeConn{}, &fakeConn{}
	h.Register("a", old)
	h.Register("a", fresh)
	assert.True(t, old.closed)
	require.NoError(t, h.Send("a", protocol.LeaveRoom{UserID: "b"}))
	assert.Len(t, fresh.events(t), 1)
}
