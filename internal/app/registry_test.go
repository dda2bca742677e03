package app

import (
	"testing"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBindAndUnbind(t *testing.T) {
	r := NewRegistry()
	r.Bind("s1", "r1")
	r.Bind("s2", "r1")
	r.Bind("s3", "r2")

	room, ok := r.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, "r1", string(room))
	assert.ElementsMatch(t, []core.SessionID{"s1", "s2"}, r.MembersOfRoom("r1"))

	assert.False(t, r.Unbind("s1", "r2"), "stale room must not unbind")
	assert.True(t, r.Unbind("s1", "r1"))
	assert.False(t, r.Unbind("s1", "r1"))

	_, ok = r.RoomOf("s1")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Count())
}

func TestPolicyFromName(t *testing.T) {
	assert.Equal(t, KickMember, PolicyFromName("kick").OnBackPressure("r1", "s1"))
	assert.Equal(t, DropFrame, PolicyFromName("drop").OnBackPressure("r1", "s1"))
	assert.Equal(t, KickMember, PolicyFromName("").OnBackPressure("r1", "s1"))
}
