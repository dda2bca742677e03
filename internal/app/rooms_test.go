package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/core/coretest"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRegistryConcurrentGetOrCreateAllocatesOnce(t *testing.T) {
	fabric := coretest.NewFabric()
	fabric.Gate = make(chan struct{})
	rooms := NewRoomRegistry(fabric)

	const n = 16
	got := make([]*core.Room, n)
	var wg conc.WaitGroup
	for i := range n {
		wg.Go(func() {
			room, err := rooms.GetOrCreate(context.Background(), "r1")
			assert.NoError(t, err)
			got[i] = room
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(fabric.Gate)
	wg.Wait()

	require.Len(t, fabric.Pipelines(), 1)
	for _, r := range got {
		require.NotNil(t, r)
		assert.Same(t, got[0], r)
		assert.Equal(t, fabric.Pipelines()[0].ID(), r.Pipeline().ID())
	}
}

func TestRoomRegistryRollsBackFailedAllocation(t *testing.T) {
	fabric := coretest.NewFabric()
	fabric.Fail(coretest.OpCreatePipeline, errors.New("media server down"))
	rooms := NewRoomRegistry(fabric)

	_, err := rooms.GetOrCreate(context.Background(), "r1")
	require.ErrorIs(t, err, core.ErrFabricAllocationFailed)
	_, ok := rooms.Get("r1")
	require.False(t, ok)

	fabric.Fail(coretest.OpCreatePipeline, nil)
	room, err := rooms.GetOrCreate(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, room.Pipeline())
}

func TestRoomRegistryWaiterHonoursContext(t *testing.T) {
	fabric := coretest.NewFabric()
	fabric.Gate = make(chan struct{})
	rooms := NewRoomRegistry(fabric)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = rooms.GetOrCreate(context.Background(), "r1")
	}()
	require.Eventually(t, func() bool {
		_, ok := rooms.Get("r1")
		return ok
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rooms.GetOrCreate(ctx, "r1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(fabric.Gate)
	<-done
}

func TestRoomRegistryRemoveIsIdempotent(t *testing.T) {
	fabric := coretest.NewFabric()
	rooms := NewRoomRegistry(fabric)

	_, err := rooms.GetOrCreate(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, rooms.List(), 1)

	rooms.Remove("r1")
	rooms.Remove("r1")
	rooms.Remove("never-existed")

	assert.Empty(t, rooms.List())
	assert.True(t, fabric.Pipelines()[0].Released())
}

func TestRoomRegistryCloseReleasesEverything(t *testing.T) {
	fabric := coretest.NewFabric()
	rooms := NewRoomRegistry(fabric)
	for _, name := range []string{"a", "b", "c"} {
		_, err := rooms.GetOrCreate(context.Background(), domain.RoomName(name))
		require.NoError(t, err)
	}

	require.NoError(t, rooms.Close(context.Background()))
	assert.Empty(t, rooms.List())
	for _, p := range fabric.Pipelines() {
		assert.True(t, p.Released())
	}
}
