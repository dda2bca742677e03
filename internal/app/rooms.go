package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
	PipelineID  string          `json:"pipeline_id,omitempty"`
}

// RoomRegistry maps room names to live rooms. A room is registered before
// its pipeline exists so concurrent joins converge on one instance; the
// first caller allocates the pipeline and the rest wait for the outcome.
type RoomRegistry struct {
	fabric core.MediaFabric

	mu    sync.RWMutex
	rooms map[domain.RoomName]*core.Room
}

func NewRoomRegistry(fabric core.MediaFabric) *RoomRegistry {
	return &RoomRegistry{
		fabric: fabric,
		rooms:  make(map[domain.RoomName]*core.Room),
	}
}

func (f *RoomRegistry) GetOrCreate(ctx context.Context, name domain.RoomName) (*core.Room, error) {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()

	created := false
	if !ok {
		f.mu.Lock()
		if room, ok = f.rooms[name]; !ok {
			room = core.NewRoom(name)
			f.rooms[name] = room
			created = true
		}
		f.mu.Unlock()
	}

	if created {
		f.allocate(ctx, room)
	}

	select {
	case <-room.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := room.AllocErr(); err != nil {
		return nil, fmt.Errorf("%w: room %s: %v", core.ErrFabricAllocationFailed, name, err)
	}
	log.Debug().Str("module", "app.rooms").Str("room", string(name)).Int("members", room.MemberCount()).Bool("created", created).Msg("room resolved")
	return room, nil
}

func (f *RoomRegistry) allocate(ctx context.Context, room *core.Room) {
	logger := log.With().Str("module", "app.rooms").Str("room", string(room.Name())).Logger()

	pipeline, err := f.fabric.CreatePipeline(ctx)
	if err != nil {
		// Roll back so a later join can retry with a fresh record.
		f.mu.Lock()
		if f.rooms[room.Name()] == room {
			delete(f.rooms, room.Name())
		}
		f.mu.Unlock()
		logger.Error().Err(err).Msg("pipeline allocation failed")
		room.CompleteAllocation(nil, err)
		return
	}
	logger.Info().Str("pipeline", pipeline.ID()).Msg("pipeline allocated")
	room.CompleteAllocation(pipeline, nil)
}

func (f *RoomRegistry) Get(name domain.RoomName) (*core.Room, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

// Remove drops the room and releases its pipeline. Removing an unknown
// room is a no-op. Callers holding the room lock should MarkClosed first.
func (f *RoomRegistry) Remove(name domain.RoomName) {
	f.mu.Lock()
	room, ok := f.rooms[name]
	if ok {
		delete(f.rooms, name)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	_ = releasePipeline(room)
}

func releasePipeline(room *core.Room) error {
	logger := log.With().Str("module", "app.rooms").Str("room", string(room.Name())).Logger()
	p := room.Pipeline()
	if p == nil {
		return nil
	}
	if err := p.Release(); err != nil {
		logger.Error().Err(err).Str("pipeline", p.ID()).Msg("pipeline release failed")
		return err
	}
	logger.Info().Str("pipeline", p.ID()).Msg("room removed")
	return nil
}

func (f *RoomRegistry) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, roomInfo(r))
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

func (f *RoomRegistry) Info(name domain.RoomName) (RoomInfo, bool) {
	room, ok := f.Get(name)
	if !ok {
		return RoomInfo{}, false
	}
	return roomInfo(room), true
}

func roomInfo(r *core.Room) RoomInfo {
	info := RoomInfo{Name: r.Name(), MemberCount: r.MemberCount()}
	if p := r.Pipeline(); p != nil {
		info.PipelineID = p.ID()
	}
	return info
}

// Close forgets every room and releases their pipelines concurrently.
func (f *RoomRegistry) Close(ctx context.Context) error {
	f.mu.Lock()
	rooms := make([]*core.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.rooms = make(map[domain.RoomName]*core.Room)
	f.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range rooms {
		g.Go(func() error {
			select {
			case <-r.Ready():
			case <-ctx.Done():
				return ctx.Err()
			}
			r.Lock()
			r.MarkClosed()
			r.Unlock()
			return releasePipeline(r)
		})
	}
	return g.Wait()
}
