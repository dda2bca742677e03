package core

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a named group of participants sharing one media pipeline.
//
// The pipeline is allocated asynchronously after the room is registered;
// Ready is closed once allocation finished, successfully or not.
// Membership and every participant's sessions are guarded by the room lock
// (Lock/Unlock), held for the whole of one signaling operation.
type Room struct {
	name domain.RoomName

	ready    chan struct{}
	once     sync.Once
	pipeline Pipeline
	allocErr error

	mu           sync.Mutex
	closed       bool
	participants map[domain.UserID]*Participant
	count        atomic.Int32
}

func NewRoom(name domain.RoomName) *Room {
	return &Room{
		name:         name,
		ready:        make(chan struct{}),
		participants: make(map[domain.UserID]*Participant),
	}
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) Ready() <-chan struct{} { return r.ready }

// CompleteAllocation installs the pipeline (or the allocation error) and
// wakes everyone waiting on Ready. Only the first call has effect.
func (r *Room) CompleteAllocation(p Pipeline, err error) {
	r.once.Do(func() {
		r.pipeline = p
		r.allocErr = err
		close(r.ready)
	})
}

// Pipeline is nil until Ready is closed or when allocation failed.
func (r *Room) Pipeline() Pipeline {
	select {
	case <-r.ready:
		return r.pipeline
	default:
		return nil
	}
}

func (r *Room) AllocErr() error {
	select {
	case <-r.ready:
		return r.allocErr
	default:
		return nil
	}
}

// MemberCount is safe to call without the room lock.
func (r *Room) MemberCount() int { return int(r.count.Load()) }

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// The methods below require the room lock.

// Closed reports whether the room was removed from its registry. A closed
// room must not gain members; callers look the room up again instead.
func (r *Room) Closed() bool { return r.closed }

func (r *Room) MarkClosed() { r.closed = true }

func (r *Room) Participant(id domain.UserID) (*Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

func (r *Room) AddParticipant(p *Participant) {
	if _, ok := r.participants[p.ID()]; !ok {
		r.count.Add(1)
	}
	r.participants[p.ID()] = p
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("user", string(p.ID())).Msg("participant added")
}

func (r *Room) RemoveParticipant(id domain.UserID) (*Participant, bool) {
	p, ok := r.participants[id]
	if !ok {
		return nil, false
	}
	delete(r.participants, id)
	r.count.Add(-1)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("user", string(id)).Msg("participant removed")
	return p, true
}

func (r *Room) Participants() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Snapshot lists every member except exclude.
func (r *Room) Snapshot(exclude domain.UserID) []domain.User {
	out := make([]domain.User, 0, len(r.participants))
	for id, p := range r.participants {
		if id == exclude {
			continue
		}
		out = append(out, p.User())
	}
	return out
}
