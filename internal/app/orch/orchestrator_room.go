package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) JoinRoom(ctx context.Context, sid core.SessionID, userName, roomName string) error {
	user, err := domain.NewUserWithID(sid.UserID(), userName)
	if err != nil {
		return err
	}
	name, err := domain.ParseRoomName(roomName)
	if err != nil {
		return err
	}

	if prev, ok := o.Registry.RoomOf(sid); ok {
		o.LeaveRoom(ctx, sid, string(prev))
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room")
	}

	ctx, cancel := o.mediaCtx(ctx)
	defer cancel()

	room, err := o.lockOpenRoom(ctx, name)
	if err != nil {
		o.Candidates.Discard(user.ID)
		return err
	}
	defer room.Unlock()

	ep, err := room.Pipeline().CreateEndpoint(ctx, core.EndpointPublisher, user.ID)
	if err != nil {
		o.abandonJoin(room, user.ID)
		return fmt.Errorf("%w: publisher endpoint: %v", core.ErrFabricAllocationFailed, err)
	}

	p := core.NewParticipant(user, sid)
	outgoing := core.NewMediaSession(ep, user.ID, user.ID)
	p.SetOutgoing(outgoing)
	o.replay(outgoing, user.ID)
	o.forwardCandidates(outgoing, sid)

	o.Transport.JoinGroup(sid, string(name))
	o.broadcast(room, protocol.NewParticipantArrived{
		UserID:   string(user.ID),
		Username: user.Username,
	}, sid)

	existing := room.Snapshot(user.ID)
	users := make([]protocol.UserInfo, 0, len(existing))
	for _, u := range existing {
		users = append(users, protocol.UserInfo{ID: string(u.ID), Name: u.Username})
	}
	o.send(sid, protocol.ExistingParticipants{UserID: string(user.ID), ExistingUsers: users})

	room.AddParticipant(p)
	o.Registry.Bind(sid, name)

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Str("name", user.Username).Int("members", room.MemberCount()).Msg("joined room")
	return nil
}

// lockOpenRoom resolves name and returns it locked. A room closed between
// lookup and locking is looked up again.
func (o *Orchestrator) lockOpenRoom(ctx context.Context, name domain.RoomName) (*core.Room, error) {
	for {
		room, err := o.Rooms.GetOrCreate(ctx, name)
		if err != nil {
			return nil, err
		}
		room.Lock()
		if !room.Closed() {
			return room, nil
		}
		room.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// abandonJoin undoes what a failed join left behind. Requires the room lock.
func (o *Orchestrator) abandonJoin(room *core.Room, id domain.UserID) {
	o.Candidates.Discard(id)
	o.closeIfEmpty(room)
}

// closeIfEmpty removes a room without members. Requires the room lock.
func (o *Orchestrator) closeIfEmpty(room *core.Room) {
	if room.MemberCount() > 0 {
		return
	}
	room.MarkClosed()
	o.Rooms.Remove(room.Name())
}

// LeaveRoom removes sid from roomName. Leaving a room the connection is not
// in is a no-op. Errors are logged only.
func (o *Orchestrator) LeaveRoom(_ context.Context, sid core.SessionID, roomName string) {
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("room", roomName).Logger()
	name, err := domain.ParseRoomName(roomName)
	if err != nil {
		logger.Warn().Err(err).Msg("leave: bad room name")
		return
	}

	o.Transport.LeaveGroup(sid, string(name))

	room, ok := o.Rooms.Get(name)
	if !ok {
		o.Registry.Unbind(sid, name)
		return
	}
	room.Lock()
	defer room.Unlock()

	p, ok := room.RemoveParticipant(sid.UserID())
	if !ok {
		return
	}
	o.Registry.Unbind(sid, name)
	o.releaseParticipant(room, p)
	o.Candidates.Discard(p.ID())

	o.broadcast(room, protocol.LeaveRoom{UserID: string(p.ID())}, sid)
	o.closeIfEmpty(room)
	logger.Info().Int("members", room.MemberCount()).Msg("left room")
}

// LeaveRoomOnDisconnect runs the leave for whatever room sid is in.
func (o *Orchestrator) LeaveRoomOnDisconnect(ctx context.Context, sid core.SessionID) {
	defer o.Candidates.Discard(sid.UserID())

	name, ok := o.Registry.RoomOf(sid)
	if !ok {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("disconnect outside any room")
		return
	}
	o.LeaveRoom(ctx, sid, string(name))
}

// releaseParticipant frees p's sessions and every peer's session fed by
// p's stream. Requires the room lock.
func (o *Orchestrator) releaseParticipant(room *core.Room, p *core.Participant) {
	for _, s := range p.Sessions() {
		releaseSession(s)
	}
	for _, peer := range room.Participants() {
		if s, ok := peer.RemoveIncoming(p.ID()); ok {
			releaseSession(s)
		}
	}
}
