package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// lockMember returns the room holding sid's participant, locked.
func (o *Orchestrator) lockMember(roomName string, sid core.SessionID) (*core.Room, *core.Participant, error) {
	name, err := domain.ParseRoomName(roomName)
	if err != nil {
		return nil, nil, err
	}
	room, ok := o.Rooms.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrRoomNotFound, name)
	}
	room.Lock()
	if room.Closed() {
		room.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", core.ErrRoomNotFound, name)
	}
	p, ok := room.Participant(sid.UserID())
	if !ok {
		room.Unlock()
		return nil, nil, fmt.Errorf("%w: %s in %s", core.ErrParticipantNotFound, sid, name)
	}
	return room, p, nil
}

// ReceiveVideoFrom negotiates the session that carries target's stream to
// sid and answers with target's id so the client can correlate it.
func (o *Orchestrator) ReceiveVideoFrom(ctx context.Context, sid core.SessionID, targetID domain.UserID, roomName, sdpOffer string) error {
	room, asker, err := o.lockMember(roomName, sid)
	if err != nil {
		return err
	}
	defer room.Unlock()

	target, ok := room.Participant(targetID)
	if !ok {
		return fmt.Errorf("%w: target %s in %s", core.ErrParticipantNotFound, targetID, room.Name())
	}

	ctx, cancel := o.mediaCtx(ctx)
	defer cancel()

	session, err := o.sessionFor(ctx, room, asker, target)
	if err != nil {
		return err
	}

	answer, err := session.Negotiate(ctx, sdpOffer)
	if err != nil {
		return err
	}
	o.send(sid, protocol.ReceiveVideoAnswer{SenderID: string(targetID), SDPAnswer: answer})
	session.MarkAnswerSent()

	if err := session.StartGathering(ctx); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("target", string(targetID)).Str("room", string(room.Name())).Msg("video negotiated")
	return nil
}

// sessionFor resolves the session asker uses to receive target's stream,
// creating and connecting it on first use. Requires the room lock.
func (o *Orchestrator) sessionFor(ctx context.Context, room *core.Room, asker, target *core.Participant) (*core.MediaSession, error) {
	if asker.ID() == target.ID() {
		if out := asker.Outgoing(); out != nil {
			return out, nil
		}
		return nil, fmt.Errorf("%w: no outgoing session for %s", core.ErrParticipantNotFound, asker.ID())
	}
	if s, ok := asker.Incoming(target.ID()); ok {
		return s, nil
	}
	source := target.Outgoing()
	if source == nil {
		return nil, fmt.Errorf("%w: no outgoing session for %s", core.ErrParticipantNotFound, target.ID())
	}

	ep, err := room.Pipeline().CreateEndpoint(ctx, core.EndpointSubscriber, asker.ID())
	if err != nil {
		return nil, fmt.Errorf("%w: subscriber endpoint: %v", core.ErrFabricAllocationFailed, err)
	}
	s := core.NewMediaSession(ep, asker.ID(), target.ID())
	if err := asker.SetIncoming(target.ID(), s); err != nil {
		releaseSession(s)
		return nil, err
	}
	o.replay(s, target.ID())
	o.forwardCandidates(s, asker.SID())

	if err := source.Endpoint().Connect(ctx, ep); err != nil {
		// A session that failed to connect is never reused.
		asker.RemoveIncoming(target.ID())
		releaseSession(s)
		return nil, fmt.Errorf("%w: %s -> %s: %v", core.ErrConnectionFailed, target.ID(), asker.ID(), err)
	}
	return s, nil
}

// AddIceCandidate routes a client candidate to the session of the stream
// owned by senderID, buffering it while that session does not exist.
func (o *Orchestrator) AddIceCandidate(_ context.Context, sid core.SessionID, senderID domain.UserID, roomName string, c webrtc.ICECandidateInit) error {
	self := sid.UserID()

	room, asker, err := o.lockMember(roomName, sid)
	if err != nil {
		// Candidates for the connection's own stream may precede its join.
		if senderID == self {
			o.buffer(self, c)
			return nil
		}
		return err
	}
	defer room.Unlock()

	if senderID == self {
		if out := asker.Outgoing(); out != nil {
			return out.AddCandidate(c)
		}
		o.buffer(self, c)
		return nil
	}

	if s, ok := asker.Incoming(senderID); ok {
		return s.AddCandidate(c)
	}
	if _, ok := room.Participant(senderID); !ok {
		return fmt.Errorf("%w: %s in %s", core.ErrInvalidCandidateTarget, senderID, room.Name())
	}
	o.buffer(senderID, c)
	return nil
}
