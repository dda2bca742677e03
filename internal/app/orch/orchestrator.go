package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Orchestrator drives rooms, participants and media sessions from
// signaling messages.
//
// Messages of one connection must be handled sequentially; the transport
// adapter guarantees that by dispatching from the connection's read loop.
// Operations on the same room are serialized by the room lock.
type Orchestrator struct {
	Registry   *app.Registry
	Rooms      *app.RoomRegistry
	Candidates *core.CandidateBuffer
	Transport  core.Transport
	Policy     app.Policy

	// MediaTimeout bounds the fabric calls of one operation. Zero disables it.
	MediaTimeout time.Duration
}

// Handle dispatches one inbound message. Failures are reported to sid as
// an error message and returned.
func (o *Orchestrator) Handle(ctx context.Context, sid core.SessionID, msg protocol.Inbound) error {
	var (
		err    error
		target string
	)
	switch m := msg.(type) {
	case protocol.JoinRoom:
		err = o.JoinRoom(ctx, sid, m.UserName, m.RoomName)
	case protocol.ReceiveVideoFrom:
		target = m.UserID
		err = o.ReceiveVideoFrom(ctx, sid, domain.UserID(m.UserID), m.RoomName, m.SDPOffer)
	case protocol.Candidate:
		target = m.UserID
		err = o.AddIceCandidate(ctx, sid, domain.UserID(m.UserID), m.RoomName, m.Candidate)
	case protocol.ParticipantLeft:
		o.LeaveRoom(ctx, sid, m.RoomName)
	default:
		err = fmt.Errorf("%w: %T", protocol.ErrUnknownEvent, msg)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("event", string(msg.Event())).Str("target", target).Msg("request failed")
		o.send(sid, protocol.Error{Request: msg.Event(), UserID: target, Message: err.Error()})
	}
	return err
}

func (o *Orchestrator) mediaCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.MediaTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.MediaTimeout)
}

func (o *Orchestrator) send(sid core.SessionID, msg protocol.Outbound) {
	err := o.Transport.Send(sid, msg)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrBackpressure):
		o.onBackPressure("", sid)
	default:
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("event", string(msg.Event())).Msg("send failed")
	}
}

func (o *Orchestrator) broadcast(room *core.Room, msg protocol.Outbound, exclude core.SessionID) {
	res := o.Transport.Broadcast(string(room.Name()), msg, exclude)
	log.Debug().Str("module", "orch").Str("room", string(room.Name())).Str("event", string(msg.Event())).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	for _, slow := range res.Dropped {
		o.onBackPressure(room.Name(), slow)
	}
}

func (o *Orchestrator) onBackPressure(room domain.RoomName, sid core.SessionID) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(room, sid) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("slow member kicked")
		// The transport's disconnect handler performs the leave.
		o.Transport.Disconnect(sid)
	case app.DropFrame, app.NoAction:
	}
}

// forwardCandidates relays candidates discovered for s to the connection
// that owns it, addressed by the stream owner.
func (o *Orchestrator) forwardCandidates(s *core.MediaSession, to core.SessionID) {
	s.OnCandidate(func(source domain.UserID, c webrtc.ICECandidateInit) {
		o.send(to, protocol.IceCandidate{UserID: string(source), Candidate: c})
	})
}

// replay applies candidates buffered for owner's stream to s.
func (o *Orchestrator) replay(s *core.MediaSession, owner domain.UserID) {
	buffered := o.Candidates.Drain(owner)
	if len(buffered) == 0 {
		return
	}
	n, err := s.Replay(buffered)
	logger := log.With().Str("module", "orch").Str("owner", string(owner)).Str("session_owner", string(s.Owner())).Logger()
	if err != nil {
		logger.Warn().Err(err).Int("applied", n).Int("buffered", len(buffered)).Msg("candidate replay incomplete")
		return
	}
	logger.Debug().Int("applied", n).Msg("buffered candidates replayed")
}

func (o *Orchestrator) buffer(owner domain.UserID, c webrtc.ICECandidateInit) {
	if !o.Candidates.Push(owner, c) {
		log.Warn().Str("module", "orch").Str("owner", string(owner)).Msg("candidate buffer full, dropping candidate")
	}
}

func releaseSession(s *core.MediaSession) {
	if err := s.Release(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("owner", string(s.Owner())).Str("source", string(s.Source())).Msg("session release failed")
	}
}
