package core

import (
	"errors"

	"github.com/dkeye/groupcall/internal/domain"
)

var ErrSelfSubscription = errors.New("participant cannot subscribe to itself")

// Participant is one connected user inside a room. It owns its outgoing
// session and one incoming session per peer it watches.
// Not safe for concurrent use; the room lock guards it.
type Participant struct {
	user *domain.User
	sid  SessionID

	outgoing *MediaSession
	incoming map[domain.UserID]*MediaSession
}

func NewParticipant(user *domain.User, sid SessionID) *Participant {
	return &Participant{
		user:     user,
		sid:      sid,
		incoming: make(map[domain.UserID]*MediaSession),
	}
}

func (p *Participant) ID() domain.UserID { return p.user.ID }
func (p *Participant) Name() string      { return p.user.Username }
func (p *Participant) User() domain.User { return *p.user }
func (p *Participant) SID() SessionID    { return p.sid }

func (p *Participant) Outgoing() *MediaSession { return p.outgoing }

func (p *Participant) SetOutgoing(s *MediaSession) { p.outgoing = s }

func (p *Participant) Incoming(from domain.UserID) (*MediaSession, bool) {
	s, ok := p.incoming[from]
	return s, ok
}

func (p *Participant) SetIncoming(from domain.UserID, s *MediaSession) error {
	if from == p.ID() {
		return ErrSelfSubscription
	}
	p.incoming[from] = s
	return nil
}

func (p *Participant) RemoveIncoming(from domain.UserID) (*MediaSession, bool) {
	s, ok := p.incoming[from]
	if ok {
		delete(p.incoming, from)
	}
	return s, ok
}

func (p *Participant) IncomingCount() int { return len(p.incoming) }

// Sessions returns the outgoing session followed by every incoming one.
func (p *Participant) Sessions() []*MediaSession {
	out := make([]*MediaSession, 0, len(p.incoming)+1)
	if p.outgoing != nil {
		out = append(out, p.outgoing)
	}
	for _, s := range p.incoming {
		out = append(out, s)
	}
	return out
}
