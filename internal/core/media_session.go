package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrSessionClosed = errors.New("media session closed")

// SessionState is a snapshot of a session's negotiation progress.
type SessionState struct {
	OfferProcessed bool
	AnswerSent     bool
	Gathering      bool
}

// MediaSession wraps one fabric endpoint for a single direction between two
// participants, or a participant and itself for the outgoing stream.
// Negotiation state is guarded by the owning room's lock; closed is not,
// so endpoint callbacks can check it from any goroutine.
type MediaSession struct {
	endpoint Endpoint
	owner    domain.UserID
	source   domain.UserID

	state  SessionState
	closed atomic.Bool
}

func NewMediaSession(ep Endpoint, owner, source domain.UserID) *MediaSession {
	return &MediaSession{endpoint: ep, owner: owner, source: source}
}

func (s *MediaSession) Endpoint() Endpoint    { return s.endpoint }
func (s *MediaSession) Owner() domain.UserID  { return s.owner }
func (s *MediaSession) Source() domain.UserID { return s.source }
func (s *MediaSession) Outgoing() bool        { return s.owner == s.source }
func (s *MediaSession) State() SessionState   { return s.state }
func (s *MediaSession) Closed() bool          { return s.closed.Load() }

func (s *MediaSession) AddCandidate(c webrtc.ICECandidateInit) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	return s.endpoint.AddICECandidate(c)
}

// Replay applies buffered candidates in order. Every candidate is attempted
// even if an earlier one fails.
func (s *MediaSession) Replay(cands []webrtc.ICECandidateInit) (int, error) {
	var errs []error
	applied := 0
	for _, c := range cands {
		if err := s.AddCandidate(c); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// OnCandidate forwards locally discovered candidates to fn until the
// session is released.
func (s *MediaSession) OnCandidate(fn func(source domain.UserID, c webrtc.ICECandidateInit)) {
	s.endpoint.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if s.Closed() {
			return
		}
		fn(s.source, c)
	})
}

func (s *MediaSession) Negotiate(ctx context.Context, sdpOffer string) (string, error) {
	if s.Closed() {
		return "", ErrSessionClosed
	}
	answer, err := s.endpoint.ProcessOffer(ctx, sdpOffer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	s.state.OfferProcessed = true
	return answer, nil
}

func (s *MediaSession) MarkAnswerSent() { s.state.AnswerSent = true }

func (s *MediaSession) StartGathering(ctx context.Context) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.endpoint.GatherCandidates(ctx); err != nil {
		return fmt.Errorf("%w: gather candidates: %v", ErrNegotiationFailed, err)
	}
	s.state.Gathering = true
	return nil
}

// Release frees the endpoint once; later calls are no-ops.
func (s *MediaSession) Release() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.endpoint.Release()
}
