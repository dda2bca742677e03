package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEndpoint struct {
	mu         sync.Mutex
	candidates []string
	onICE      func(webrtc.ICECandidateInit)
	released   int
	offerErr   error
	gatherErr  error
	addErr     error
}

func (e *stubEndpoint) ID() string { return "ep" }

func (e *stubEndpoint) ProcessOffer(_ context.Context, sdp string) (string, error) {
	if e.offerErr != nil {
		return "", e.offerErr
	}
	return "answer:" + sdp, nil
}

func (e *stubEndpoint) GatherCandidates(context.Context) error { return e.gatherErr }

func (e *stubEndpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	if e.addErr != nil {
		return e.addErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, c.Candidate)
	return nil
}

func (e *stubEndpoint) OnICECandidate(fn func(webrtc.ICECandidateInit)) { e.onICE = fn }

func (e *stubEndpoint) Connect(context.Context, Endpoint) error { return nil }

func (e *stubEndpoint) Release() error {
	e.released++
	return nil
}

func cand(s string) webrtc.ICECandidateInit { return webrtc.ICECandidateInit{Candidate: s} }

func TestCandidateBufferKeepsOrderAndClearsOnDrain(t *testing.T) {
	b := NewCandidateBuffer(0)
	for _, c := range []string{"a", "b", "c"} {
		require.True(t, b.Push("X", cand(c)))
	}
	b.Push("Y", cand("y"))

	got := b.Drain("X")
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Candidate)
	assert.Equal(t, "b", got[1].Candidate)
	assert.Equal(t, "c", got[2].Candidate)

	assert.Empty(t, b.Drain("X"))
	assert.Equal(t, 1, b.Len("Y"))
}

func TestCandidateBufferLimitAndDiscard(t *testing.T) {
	b := NewCandidateBuffer(2)
	assert.True(t, b.Push("X", cand("a")))
	assert.True(t, b.Push("X", cand("b")))
	assert.False(t, b.Push("X", cand("c")))
	assert.Equal(t, 2, b.Discard("X"))
	assert.Equal(t, 0, b.Len("X"))
	assert.Equal(t, 0, b.Discard("X"))
}

func TestMediaSessionReplayAppliesInOrder(t *testing.T) {
	ep := &stubEndpoint{}
	s := NewMediaSession(ep, "A", "A")
	require.True(t, s.Outgoing())

	n, err := s.Replay([]webrtc.ICECandidateInit{cand("a"), cand("b"), cand("c")})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, ep.candidates)
}

func TestMediaSessionReplayReportsFailures(t *testing.T) {
	ep := &stubEndpoint{addErr: errors.New("bad candidate")}
	s := NewMediaSession(ep, "A", "B")
	require.False(t, s.Outgoing())

	n, err := s.Replay([]webrtc.ICECandidateInit{cand("a"), cand("b")})
	assert.Equal(t, 0, n)
	require.Error(t, err)
}

func TestMediaSessionNegotiation(t *testing.T) {
	ep := &stubEndpoint{}
	s := NewMediaSession(ep, "B", "A")

	answer, err := s.Negotiate(context.Background(), "offer")
	require.NoError(t, err)
	assert.Equal(t, "answer:offer", answer)
	s.MarkAnswerSent()
	require.NoError(t, s.StartGathering(context.Background()))
	assert.Equal(t, SessionState{OfferProcessed: true, AnswerSent: true, Gathering: true}, s.State())

	ep.offerErr = errors.New("sdp parse")
	_, err = s.Negotiate(context.Background(), "offer")
	require.ErrorIs(t, err, ErrNegotiationFailed)
}

func TestMediaSessionReleaseOnceAndSilencesCallbacks(t *testing.T) {
	ep := &stubEndpoint{}
	s := NewMediaSession(ep, "B", "A")

	var got []domain.UserID
	s.OnCandidate(func(source domain.UserID, _ webrtc.ICECandidateInit) {
		got = append(got, source)
	})
	ep.onICE(cand("x"))
	require.Equal(t, []domain.UserID{"A"}, got)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.Equal(t, 1, ep.released)

	ep.onICE(cand("y"))
	assert.Len(t, got, 1)
	assert.ErrorIs(t, s.AddCandidate(cand("z")), ErrSessionClosed)
}

func TestParticipantRejectsSelfIncoming(t *testing.T) {
	u, err := domain.NewUserWithID("A", "alice")
	require.NoError(t, err)
	p := NewParticipant(u, "A")

	err = p.SetIncoming("A", NewMediaSession(&stubEndpoint{}, "A", "A"))
	require.ErrorIs(t, err, ErrSelfSubscription)
	assert.Equal(t, 0, p.IncomingCount())

	p.SetOutgoing(NewMediaSession(&stubEndpoint{}, "A", "A"))
	require.NoError(t, p.SetIncoming("B", NewMediaSession(&stubEndpoint{}, "A", "B")))
	assert.Len(t, p.Sessions(), 2)

	s, ok := p.RemoveIncoming("B")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("B"), s.Source())
	_, ok = p.Incoming("B")
	assert.False(t, ok)
}

func TestRoomMembershipAndSnapshot(t *testing.T) {
	r := NewRoom("r1")
	assert.Nil(t, r.Pipeline())

	r.Lock()
	defer r.Unlock()
	for i, name := range []string{"alice", "bob", "carol"} {
		u, err := domain.NewUserWithID(domain.UserID(fmt.Sprint(i)), name)
		require.NoError(t, err)
		r.AddParticipant(NewParticipant(u, SessionID(u.ID)))
	}
	assert.Equal(t, 3, r.MemberCount())

	snap := r.Snapshot("1")
	assert.Len(t, snap, 2)
	for _, u := range snap {
		assert.NotEqual(t, domain.UserID("1"), u.ID)
	}

	_, ok := r.RemoveParticipant("1")
	require.True(t, ok)
	_, ok = r.RemoveParticipant("1")
	require.False(t, ok)
	assert.Equal(t, 2, r.MemberCount())
}

func TestRoomCompleteAllocationOnce(t *testing.T) {
	r := NewRoom("r1")
	boom := errors.New("boom")
	r.CompleteAllocation(nil, boom)
	r.CompleteAllocation(nil, nil)

	<-r.Ready()
	assert.ErrorIs(t, r.AllocErr(), boom)
	assert.Nil(t, r.Pipeline())
}
