package core

import (
	"sync"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// CandidateBuffer holds remote ICE candidates that arrived before the
// session they target existed. Queues are keyed by the participant whose
// stream the candidates describe and keep arrival order.
type CandidateBuffer struct {
	mu     sync.Mutex
	queues map[domain.UserID][]webrtc.ICECandidateInit
	limit  int
}

// NewCandidateBuffer returns a buffer keeping at most limit candidates per
// stream owner. A limit <= 0 disables the cap.
func NewCandidateBuffer(limit int) *CandidateBuffer {
	return &CandidateBuffer{
		queues: make(map[domain.UserID][]webrtc.ICECandidateInit),
		limit:  limit,
	}
}

// Push appends c to owner's queue. It reports false when the queue is full
// and c was dropped.
func (b *CandidateBuffer) Push(owner domain.UserID, c webrtc.ICECandidateInit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[owner]
	if b.limit > 0 && len(q) >= b.limit {
		return false
	}
	b.queues[owner] = append(q, c)
	return true
}

// Drain removes and returns owner's queue in arrival order.
func (b *CandidateBuffer) Drain(owner domain.UserID) []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[owner]
	delete(b.queues, owner)
	return q
}

// Discard drops owner's queue and returns how many candidates it held.
func (b *CandidateBuffer) Discard(owner domain.UserID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.queues[owner])
	delete(b.queues, owner)
	return n
}

func (b *CandidateBuffer) Len(owner domain.UserID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[owner])
}
