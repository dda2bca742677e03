package sfu

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// RelayManager fans published tracks out to subscriber sinks. Subscribers
// may register before the publisher's track arrives; they are attached
// when the relay starts.
type RelayManager struct {
	mu      sync.RWMutex
	relays  map[Key]*Relay
	pending map[Key]map[string]*OutTrack
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays:  make(map[Key]*Relay),
		pending: make(map[Key]map[string]*OutTrack),
	}
}

// StartRelay creates the relay for key and starts its loop. A previous relay
// for key is stopped; its subscribers move to the new one.
func (m *RelayManager) StartRelay(ctx context.Context, key Key, src Source) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("key", key.String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay")
		old.mu.Lock()
		for dst, ot := range old.outTracks {
			if ot.GetState() != TrackStateDelete {
				relay.outTracks[dst] = ot
			}
		}
		old.outTracks = make(map[string]*OutTrack)
		old.mu.Unlock()
		old.cancel()
	}
	for dst, ot := range m.pending[key] {
		relay.outTracks[dst] = ot
	}
	delete(m.pending, key)
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Int("subscribers", relay.subscriberCount()).Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
	return relay
}

// AddSubscriber attaches sink to the relay of key for dst, or holds it until
// that relay starts.
func (m *RelayManager) AddSubscriber(key Key, dst string, sink Sink) *OutTrack {
	ot := NewOutTrack(sink)
	m.mu.Lock()
	defer m.mu.Unlock()
	if relay, ok := m.relays[key]; ok {
		relay.AddOutTrack(dst, ot)
		return ot
	}
	if m.pending[key] == nil {
		m.pending[key] = make(map[string]*OutTrack)
	}
	m.pending[key][dst] = ot
	return ot
}

// RemoveSubscriber detaches dst from every relay and pending list.
func (m *RelayManager) RemoveSubscriber(dst string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, relay := range m.relays {
		if ot, ok := relay.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
	for key, subs := range m.pending {
		delete(subs, dst)
		if len(subs) == 0 {
			delete(m.pending, key)
		}
	}
}

// Resume unmutes every out track delivering to dst.
func (m *RelayManager) Resume(dst string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		if ot, ok := relay.outTrack(dst); ok {
			ot.MarkOk()
		}
	}
	for _, subs := range m.pending {
		if ot, ok := subs[dst]; ok {
			ot.MarkOk()
		}
	}
}

// Pause mutes every out track delivering to dst.
func (m *RelayManager) Pause(dst string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		if ot, ok := relay.outTrack(dst); ok {
			ot.MarkMuted()
		}
	}
}

// StopSource stops every relay fed by source and drops subscribers still
// waiting for it.
func (m *RelayManager) StopSource(source string) {
	m.mu.Lock()
	var stopped []*Relay
	for key, relay := range m.relays {
		if key.Source == source {
			delete(m.relays, key)
			stopped = append(stopped, relay)
		}
	}
	for key := range m.pending {
		if key.Source == source {
			delete(m.pending, key)
		}
	}
	m.mu.Unlock()

	for _, relay := range stopped {
		relay.stop()
	}
}

// Close stops every relay.
func (m *RelayManager) Close() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[Key]*Relay)
	m.pending = make(map[Key]map[string]*OutTrack)
	m.mu.Unlock()

	for _, relay := range relays {
		relay.stop()
	}
}

// HasRelay reports whether a relay exists for key.
func (m *RelayManager) HasRelay(key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[key]
	return ok
}

// SrcTrack returns the source track of the relay for key.
func (m *RelayManager) SrcTrack(key Key) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[key]
	if !ok {
		return nil, false
	}
	return relay.Src, true
}

// PendingCount reports how many subscribers wait for key's relay.
func (m *RelayManager) PendingCount(key Key) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending[key])
}

func (r *Relay) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
