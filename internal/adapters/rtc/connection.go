package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/groupcall/internal/app/sfu"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEndpointClosed  = errors.New("endpoint closed")
	ErrNoLocalAnswer   = errors.New("local description not set")
	ErrForeignEndpoint = errors.New("endpoint belongs to another pipeline")
	ErrWrongDirection  = errors.New("connect requires publisher source and subscriber sink")
)

// relayedKinds are the media kinds a publisher's stream is forwarded with.
var relayedKinds = []struct {
	kind  webrtc.RTPCodecType
	codec webrtc.RTPCodecCapability
}{
	{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}},
	{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}},
}

// Endpoint is a core.Endpoint backed by one PeerConnection.
type Endpoint struct {
	id       string
	kind     core.EndpointKind
	owner    domain.UserID
	pipeline *Pipeline
	pc       *webrtc.PeerConnection
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	onICE     func(webrtc.ICECandidateInit)
	remoteSet bool
	queued    []webrtc.ICECandidateInit
	closed    bool
}

func newEndpoint(p *Pipeline, id string, kind core.EndpointKind, owner domain.UserID, pc *webrtc.PeerConnection) *Endpoint {
	return &Endpoint{
		id:       id,
		kind:     kind,
		owner:    owner,
		pipeline: p,
		pc:       pc,
		logger: log.With().
			Str("module", "webrtc").
			Str("endpoint", id).
			Str("kind", kind.String()).
			Str("owner", string(owner)).
			Logger(),
	}
}

func (e *Endpoint) ID() string { return e.id }

func (e *Endpoint) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.ctx, e.cancel = ctx, cancel

	e.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		e.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			e.pipeline.relays.Resume(e.id)
		case webrtc.PeerConnectionStateDisconnected:
			e.pipeline.relays.Pause(e.id)
		}
	})

	e.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		e.mu.Lock()
		fn := e.onICE
		e.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	if e.kind != core.EndpointPublisher {
		return
	}
	e.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.logger.Info().
			Str("track_kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		e.pipeline.relays.StartRelay(ctx, sfu.Key{Source: e.id, Kind: track.Kind()}, track)
	})
}

// ProcessOffer applies the offer and returns the answer without waiting for
// gathering; local candidates trickle through OnICECandidate.
func (e *Endpoint) ProcessOffer(ctx context.Context, sdpOffer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.isClosed() {
		return "", ErrEndpointClosed
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer}
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	e.flushQueued()

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return e.pc.LocalDescription().SDP, nil
}

// GatherCandidates confirms gathering is under way. pion starts it when
// the local description is set.
func (e *Endpoint) GatherCandidates(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.isClosed() {
		return ErrEndpointClosed
	}
	if e.pc.LocalDescription() == nil {
		return ErrNoLocalAnswer
	}
	e.logger.Debug().Str("gathering_state", e.pc.ICEGatheringState().String()).Msg("gathering")
	return nil
}

// AddICECandidate queues candidates that arrive before the remote
// description and applies the rest directly.
func (e *Endpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEndpointClosed
	}
	if !e.remoteSet {
		e.queued = append(e.queued, c)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.pc.AddICECandidate(c)
}

func (e *Endpoint) flushQueued() {
	e.mu.Lock()
	e.remoteSet = true
	queued := e.queued
	e.queued = nil
	e.mu.Unlock()

	for _, c := range queued {
		if err := e.pc.AddICECandidate(c); err != nil {
			e.logger.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
}

// QueuedCandidates reports candidates waiting for the remote description.
func (e *Endpoint) QueuedCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued)
}

func (e *Endpoint) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICE = fn
}

// Connect adds one local track per relayed kind to sink and subscribes
// them to this endpoint's relays. Tracks are attached once the publisher's
// media arrives.
func (e *Endpoint) Connect(ctx context.Context, sink core.Endpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, ok := sink.(*Endpoint)
	if !ok || dst.pipeline != e.pipeline {
		return ErrForeignEndpoint
	}
	if e.kind != core.EndpointPublisher || dst.kind != core.EndpointSubscriber {
		return ErrWrongDirection
	}
	if e.isClosed() || dst.isClosed() {
		return ErrEndpointClosed
	}

	for _, rk := range relayedKinds {
		track, err := webrtc.NewTrackLocalStaticRTP(rk.codec, rk.kind.String(), e.id)
		if err != nil {
			return fmt.Errorf("new %s track: %w", rk.kind, err)
		}
		sender, err := dst.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", rk.kind, err)
		}
		key := sfu.Key{Source: e.id, Kind: rk.kind}
		e.pipeline.relays.AddSubscriber(key, dst.id, track)
		go dst.readRTCP(sender, e, key)
	}
	dst.logger.Info().Str("source", e.id).Msg("connected to publisher")
	return nil
}

// readRTCP drains the sender's RTCP and forwards keyframe requests to the
// publisher of key.
func (e *Endpoint) readRTCP(sender *webrtc.RTPSender, publisher *Endpoint, key sfu.Key) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				src, ok := e.pipeline.relays.SrcTrack(key)
				if !ok {
					continue
				}
				if err := publisher.pc.WriteRTCP([]rtcp.Packet{
					&rtcp.PictureLossIndication{MediaSSRC: uint32(src.SSRC())},
				}); err != nil {
					e.logger.Debug().Err(err).Msg("PLI forward failed")
					return
				}
			}
		}
	}
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Release closes the PeerConnection and detaches the endpoint from every
// relay. Later calls are no-ops.
func (e *Endpoint) Release() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.onICE = nil
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	if e.kind == core.EndpointPublisher {
		e.pipeline.relays.StopSource(e.id)
	}
	e.pipeline.relays.RemoveSubscriber(e.id)
	e.pipeline.forget(e.id)

	if err := e.pc.Close(); err != nil {
		e.logger.Error().Err(err).Msg("close error")
		return err
	}
	e.logger.Info().Msg("closed")
	return nil
}

var _ core.Endpoint = (*Endpoint)(nil)
