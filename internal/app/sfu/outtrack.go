package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Sink receives forwarded RTP. *webrtc.TrackLocalStaticRTP implements it.
type Sink interface {
	WriteRTP(p *rtp.Packet) error
}

// OutTrack is one subscriber's copy of a relayed track.
type OutTrack struct {
	Sink  Sink
	state atomic.Int32
}

// NewOutTrack returns a muted OutTrack; it starts receiving packets once
// marked ok.
func NewOutTrack(sink Sink) *OutTrack {
	ot := &OutTrack{Sink: sink}
	ot.state.Store(int32(TrackStateMuted))
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

// MarkOk unmutes the track unless it is already deleted.
func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
