package core

import (
	"context"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type EndpointKind int

const (
	// EndpointPublisher receives a participant's own stream.
	EndpointPublisher EndpointKind = iota
	// EndpointSubscriber sends another participant's stream to a subscriber.
	EndpointSubscriber
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointPublisher:
		return "publisher"
	case EndpointSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// MediaFabric allocates media pipelines. One pipeline serves one room.
type MediaFabric interface {
	CreatePipeline(ctx context.Context) (Pipeline, error)
}

type Pipeline interface {
	ID() string
	CreateEndpoint(ctx context.Context, kind EndpointKind, owner domain.UserID) (Endpoint, error)
	// Release frees the pipeline and every endpoint still bound to it.
	Release() error
}

// Endpoint is one negotiated media session inside a pipeline.
type Endpoint interface {
	ID() string
	// ProcessOffer applies the remote offer and returns the local answer SDP.
	ProcessOffer(ctx context.Context, sdpOffer string) (string, error)
	GatherCandidates(ctx context.Context) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// Connect feeds this endpoint's incoming media into sink.
	Connect(ctx context.Context, sink Endpoint) error
	Release() error
}
