package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/groupcall/internal/app/sfu"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrPipelineReleased = errors.New("pipeline released")

// Pipeline groups the endpoints of one room around a shared relay manager.
type Pipeline struct {
	id     string
	fabric *Fabric
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	released  bool
}

func newPipeline(f *Fabric, id string) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		id:        id,
		fabric:    f,
		relays:    sfu.NewRelayManager(),
		ctx:       ctx,
		cancel:    cancel,
		endpoints: make(map[string]*Endpoint),
	}
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) CreateEndpoint(ctx context.Context, kind core.EndpointKind, owner domain.UserID) (core.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := p.fabric.api.NewPeerConnection(p.fabric.config)
	if err != nil {
		return nil, err
	}
	ep := newEndpoint(p, uuid.NewString(), kind, owner, pc)

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		_ = pc.Close()
		return nil, ErrPipelineReleased
	}
	p.endpoints[ep.id] = ep
	p.mu.Unlock()

	ep.start(p.ctx)
	log.Info().Str("module", "rtc").Str("pipeline", p.id).Str("endpoint", ep.id).Str("kind", kind.String()).Str("owner", string(owner)).Msg("endpoint created")
	return ep, nil
}

func (p *Pipeline) EndpointCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

func (p *Pipeline) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.endpoints, id)
}

func (p *Pipeline) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	endpoints := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	var errs []error
	for _, ep := range endpoints {
		errs = append(errs, ep.Release())
	}
	p.relays.Close()
	p.cancel()
	log.Info().Str("module", "rtc").Str("pipeline", p.id).Int("endpoints", len(endpoints)).Msg("pipeline released")
	return errors.Join(errs...)
}
