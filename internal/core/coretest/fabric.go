// Package coretest provides in-memory media fabric and transport fakes for
// exercising the signaling core without a media server or sockets.
package coretest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Op int

const (
	OpCreatePipeline Op = iota
	OpCreateEndpoint
	OpProcessOffer
	OpGather
	OpConnect
)

// Fabric is a core.MediaFabric that records every call.
type Fabric struct {
	// Gate, when set, blocks CreatePipeline until it is closed.
	Gate chan struct{}

	mu        sync.Mutex
	failures  map[Op]error
	pipelines []*Pipeline
	seq       atomic.Int64
}

func NewFabric() *Fabric {
	return &Fabric{failures: make(map[Op]error)}
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *Fabric) Fail(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

func (f *Fabric) failure(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op]
}

func (f *Fabric) Pipelines() []*Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Pipeline(nil), f.pipelines...)
}

func (f *Fabric) CreatePipeline(ctx context.Context) (core.Pipeline, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.failure(OpCreatePipeline); err != nil {
		return nil, err
	}
	p := &Pipeline{fabric: f, id: fmt.Sprintf("pipeline-%d", f.seq.Add(1))}
	f.mu.Lock()
	f.pipelines = append(f.pipelines, p)
	f.mu.Unlock()
	return p, nil
}

type Pipeline struct {
	fabric *Fabric
	id     string

	mu        sync.Mutex
	endpoints []*Endpoint
	released  bool
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) CreateEndpoint(_ context.Context, kind core.EndpointKind, owner domain.UserID) (core.Endpoint, error) {
	if err := p.fabric.failure(OpCreateEndpoint); err != nil {
		return nil, err
	}
	ep := &Endpoint{
		pipeline: p,
		id:       fmt.Sprintf("%s/ep-%d", p.id, p.fabric.seq.Add(1)),
		Kind:     kind,
		Owner:    owner,
	}
	p.mu.Lock()
	p.endpoints = append(p.endpoints, ep)
	p.mu.Unlock()
	return ep, nil
}

func (p *Pipeline) Endpoints() []*Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Endpoint(nil), p.endpoints...)
}

func (p *Pipeline) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pipeline) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}

type Endpoint struct {
	pipeline *Pipeline
	id       string
	Kind     core.EndpointKind
	Owner    domain.UserID

	mu         sync.Mutex
	candidates []webrtc.ICECandidateInit
	offers     []string
	sinks      []*Endpoint
	onICE      func(webrtc.ICECandidateInit)
	gathered   int
	released   bool
}

func (e *Endpoint) ID() string { return e.id }

func (e *Endpoint) ProcessOffer(_ context.Context, sdpOffer string) (string, error) {
	if err := e.pipeline.fabric.failure(OpProcessOffer); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offers = append(e.offers, sdpOffer)
	return "answer-from-" + e.id, nil
}

func (e *Endpoint) GatherCandidates(context.Context) error {
	if err := e.pipeline.fabric.failure(OpGather); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gathered++
	return nil
}

func (e *Endpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, c)
	return nil
}

func (e *Endpoint) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICE = fn
}

func (e *Endpoint) Connect(_ context.Context, sink core.Endpoint) error {
	if err := e.pipeline.fabric.failure(OpConnect); err != nil {
		return err
	}
	s, ok := sink.(*Endpoint)
	if !ok {
		return fmt.Errorf("coretest: foreign endpoint %T", sink)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
	return nil
}

func (e *Endpoint) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	return nil
}

// Discover simulates the fabric finding a local candidate.
func (e *Endpoint) Discover(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	fn := e.onICE
	e.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Candidates returns the candidate strings applied so far, in order.
func (e *Endpoint) Candidates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.candidates))
	for _, c := range e.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (e *Endpoint) Offers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.offers...)
}

func (e *Endpoint) Sinks() []*Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Endpoint(nil), e.sinks...)
}

func (e *Endpoint) Gathered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gathered
}

func (e *Endpoint) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}
