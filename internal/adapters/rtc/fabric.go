package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/groupcall/internal/app/sfu"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers []string
	// PLIInterval is how often keyframes are requested from publishers.
	// Zero keeps the interceptor's default.
	PLIInterval time.Duration
}

func DefaultWebRTCConfig(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// NewAPI builds a webrtc.API with the default codecs and interceptors plus
// a periodic PLI generator for published video.
func NewAPI(pliInterval time.Duration) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	var opts []intervalpli.GeneratorOption
	if pliInterval > 0 {
		opts = append(opts, intervalpli.GeneratorInterval(pliInterval))
	}
	pli, err := intervalpli.NewReceiverInterceptor(opts...)
	if err != nil {
		return nil, fmt.Errorf("create PLI interceptor: %w", err)
	}
	registry.Add(pli)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// Fabric is a core.MediaFabric running an in-process SFU per pipeline.
type Fabric struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFabric(cfg Config) (*Fabric, error) {
	api, err := NewAPI(cfg.PLIInterval)
	if err != nil {
		return nil, err
	}
	return &Fabric{api: api, config: DefaultWebRTCConfig(cfg.ICEServers)}, nil
}

func (f *Fabric) CreatePipeline(ctx context.Context) (core.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newPipeline(f, uuid.NewString())
	log.Info().Str("module", "rtc").Str("pipeline", p.id).Msg("pipeline created")
	return p, nil
}

var _ core.MediaFabric = (*Fabric)(nil)

// compile-time check that pion's remote track feeds the relay engine.
var _ sfu.Source = (*webrtc.TrackRemote)(nil)
