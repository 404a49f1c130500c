// Package rtc is the media engine of the bridge, built on the pion ORTC API.
// Each router owns a pion API; ingest transports feed producers from loopback
// UDP and WebRTC transports fan producers out to browsers.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrEngineClosed = errors.New("engine closed")

type Config struct {
	// ListenIP restricts ICE host candidates to one local address.
	ListenIP string
	// AnnouncedIP replaces host candidate addresses, for servers behind 1:1 NAT.
	AnnouncedIP string
	PortMin     uint16
	PortMax     uint16
	ICELite     bool
	STUNURLs    []string
}

func DefaultConfig() Config {
	return Config{
		PortMin: 40000,
		PortMax: 49999,
		ICELite: true,
	}
}

type Engine struct {
	cfg Config

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, routers: make(map[string]*Router)}
}

func (e *Engine) CreateRouter(_ context.Context, codecs []core.RtpCodecCapability) (core.Router, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	m := &webrtc.MediaEngine{}
	caps := core.RtpCapabilities{Codecs: make([]core.RtpCodecCapability, 0, len(codecs))}
	for i, c := range codecs {
		if c.PreferredPayloadType == 0 {
			c.PreferredPayloadType = uint8(96 + i)
		}
		if err := m.RegisterCodec(toCodecParameters(c), codecType(c.Kind)); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
		caps.Codecs = append(caps.Codecs, c)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se, err := e.settingEngine()
	if err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)

	r := &Router{
		id:         uuid.NewString(),
		api:        api,
		caps:       caps,
		iceServers: e.iceServers(),
		producers:  make(map[string]*Producer),
		transports: make(map[string]core.Transport),
		logger:     log.With().Str("module", "rtc").Logger(),
	}
	r.logger = r.logger.With().Str("router", r.id).Logger()

	e.mu.Lock()
	e.routers[r.id] = r
	e.mu.Unlock()

	r.logger.Info().Int("codecs", len(caps.Codecs)).Msg("router created")
	return r, nil
}

func (e *Engine) settingEngine() (webrtc.SettingEngine, error) {
	se := webrtc.SettingEngine{}
	if e.cfg.PortMin != 0 && e.cfg.PortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(e.cfg.PortMin, e.cfg.PortMax); err != nil {
			return se, fmt.Errorf("udp port range: %w", err)
		}
	}
	if e.cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{e.cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if e.cfg.ListenIP != "" {
		listen := net.ParseIP(e.cfg.ListenIP)
		if listen == nil {
			return se, fmt.Errorf("invalid listen ip %q", e.cfg.ListenIP)
		}
		se.SetIPFilter(func(ip net.IP) bool { return ip.Equal(listen) })
	}
	se.SetLite(e.cfg.ICELite)
	return se, nil
}

func (e *Engine) iceServers() []webrtc.ICEServer {
	if e.cfg.ICELite || len(e.cfg.STUNURLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: e.cfg.STUNURLs}}
}

// Close closes every transport of every router.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	clear(e.routers)
	e.mu.Unlock()

	var errs []error
	for _, r := range routers {
		errs = append(errs, r.close())
	}
	return errors.Join(errs...)
}
