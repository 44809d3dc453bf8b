package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Transport carries negotiation payloads to the peer, usually over the relay.
type Transport interface {
	SendMedia(ctx context.Context, to domain.UserID, payload json.RawMessage) error
	OnMedia(fn func(from domain.UserID, payload json.RawMessage)) (cancel func())
}

type messageType string

const (
	msgOffer     messageType = "offer"
	msgAnswer    messageType = "answer"
	msgCandidate messageType = "candidate"
	msgBye       messageType = "bye"
)

type message struct {
	Type      messageType                `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

var ErrSessionExists = errors.New("media session with this peer already exists")

// Provider implements port.MediaProvider on pion/webrtc peer connections.
type Provider struct {
	api              *webrtc.API
	config           webrtc.Configuration
	transport        Transport
	captureSupported bool

	mu       sync.Mutex
	sessions map[domain.UserID]*Session
	// negotiation that arrived before the matching JoinSession
	early map[domain.UserID][]message

	cancel func()
}

func NewProvider(transport Transport, iceServers []string, captureSupported bool) (*Provider, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	p := &Provider{
		api:              api,
		config:           config,
		transport:        transport,
		captureSupported: captureSupported,
		sessions:         make(map[domain.UserID]*Session),
		early:            make(map[domain.UserID][]message),
	}
	p.cancel = transport.OnMedia(p.handleMedia)
	return p, nil
}

// Close disconnects every session and stops listening for negotiation.
func (p *Provider) Close() error {
	p.cancel()

	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		_ = s.Disconnect()
	}
	return nil
}

func (p *Provider) CaptureSupported() bool {
	return p.captureSupported
}

func (p *Provider) AcquireLocalCapture(ctx context.Context) (port.Capture, error) {
	if !p.captureSupported {
		return nil, ErrCaptureUnavailable
	}
	return newCapture(uuid.NewString())
}

func (p *Provider) CreateSession(ctx context.Context, peer domain.UserID, capture port.Capture) (port.MediaSession, error) {
	s, err := p.newSession(peer, capture)
	if err != nil {
		return nil, err
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		_ = s.Disconnect()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		_ = s.Disconnect()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	if err := s.send(ctx, message{Type: msgOffer, SDP: s.pc.LocalDescription()}); err != nil {
		_ = s.Disconnect()
		return nil, fmt.Errorf("send offer: %w", err)
	}
	return s, nil
}

// JoinSession waits for the caller's offer. An offer that already arrived is
// applied immediately.
func (p *Provider) JoinSession(ctx context.Context, caller domain.UserID, capture port.Capture) (port.MediaSession, error) {
	s, err := p.newSession(caller, capture)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	early := p.early[caller]
	delete(p.early, caller)
	p.mu.Unlock()

	for _, m := range early {
		s.handle(m)
	}
	return s, nil
}

func (p *Provider) newSession(peer domain.UserID, capture port.Capture) (*Session, error) {
	p.mu.Lock()
	if _, ok := p.sessions[peer]; ok {
		p.mu.Unlock()
		return nil, ErrSessionExists
	}
	p.mu.Unlock()

	c, owned, err := p.sessionCapture(capture)
	if err != nil {
		return nil, err
	}

	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		if owned {
			_ = c.Stop()
		}
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := newSession(p, peer, pc, c, owned)
	if err := s.start(); err != nil {
		_ = s.Disconnect()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[peer]; ok {
		go s.Disconnect()
		return nil, ErrSessionExists
	}
	p.sessions[peer] = s
	return s, nil
}

// sessionCapture returns the capture to send. Without one from the caller a
// capture owned by the session is created, or nil if this client has none.
func (p *Provider) sessionCapture(capture port.Capture) (*Capture, bool, error) {
	if c, ok := capture.(*Capture); ok && c != nil {
		return c, false, nil
	}
	if capture != nil {
		log.Warn().Msgf("Ignoring foreign capture %T", capture)
	}
	if !p.captureSupported {
		return nil, false, nil
	}
	c, err := newCapture(uuid.NewString())
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (p *Provider) remove(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.sessions[s.peer]; ok && current == s {
		delete(p.sessions, s.peer)
	}
}

func (p *Provider) handleMedia(from domain.UserID, payload json.RawMessage) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Warn().Err(err).Str("from", from.String()).Msg("Invalid media negotiation payload")
		return
	}

	p.mu.Lock()
	s, ok := p.sessions[from]
	if !ok {
		switch m.Type {
		case msgOffer, msgCandidate:
			// candidates may overtake the offer; the session holds them until the remote description is set
			p.early[from] = append(p.early[from], m)
		case msgBye:
			delete(p.early, from)
		}
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	s.handle(m)
}
