// Package loopback is an in-process media provider. Sessions created and
// joined through the same Exchange are paired directly, with no network.
package loopback

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

var (
	ErrCaptureUnavailable = errors.New("loopback capture unavailable")
	ErrClosed             = errors.New("loopback session closed")
)

type pair struct {
	caller domain.UserID
	callee domain.UserID
}

// Exchange connects the providers of several local users.
type Exchange struct {
	mu      sync.Mutex
	invites map[pair]*Session
	joins   map[pair]*Session
}

func NewExchange() *Exchange {
	return &Exchange{
		invites: make(map[pair]*Session),
		joins:   make(map[pair]*Session),
	}
}

func (x *Exchange) Provider(self domain.UserID) *Provider {
	return &Provider{
		x:                x,
		self:             self,
		captureSupported: true,
		sessions:         make(map[domain.UserID]*Session),
	}
}

func (x *Exchange) invite(s *Session, key pair) {
	x.mu.Lock()
	other, ok := x.joins[key]
	if ok {
		delete(x.joins, key)
	} else {
		x.invites[key] = s
	}
	x.mu.Unlock()
	if ok {
		link(s, other)
	}
}

func (x *Exchange) join(s *Session, key pair) {
	x.mu.Lock()
	other, ok := x.invites[key]
	if ok {
		delete(x.invites, key)
	} else {
		x.joins[key] = s
	}
	x.mu.Unlock()
	if ok {
		link(other, s)
	}
}

func (x *Exchange) forget(s *Session) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for k, v := range x.invites {
		if v == s {
			delete(x.invites, k)
		}
	}
	for k, v := range x.joins {
		if v == s {
			delete(x.joins, k)
		}
	}
}

// Provider implements port.MediaProvider for one user. The knobs let tests
// make capture or session setup fail, or hold it until released.
type Provider struct {
	x    *Exchange
	self domain.UserID

	mu               sync.Mutex
	captureSupported bool
	captureErr       error
	sessionErr       error
	captureGate      chan struct{}
	sessionGate      chan struct{}
	openCaptures     int
	openSessions     int
	acquired         int
	created          int
	sessions         map[domain.UserID]*Session
}

func (p *Provider) SetCaptureSupported(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureSupported = ok
}

// FailCapture makes every acquisition fail with err until called with nil.
func (p *Provider) FailCapture(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureErr = err
}

// FailSessions makes CreateSession and JoinSession fail with err until called with nil.
func (p *Provider) FailSessions(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionErr = err
}

// HoldCapture blocks acquisitions until the returned release is called.
func (p *Provider) HoldCapture() (release func()) {
	return p.hold(&p.captureGate)
}

// HoldSessions blocks session setup until the returned release is called.
func (p *Provider) HoldSessions() (release func()) {
	return p.hold(&p.sessionGate)
}

func (p *Provider) hold(gate *chan struct{}) func() {
	ch := make(chan struct{})
	p.mu.Lock()
	*gate = ch
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if *gate == ch {
				*gate = nil
			}
			p.mu.Unlock()
			close(ch)
		})
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenCaptures counts captures acquired and not yet stopped.
func (p *Provider) OpenCaptures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openCaptures
}

// OpenSessions counts sessions created or joined and not yet disconnected.
func (p *Provider) OpenSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openSessions
}

// AcquiredCaptures counts every capture ever handed out, including the ones
// sessions create for themselves.
func (p *Provider) AcquiredCaptures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *Provider) CreatedSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

func (p *Provider) CaptureSupported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureSupported
}

func (p *Provider) AcquireLocalCapture(ctx context.Context) (port.Capture, error) {
	p.mu.Lock()
	gate, supported, failure := p.captureGate, p.captureSupported, p.captureErr
	p.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if !supported {
		return nil, ErrCaptureUnavailable
	}
	if failure != nil {
		return nil, failure
	}
	return p.newCapture(), nil
}

func (p *Provider) CreateSession(ctx context.Context, peer domain.UserID, capture port.Capture) (port.MediaSession, error) {
	s, err := p.newSession(ctx, peer, capture)
	if err != nil {
		return nil, err
	}
	p.x.invite(s, pair{caller: p.self, callee: peer})
	return s, nil
}

func (p *Provider) JoinSession(ctx context.Context, caller domain.UserID, capture port.Capture) (port.MediaSession, error) {
	s, err := p.newSession(ctx, caller, capture)
	if err != nil {
		return nil, err
	}
	p.x.join(s, pair{caller: caller, callee: p.self})
	return s, nil
}

func (p *Provider) newSession(ctx context.Context, peer domain.UserID, capture port.Capture) (*Session, error) {
	p.mu.Lock()
	gate, failure := p.sessionGate, p.sessionErr
	p.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	c, ok := capture.(*Capture)
	owned := false
	if !ok || c == nil {
		c = p.newCapture()
		owned = true
	}

	s := &Session{
		provider:    p,
		peer:        peer,
		capture:     c,
		ownsCapture: owned,
		events:      make(chan domain.SessionEvent, 8),
	}
	p.mu.Lock()
	p.openSessions++
	p.created++
	p.sessions[peer] = s
	p.mu.Unlock()
	return s, nil
}

// Session returns the latest open session with peer.
func (p *Provider) Session(peer domain.UserID) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[peer]
	return s, ok
}

func (p *Provider) newCapture() *Capture {
	p.mu.Lock()
	p.openCaptures++
	p.acquired++
	p.mu.Unlock()
	return &Capture{provider: p}
}

func (p *Provider) releasedCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openCaptures--
}

func (p *Provider) releasedSession(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openSessions--
	if current, ok := p.sessions[s.peer]; ok && current == s {
		delete(p.sessions, s.peer)
	}
}
