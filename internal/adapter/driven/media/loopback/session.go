package loopback

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type Capture struct {
	provider *Provider

	mu      sync.Mutex
	muted   bool
	paused  bool
	stopped bool
}

func (c *Capture) Mute(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClosed
	}
	c.muted = muted
	return nil
}

func (c *Capture) Pause(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClosed
	}
	c.paused = paused
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	already := c.stopped
	c.stopped = true
	c.mu.Unlock()
	if !already {
		c.provider.releasedCapture()
	}
	return nil
}

func (c *Capture) State() (muted, paused, stopped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted, c.paused, c.stopped
}

type Session struct {
	provider    *Provider
	peer        domain.UserID
	capture     *Capture
	ownsCapture bool

	mu     sync.Mutex
	events chan domain.SessionEvent
	remote *Session
	layout domain.Layout
	closed bool
}

func link(caller, callee *Session) {
	caller.mu.Lock()
	callee.mu.Lock()
	closed := caller.closed || callee.closed
	if !closed {
		caller.remote = callee
		callee.remote = caller
	}
	callee.mu.Unlock()
	caller.mu.Unlock()

	if closed {
		return
	}
	caller.emit(domain.SessionEvent{Kind: domain.SessionParticipantConnected, Participant: caller.peer})
	callee.emit(domain.SessionEvent{Kind: domain.SessionParticipantConnected, Participant: callee.peer})
}

func (s *Session) Events() <-chan domain.SessionEvent {
	return s.events
}

func (s *Session) LocalCapture() port.Capture {
	return s.capture
}

func (s *Session) Attach(layout domain.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.layout = layout
	return nil
}

func (s *Session) Layout() domain.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// Fail reports the remote participant as failed.
func (s *Session) Fail() {
	s.emit(domain.SessionEvent{Kind: domain.SessionParticipantFailed, Participant: s.peer})
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	remote := s.remote
	s.remote = nil
	close(s.events)
	s.mu.Unlock()

	s.provider.x.forget(s)
	s.provider.releasedSession(s)
	if s.ownsCapture {
		_ = s.capture.Stop()
	}
	if remote != nil {
		remote.emit(domain.SessionEvent{Kind: domain.SessionDisconnected, Participant: s.provider.self})
	}
	return nil
}

func (s *Session) emit(ev domain.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
