package service

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// network is an in-process signaling relay. Each endpoint receives its
// messages on its own goroutine, in send order.
type network struct {
	mu        sync.Mutex
	endpoints map[domain.UserID]*endpoint
	online    map[domain.UserID]bool
	quit      chan struct{}
	wg        sync.WaitGroup
}

func newNetwork() *network {
	return &network{
		endpoints: make(map[domain.UserID]*endpoint),
		online:    make(map[domain.UserID]bool),
		quit:      make(chan struct{}),
	}
}

func (n *network) close() {
	close(n.quit)
	n.wg.Wait()
}

func (n *network) join(id domain.UserID) *endpoint {
	ep := &endpoint{net: n, self: id, queue: make(chan func(), 256)}
	n.mu.Lock()
	n.endpoints[id] = ep
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-n.quit:
				return
			case deliver := <-ep.queue:
				deliver()
			}
		}
	}()
	n.setOnline(id, true)
	return ep
}

func (n *network) setOnline(id domain.UserID, online bool) {
	n.mu.Lock()
	n.online[id] = online
	eps := make([]*endpoint, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		if ep.self != id {
			eps = append(eps, ep)
		}
	}
	n.mu.Unlock()

	change := domain.PresenceChange{User: id, Online: online}
	for _, ep := range eps {
		ep.queue <- func() {
			for _, fn := range ep.presenceHandlers() {
				fn(change)
			}
		}
	}
}

type endpoint struct {
	net   *network
	self  domain.UserID
	queue chan func()

	mu         sync.Mutex
	onSignal   []func(domain.SignalMessage)
	onPresence []func(domain.PresenceChange)
	sent       []domain.SignalMessage
}

func (e *endpoint) Send(ctx context.Context, msg domain.SignalMessage) error {
	e.mu.Lock()
	e.sent = append(e.sent, msg)
	e.mu.Unlock()

	e.net.mu.Lock()
	target, ok := e.net.endpoints[msg.To]
	online := e.net.online[msg.To]
	e.net.mu.Unlock()
	if !ok || !online {
		return nil
	}
	target.queue <- func() {
		for _, fn := range target.signalHandlers() {
			fn(msg)
		}
	}
	return nil
}

func (e *endpoint) OnSignal(fn func(domain.SignalMessage)) func() {
	e.mu.Lock()
	e.onSignal = append(e.onSignal, fn)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.onSignal = nil
		e.mu.Unlock()
	}
}

func (e *endpoint) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	return e.net.online[userID], nil
}

func (e *endpoint) OnPresence(fn func(domain.PresenceChange)) func() {
	e.mu.Lock()
	e.onPresence = append(e.onPresence, fn)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.onPresence = nil
		e.mu.Unlock()
	}
}

func (e *endpoint) subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.onSignal) > 0 && len(e.onPresence) > 0
}

func (e *endpoint) signalHandlers() []func(domain.SignalMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(domain.SignalMessage){}, e.onSignal...)
}

func (e *endpoint) presenceHandlers() []func(domain.PresenceChange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]func(domain.PresenceChange){}, e.onPresence...)
}

// sentKinds lists the kinds of every message this endpoint sent to peer.
func (e *endpoint) sentKinds(peer domain.UserID) []domain.SignalKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	var kinds []domain.SignalKind
	for _, m := range e.sent {
		if m.To == peer {
			kinds = append(kinds, m.Kind)
		}
	}
	return kinds
}
