package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/yacall/internal/core/bus"
	"github.com/Wyydra/yacall/internal/core/domain"
)

var ErrNoIncomingCall = errors.New("no incoming call from this user")

// Presenter renders the incoming-call affordance.
type Presenter interface {
	ShowIncoming(ev domain.Event)
	ShowNotSupported(ev domain.Event)
	Dismiss(ev domain.Event)
}

// CallResponder is the part of the coordinator the notifier drives.
type CallResponder interface {
	Answer(ctx context.Context, caller domain.UserID) error
	Reject(ctx context.Context, caller domain.UserID) error
}

// Notifier shows incoming calls and forwards the user's answer or rejection
// to the coordinator, at most once per attempt.
type Notifier struct {
	responder CallResponder
	presenter Presenter

	mu      sync.Mutex
	pending *domain.Event
	// settled is the last attempt answered, rejected or ended while offered.
	settled *domain.Event

	unsubscribe []func()
}

func NewNotifier(events *bus.Bus, responder CallResponder, presenter Presenter) *Notifier {
	n := &Notifier{
		responder: responder,
		presenter: presenter,
	}
	n.unsubscribe = []func(){
		events.Subscribe(domain.EventIncomingCall, n.onIncoming),
		events.Subscribe(domain.EventCancelled, n.onEnded),
		events.Subscribe(domain.EventRejected, n.onEnded),
		events.Subscribe(domain.EventFailed, n.onEnded),
	}
	return n
}

func (n *Notifier) Close() {
	for _, unsub := range n.unsubscribe {
		unsub()
	}
}

// Pending returns the call currently offered to the user, if any.
func (n *Notifier) Pending() (domain.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil {
		return domain.Event{}, false
	}
	return *n.pending, true
}

func (n *Notifier) Answer(ctx context.Context, caller domain.UserID) error {
	ev, err := n.take(caller)
	if err != nil || ev == nil {
		return err
	}
	n.presenter.Dismiss(*ev)
	return n.responder.Answer(ctx, caller)
}

func (n *Notifier) Reject(ctx context.Context, caller domain.UserID) error {
	ev, err := n.take(caller)
	if err != nil || ev == nil {
		return err
	}
	n.presenter.Dismiss(*ev)
	return n.responder.Reject(ctx, caller)
}

// take claims the pending attempt from caller. It returns nil, nil when the
// attempt from caller was already answered or rejected.
func (n *Notifier) take(caller domain.UserID) (*domain.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pending == nil || n.pending.Peer != caller {
		if n.settled != nil && n.settled.Peer == caller {
			return nil, nil
		}
		return nil, ErrNoIncomingCall
	}
	ev := n.pending
	n.pending = nil
	n.settled = ev
	return ev, nil
}

func (n *Notifier) onIncoming(ev domain.Event) {
	if !ev.Supported {
		n.presenter.ShowNotSupported(ev)
		return
	}
	n.mu.Lock()
	n.pending = &ev
	n.settled = nil
	n.mu.Unlock()
	n.presenter.ShowIncoming(ev)
}

func (n *Notifier) onEnded(ev domain.Event) {
	if ev.Role != domain.RoleCallee {
		return
	}
	n.mu.Lock()
	pending := n.pending
	if pending == nil || pending.CallID != ev.CallID {
		n.mu.Unlock()
		return
	}
	n.pending = nil
	n.settled = pending
	n.mu.Unlock()
	n.presenter.Dismiss(*pending)
}
