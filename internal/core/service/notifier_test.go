package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/core/bus"
	"github.com/Wyydra/yacall/internal/core/domain"
)

type MockResponder struct {
	mock.Mock
}

func (m *MockResponder) Answer(ctx context.Context, caller domain.UserID) error {
	args := m.Called(ctx, caller)
	return args.Error(0)
}

func (m *MockResponder) Reject(ctx context.Context, caller domain.UserID) error {
	args := m.Called(ctx, caller)
	return args.Error(0)
}

type MockPresenter struct {
	mock.Mock
}

func (m *MockPresenter) ShowIncoming(ev domain.Event) {
	m.Called(ev)
}

func (m *MockPresenter) ShowNotSupported(ev domain.Event) {
	m.Called(ev)
}

func (m *MockPresenter) Dismiss(ev domain.Event) {
	m.Called(ev)
}

func incomingCall(caller domain.UserID) domain.Event {
	return domain.Event{
		Kind:      domain.EventIncomingCall,
		ChannelID: domain.NewChannelID(),
		CallID:    domain.NewCallID(),
		Peer:      caller,
		Role:      domain.RoleCallee,
		Supported: true,
	}
}

func TestNotifier_AnswerOnce(t *testing.T) {
	events := bus.New()
	responder := new(MockResponder)
	presenter := new(MockPresenter)
	n := NewNotifier(events, responder, presenter)
	defer n.Close()

	caller := domain.NewUserID()
	ev := incomingCall(caller)
	ctx := context.Background()

	presenter.On("ShowIncoming", ev).Return().Once()
	presenter.On("Dismiss", ev).Return().Once()
	responder.On("Answer", ctx, caller).Return(nil).Once()

	events.Publish(ev)
	pending, ok := n.Pending()
	require.True(t, ok)
	assert.Equal(t, ev, pending)

	require.NoError(t, n.Answer(ctx, caller))
	require.NoError(t, n.Answer(ctx, caller))
	require.NoError(t, n.Reject(ctx, caller))
	assert.ErrorIs(t, n.Answer(ctx, domain.NewUserID()), ErrNoIncomingCall, "settled attempt belongs to another caller")

	_, ok = n.Pending()
	assert.False(t, ok)
	responder.AssertExpectations(t)
	presenter.AssertExpectations(t)
	responder.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything)
}

func TestNotifier_Reject(t *testing.T) {
	events := bus.New()
	responder := new(MockResponder)
	presenter := new(MockPresenter)
	n := NewNotifier(events, responder, presenter)
	defer n.Close()

	caller := domain.NewUserID()
	ev := incomingCall(caller)
	ctx := context.Background()

	presenter.On("ShowIncoming", ev).Return()
	presenter.On("Dismiss", ev).Return().Once()
	responder.On("Reject", ctx, caller).Return(nil).Once()

	events.Publish(ev)
	require.NoError(t, n.Reject(ctx, caller))

	responder.AssertExpectations(t)
	presenter.AssertExpectations(t)
}

func TestNotifier_NoIncomingCall(t *testing.T) {
	n := NewNotifier(bus.New(), new(MockResponder), new(MockPresenter))
	defer n.Close()

	assert.ErrorIs(t, n.Answer(context.Background(), domain.NewUserID()), ErrNoIncomingCall)
}

func TestNotifier_WrongCaller(t *testing.T) {
	events := bus.New()
	presenter := new(MockPresenter)
	n := NewNotifier(events, new(MockResponder), presenter)
	defer n.Close()

	ev := incomingCall(domain.NewUserID())
	presenter.On("ShowIncoming", ev).Return()
	events.Publish(ev)

	assert.ErrorIs(t, n.Answer(context.Background(), domain.NewUserID()), ErrNoIncomingCall)
	_, ok := n.Pending()
	assert.True(t, ok)
}

func TestNotifier_DismissedWhenCallerGivesUp(t *testing.T) {
	for _, kind := range []domain.EventKind{domain.EventCancelled, domain.EventRejected, domain.EventFailed} {
		t.Run(string(kind), func(t *testing.T) {
			events := bus.New()
			responder := new(MockResponder)
			presenter := new(MockPresenter)
			n := NewNotifier(events, responder, presenter)
			defer n.Close()

			caller := domain.NewUserID()
			ev := incomingCall(caller)
			presenter.On("ShowIncoming", ev).Return()
			presenter.On("Dismiss", ev).Return().Once()

			events.Publish(ev)

			// an event for another attempt leaves the banner alone
			other := ev
			other.Kind = kind
			other.CallID = domain.NewCallID()
			events.Publish(other)

			ended := ev
			ended.Kind = kind
			events.Publish(ended)

			_, ok := n.Pending()
			assert.False(t, ok)

			// answering after the caller gave up is a no-op
			require.NoError(t, n.Answer(context.Background(), caller))
			responder.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
			presenter.AssertExpectations(t)
		})
	}
}

func TestNotifier_IgnoresCallerSideEvents(t *testing.T) {
	events := bus.New()
	presenter := new(MockPresenter)
	n := NewNotifier(events, new(MockResponder), presenter)
	defer n.Close()

	ev := incomingCall(domain.NewUserID())
	presenter.On("ShowIncoming", ev).Return()
	events.Publish(ev)

	outgoing := ev
	outgoing.Kind = domain.EventCancelled
	outgoing.Role = domain.RoleCaller
	events.Publish(outgoing)

	_, ok := n.Pending()
	assert.True(t, ok)
	presenter.AssertNotCalled(t, "Dismiss", mock.Anything)
}

func TestNotifier_NotSupported(t *testing.T) {
	events := bus.New()
	presenter := new(MockPresenter)
	n := NewNotifier(events, new(MockResponder), presenter)
	defer n.Close()

	ev := incomingCall(domain.NewUserID())
	ev.Supported = false
	ev.Reason = domain.ErrNotSupportedByPeer
	presenter.On("ShowNotSupported", ev).Return().Once()

	events.Publish(ev)

	_, ok := n.Pending()
	assert.False(t, ok)
	presenter.AssertExpectations(t)
	presenter.AssertNotCalled(t, "ShowIncoming", mock.Anything)
}

func TestNotifier_Close(t *testing.T) {
	events := bus.New()
	presenter := new(MockPresenter)
	n := NewNotifier(events, new(MockResponder), presenter)
	n.Close()

	events.Publish(incomingCall(domain.NewUserID()))

	_, ok := n.Pending()
	assert.False(t, ok)
	presenter.AssertNotCalled(t, "ShowIncoming", mock.Anything)
}
