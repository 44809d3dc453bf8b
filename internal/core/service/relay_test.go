package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	presencemem "github.com/Wyydra/yacall/internal/adapter/driven/presence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalMessage) error {
	args := m.Called(ctx, userID, msg)
	return args.Error(0)
}

func (m *MockGateway) SendMedia(ctx context.Context, userID domain.UserID, from domain.UserID, payload json.RawMessage) error {
	args := m.Called(ctx, userID, from, payload)
	return args.Error(0)
}

func (m *MockGateway) SendPresence(ctx context.Context, userID domain.UserID, change domain.PresenceChange) error {
	args := m.Called(ctx, userID, change)
	return args.Error(0)
}

func (m *MockGateway) BroadcastPresence(ctx context.Context, change domain.PresenceChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockGateway) IsConnected(userID domain.UserID) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) SignalRouted(kind domain.SignalKind) { m.Called(kind) }
func (m *MockMetrics) SignalDropped(reason string)         { m.Called(reason) }
func (m *MockMetrics) MediaRelayed()                       { m.Called() }
func (m *MockMetrics) ClientConnected()                    { m.Called() }
func (m *MockMetrics) ClientDisconnected()                 { m.Called() }

func newRelay() (*RelayService, *MockGateway, *MockMetrics, *presencemem.PresenceRepository) {
	gw := new(MockGateway)
	metrics := new(MockMetrics)
	store := presencemem.NewPresenceRepository()
	return NewRelayService(gw, store, metrics), gw, metrics, store
}

func TestRelay_HandleSignal_Routes(t *testing.T) {
	relay, gw, metrics, _ := newRelay()
	ctx := context.Background()
	alice, bob := domain.NewUserID(), domain.NewUserID()
	msg := domain.NewSignal(domain.SignalStartCall, domain.NewChannelID(), domain.NewCallID(), alice, bob)

	gw.On("IsConnected", bob).Return(true)
	gw.On("SendSignal", ctx, bob, msg).Return(nil).Once()
	metrics.On("SignalRouted", domain.SignalStartCall).Once()

	require.NoError(t, relay.HandleSignal(ctx, alice, msg))

	gw.AssertExpectations(t)
	metrics.AssertExpectations(t)
}

func TestRelay_HandleSignal_Rejects(t *testing.T) {
	alice, bob := domain.NewUserID(), domain.NewUserID()
	channel, callID := domain.NewChannelID(), domain.NewCallID()

	tests := []struct {
		name    string
		msg     domain.SignalMessage
		wantErr error
		reason  string
	}{
		{
			name:    "spoofed sender",
			msg:     domain.NewSignal(domain.SignalStartCall, channel, callID, domain.NewUserID(), bob),
			wantErr: ErrSpoofedSender,
			reason:  "spoofed",
		},
		{
			name:    "unknown kind",
			msg:     domain.NewSignal("ring", channel, callID, alice, bob),
			wantErr: ErrInvalidSignal,
			reason:  "invalid",
		},
		{
			name:    "no addressee",
			msg:     domain.NewSignal(domain.SignalStartCall, channel, callID, alice, domain.UserID{}),
			wantErr: ErrInvalidSignal,
			reason:  "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, gw, metrics, _ := newRelay()
			metrics.On("SignalDropped", tt.reason).Once()

			err := relay.HandleSignal(context.Background(), alice, tt.msg)

			assert.ErrorIs(t, err, tt.wantErr)
			metrics.AssertExpectations(t)
			gw.AssertNotCalled(t, "SendSignal", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRelay_HandleSignal_DropsForOfflineAddressee(t *testing.T) {
	relay, gw, metrics, _ := newRelay()
	alice, bob := domain.NewUserID(), domain.NewUserID()
	msg := domain.NewSignal(domain.SignalCancelCall, domain.NewChannelID(), domain.NewCallID(), alice, bob)

	gw.On("IsConnected", bob).Return(false)
	metrics.On("SignalDropped", "offline").Once()

	require.NoError(t, relay.HandleSignal(context.Background(), alice, msg))
	gw.AssertNotCalled(t, "SendSignal", mock.Anything, mock.Anything, mock.Anything)
	metrics.AssertExpectations(t)
}

func TestRelay_HandleSignal_SendFailure(t *testing.T) {
	relay, gw, metrics, _ := newRelay()
	alice, bob := domain.NewUserID(), domain.NewUserID()
	msg := domain.NewSignal(domain.SignalAnswerCall, domain.NewChannelID(), domain.NewCallID(), alice, bob)
	boom := errors.New("write: broken pipe")

	gw.On("IsConnected", bob).Return(true)
	gw.On("SendSignal", mock.Anything, bob, msg).Return(boom)
	metrics.On("SignalDropped", "send_failed").Once()

	assert.ErrorIs(t, relay.HandleSignal(context.Background(), alice, msg), boom)
	metrics.AssertExpectations(t)
}

func TestRelay_HandleMedia(t *testing.T) {
	relay, gw, metrics, _ := newRelay()
	alice, bob, carol := domain.NewUserID(), domain.NewUserID(), domain.NewUserID()
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	gw.On("IsConnected", bob).Return(true)
	gw.On("IsConnected", carol).Return(false)
	gw.On("SendMedia", mock.Anything, bob, alice, payload).Return(nil).Once()
	metrics.On("MediaRelayed").Once()

	require.NoError(t, relay.HandleMedia(context.Background(), alice, bob, payload))
	require.NoError(t, relay.HandleMedia(context.Background(), alice, carol, payload))

	gw.AssertExpectations(t)
	metrics.AssertExpectations(t)
}

func TestRelay_ConnectSendsOnlineSnapshot(t *testing.T) {
	relay, gw, metrics, store := newRelay()
	ctx := context.Background()
	alice, bob := domain.NewUserID(), domain.NewUserID()
	require.NoError(t, store.SetOnline(ctx, bob))

	metrics.On("ClientConnected").Once()
	gw.On("SendPresence", ctx, alice, domain.PresenceChange{User: bob, Online: true}).Return(nil).Once()

	require.NoError(t, relay.Connect(ctx, alice))

	online, err := relay.QueryPresence(ctx, alice)
	require.NoError(t, err)
	assert.True(t, online)
	gw.AssertExpectations(t)
	metrics.AssertExpectations(t)

	metrics.On("ClientDisconnected").Once()
	relay.Release(alice)
	metrics.AssertExpectations(t)
	online, err = relay.QueryPresence(ctx, alice)
	require.NoError(t, err)
	assert.True(t, online, "a replaced connection leaves the user online")

	metrics.On("ClientDisconnected").Once()
	require.NoError(t, relay.Disconnect(ctx, alice))
	online, err = relay.QueryPresence(ctx, alice)
	require.NoError(t, err)
	assert.False(t, online)
	require.NoError(t, relay.Heartbeat(ctx, bob))
}

func TestRelay_RunBroadcastsPresence(t *testing.T) {
	relay, gw, _, store := newRelay()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bob := domain.NewUserID()

	var mu sync.Mutex
	var got []domain.PresenceChange
	gw.On("BroadcastPresence", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		got = append(got, args.Get(1).(domain.PresenceChange))
		mu.Unlock()
	}).Return(nil)

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// Watch registers asynchronously; keep toggling until the first change is seen.
	require.Eventually(t, func() bool {
		_ = store.SetOffline(ctx, bob)
		_ = store.SetOnline(ctx, bob)
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.SetOffline(ctx, bob))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := got[len(got)-1]
		return last.User == bob && !last.Online
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
