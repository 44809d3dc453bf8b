package port

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// RealTimeGateway reaches clients connected to this relay.
type RealTimeGateway interface {
	SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalMessage) error
	SendMedia(ctx context.Context, userID domain.UserID, from domain.UserID, payload json.RawMessage) error
	SendPresence(ctx context.Context, userID domain.UserID, change domain.PresenceChange) error
	BroadcastPresence(ctx context.Context, change domain.PresenceChange) error
	IsConnected(userID domain.UserID) bool
}

type RelayMetrics interface {
	SignalRouted(kind domain.SignalKind)
	SignalDropped(reason string)
	MediaRelayed()
	ClientConnected()
	ClientDisconnected()
}
