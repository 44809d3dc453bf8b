package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingChannel delivers addressed call-control messages, at most once and
// in send order per sender.
type SignalingChannel interface {
	Send(ctx context.Context, msg domain.SignalMessage) error
	OnSignal(fn func(domain.SignalMessage)) (cancel func())
}

type PresenceOracle interface {
	IsOnline(ctx context.Context, userID domain.UserID) (bool, error)
	OnPresence(fn func(domain.PresenceChange)) (cancel func())
}
