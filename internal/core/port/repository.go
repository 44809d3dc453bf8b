package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type CallHistory interface {
	Save(ctx context.Context, rec domain.CallRecord) error
	// List returns the most recent records first.
	List(ctx context.Context, limit int) ([]domain.CallRecord, error)
}

// PresenceStore is the relay-side source of truth for who is connected.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID domain.UserID) error
	SetOffline(ctx context.Context, userID domain.UserID) error
	// Refresh extends the online mark of a live connection.
	Refresh(ctx context.Context, userID domain.UserID) error
	IsOnline(ctx context.Context, userID domain.UserID) (bool, error)
	Online(ctx context.Context) ([]domain.UserID, error)
	// Watch calls fn for every change until ctx is done.
	Watch(ctx context.Context, fn func(domain.PresenceChange)) error
}
