package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// MediaProvider is the external capability that captures local media and
// establishes the media session with the peer.
type MediaProvider interface {
	// CaptureSupported reports whether this client can capture audio/video at all.
	CaptureSupported() bool
	AcquireLocalCapture(ctx context.Context) (Capture, error)
	// CreateSession invites peer. capture may be nil.
	CreateSession(ctx context.Context, peer domain.UserID, capture Capture) (MediaSession, error)
	// JoinSession accepts the invitation of caller. capture may be nil.
	JoinSession(ctx context.Context, caller domain.UserID, capture Capture) (MediaSession, error)
}

type Capture interface {
	Mute(muted bool) error
	Pause(paused bool) error
	Stop() error
}

type MediaSession interface {
	// Events is closed once the session is disconnected.
	Events() <-chan domain.SessionEvent
	// LocalCapture is the capture the session sends, never nil once created.
	LocalCapture() Capture
	Attach(layout domain.Layout) error
	Disconnect() error
}
