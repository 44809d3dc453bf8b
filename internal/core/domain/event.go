package domain

// EventKind names a call lifecycle event published on the call event bus.
type EventKind string

const (
	EventIntentToCall EventKind = "intent_to_call"
	EventIncomingCall EventKind = "incoming_call"
	EventCancelled    EventKind = "cancelled"
	EventRejected     EventKind = "rejected"
	EventConnected    EventKind = "connected"
	EventNotSupported EventKind = "not_supported"
	EventFailed       EventKind = "failed"
	EventEnded        EventKind = "ended"

	// EventPreviewFailed reports a capture failure while previewing. The
	// preview stays open and OpenPreview retries; no call attempt ended.
	EventPreviewFailed EventKind = "preview_failed"
)

// Event is what bus subscribers receive. Peer is the other party except for
// EventRejected, where it is the user who declined.
type Event struct {
	Kind      EventKind
	ChannelID ChannelID
	CallID    CallID
	Peer      UserID
	Role      Role
	Reason    ErrorKind
	// Supported is false on an EventIncomingCall the local client cannot take.
	Supported bool
}

// SessionEventKind is a notification coming from a provider media session.
type SessionEventKind int

const (
	SessionParticipantConnected SessionEventKind = iota
	SessionParticipantFailed
	SessionDisconnected
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionParticipantConnected:
		return "participant_connected"
	case SessionParticipantFailed:
		return "participant_failed"
	case SessionDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type SessionEvent struct {
	Kind        SessionEventKind
	Participant UserID
}

// Layout says which surface shows which stream.
type Layout int

const (
	// LayoutPreview shows the local capture on the primary surface.
	LayoutPreview Layout = iota
	// LayoutInCall moves the local capture to the secondary surface and the remote track to the primary one.
	LayoutInCall
)

type PresenceChange struct {
	User   UserID `json:"user_id"`
	Online bool   `json:"online"`
}
