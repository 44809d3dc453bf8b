package domain

// CallSession is the state of the single call the local client may have.
// It is a value: Transition returns a new one instead of mutating it.
type CallSession struct {
	LocalUserID  UserID
	ChannelID    ChannelID
	CallID       CallID
	RemoteUserID UserID
	Role         Role
	Phase        Phase

	// Epoch grows on every attempt start and every teardown. Async provider
	// completions carry the epoch they were started in.
	Epoch uint64

	// SurfaceOpen is true while the local call surface (preview) is open.
	SurfaceOpen    bool
	PreviewEpoch   uint64
	CaptureHeld    bool
	CapturePending bool

	SessionOpen    bool
	SessionPending bool

	Muted  bool
	Paused bool

	LastError ErrorKind
}

func NewSession(local UserID) CallSession {
	return CallSession{LocalUserID: local, Phase: PhaseIdle}
}

// Owns reports whether m belongs to the active attempt: same channel, sent by
// the remote party, and the same call id when both sides know one.
func (s CallSession) Owns(m SignalMessage) bool {
	if !s.Phase.InCall() {
		return false
	}
	if m.ChannelID != s.ChannelID || m.From != s.RemoteUserID {
		return false
	}
	if !m.CallID.IsZero() && !s.CallID.IsZero() && m.CallID != s.CallID {
		return false
	}
	return true
}

func (s CallSession) signal(kind SignalKind) SignalMessage {
	return NewSignal(kind, s.ChannelID, s.CallID, s.LocalUserID, s.RemoteUserID)
}

func (s CallSession) event(kind EventKind, reason ErrorKind) Event {
	return Event{
		Kind:      kind,
		ChannelID: s.ChannelID,
		CallID:    s.CallID,
		Peer:      s.RemoteUserID,
		Role:      s.Role,
		Reason:    reason,
		Supported: true,
	}
}
