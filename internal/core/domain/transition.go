package domain

// Input is anything that can move a CallSession: a local intent, an inbound
// signal, a presence change, or the completion of a provider operation.
type Input interface{ isInput() }

type OpenPreview struct{}

type ClosePreview struct{}

type CaptureAcquired struct{ PreviewEpoch uint64 }

type CaptureFailed struct{ PreviewEpoch uint64 }

type Dial struct {
	ChannelID  ChannelID
	Peer       UserID
	CallID     CallID
	PeerOnline bool
}

type Answer struct{ Caller UserID }

type Reject struct{ Caller UserID }

type Hangup struct{}

type ToggleMute struct{}

type ToggleVideo struct{}

// SignalReceived carries what the local client knows about itself at the
// time the message is handled.
type SignalReceived struct {
	Msg              SignalMessage
	CaptureSupported bool
	CallsEnabled     bool
}

type PresenceChanged struct{ Change PresenceChange }

type SessionCreated struct{ Epoch uint64 }

type SessionCreateFailed struct{ Epoch uint64 }

type SessionEventReceived struct {
	Epoch uint64
	Event SessionEvent
}

func (OpenPreview) isInput()          {}
func (ClosePreview) isInput()         {}
func (CaptureAcquired) isInput()      {}
func (CaptureFailed) isInput()        {}
func (Dial) isInput()                 {}
func (Answer) isInput()               {}
func (Reject) isInput()               {}
func (Hangup) isInput()               {}
func (ToggleMute) isInput()           {}
func (ToggleVideo) isInput()          {}
func (SignalReceived) isInput()       {}
func (PresenceChanged) isInput()      {}
func (SessionCreated) isInput()       {}
func (SessionCreateFailed) isInput()  {}
func (SessionEventReceived) isInput() {}

// Effect is work the coordinator must carry out after a transition, in order.
type Effect interface{ isEffect() }

type AcquireCapture struct{ PreviewEpoch uint64 }

// AdoptCapture keeps the capture that just arrived.
type AdoptCapture struct{}

// DiscardCapture stops a capture that arrived for a closed preview.
type DiscardCapture struct{}

type ReleaseCapture struct{}

type CreateSession struct {
	Epoch uint64
	Peer  UserID
}

type JoinSession struct {
	Epoch  uint64
	Caller UserID
}

type AdoptSession struct{ Epoch uint64 }

// DiscardSession disconnects a session that arrived for an attempt already torn down.
type DiscardSession struct{}

type DisconnectSession struct{}

type SendSignal struct{ Msg SignalMessage }

type Publish struct{ Event Event }

type SetMuted struct{ Muted bool }

type SetPaused struct{ Paused bool }

type ApplyLayout struct{ Layout Layout }

type RecordCall struct {
	CallID    CallID
	ChannelID ChannelID
	Peer      UserID
	Role      Role
	Outcome   ErrorKind
	Connected bool
}

func (AcquireCapture) isEffect()    {}
func (AdoptCapture) isEffect()      {}
func (DiscardCapture) isEffect()    {}
func (ReleaseCapture) isEffect()    {}
func (CreateSession) isEffect()     {}
func (JoinSession) isEffect()       {}
func (AdoptSession) isEffect()      {}
func (DiscardSession) isEffect()    {}
func (DisconnectSession) isEffect() {}
func (SendSignal) isEffect()        {}
func (Publish) isEffect()           {}
func (SetMuted) isEffect()          {}
func (SetPaused) isEffect()         {}
func (ApplyLayout) isEffect()       {}
func (RecordCall) isEffect()        {}

// Transition is the call state machine. It never mutates s. The error is
// either an intent rejection (the returned session equals s) or a *CallError
// for an attempt that failed before it started.
func Transition(s CallSession, in Input) (CallSession, []Effect, error) {
	switch in := in.(type) {
	case OpenPreview:
		return openPreview(s)
	case ClosePreview:
		return closePreview(s)
	case CaptureAcquired:
		return captureAcquired(s, in)
	case CaptureFailed:
		return captureFailed(s, in)
	case Dial:
		return dial(s, in)
	case Answer:
		return answer(s, in)
	case Reject:
		return reject(s, in)
	case Hangup:
		return hangup(s)
	case ToggleMute:
		if s.Phase != PhaseConnected {
			return s, nil, ErrInvalidPhase
		}
		s.Muted = !s.Muted
		return s, []Effect{SetMuted{Muted: s.Muted}}, nil
	case ToggleVideo:
		if s.Phase != PhaseConnected {
			return s, nil, ErrInvalidPhase
		}
		s.Paused = !s.Paused
		return s, []Effect{SetPaused{Paused: s.Paused}}, nil
	case SignalReceived:
		return signalReceived(s, in)
	case PresenceChanged:
		return presenceChanged(s, in.Change)
	case SessionCreated:
		if in.Epoch != s.Epoch || s.Phase != PhaseNegotiating || !s.SessionPending {
			return s, []Effect{DiscardSession{}}, nil
		}
		s.SessionPending = false
		s.SessionOpen = true
		return s, []Effect{AdoptSession{Epoch: s.Epoch}}, nil
	case SessionCreateFailed:
		if in.Epoch != s.Epoch || s.Phase != PhaseNegotiating {
			return s, nil, nil
		}
		next, effects := teardown(s, ErrSessionCreationFailed, SignalCallFailed, EventFailed)
		return next, effects, nil
	case SessionEventReceived:
		return sessionEvent(s, in)
	}
	return s, nil, nil
}

func openPreview(s CallSession) (CallSession, []Effect, error) {
	s.SurfaceOpen = true
	if s.Phase.InCall() {
		return s, nil, nil
	}
	s.Phase = PhasePreviewing
	if s.CaptureHeld {
		return s, []Effect{ApplyLayout{Layout: LayoutPreview}}, nil
	}
	if s.CapturePending {
		return s, nil, nil
	}
	s.PreviewEpoch++
	s.CapturePending = true
	if s.LastError == ErrMediaUnavailable {
		s.LastError = ErrNone
	}
	return s, []Effect{AcquireCapture{PreviewEpoch: s.PreviewEpoch}}, nil
}

func closePreview(s CallSession) (CallSession, []Effect, error) {
	var effects []Effect
	switch s.Phase {
	case PhaseNegotiating, PhaseConnected:
		return s, nil, ErrCallInProgress
	case PhaseDialing:
		s, effects = teardown(s, ErrCancelledLocally, SignalCancelCall, EventCancelled)
	case PhaseIdle, PhasePreviewing:
		s.Phase = PhaseIdle
	}
	s.SurfaceOpen = false
	s.CapturePending = false
	s.PreviewEpoch++
	if s.CaptureHeld {
		s.CaptureHeld = false
		effects = append(effects, ReleaseCapture{})
	}
	return s, effects, nil
}

func captureAcquired(s CallSession, in CaptureAcquired) (CallSession, []Effect, error) {
	if in.PreviewEpoch != s.PreviewEpoch || !s.CapturePending || !s.SurfaceOpen {
		return s, []Effect{DiscardCapture{}}, nil
	}
	s.CapturePending = false
	s.CaptureHeld = true
	effects := []Effect{AdoptCapture{}}
	if !s.Phase.InCall() {
		effects = append(effects, ApplyLayout{Layout: LayoutPreview})
	}
	return s, effects, nil
}

func captureFailed(s CallSession, in CaptureFailed) (CallSession, []Effect, error) {
	if in.PreviewEpoch != s.PreviewEpoch || !s.CapturePending {
		return s, nil, nil
	}
	s.CapturePending = false
	s.LastError = ErrMediaUnavailable
	return s, []Effect{Publish{Event: s.event(EventPreviewFailed, ErrMediaUnavailable)}}, nil
}

func dial(s CallSession, in Dial) (CallSession, []Effect, error) {
	if s.Phase.InCall() {
		return s, nil, ErrCallInProgress
	}
	if !in.PeerOnline {
		s.LastError = ErrRemoteOffline
		ev := Event{
			Kind:      EventFailed,
			ChannelID: in.ChannelID,
			Peer:      in.Peer,
			Role:      RoleCaller,
			Reason:    ErrRemoteOffline,
			Supported: true,
		}
		return s, []Effect{Publish{Event: ev}}, NewCallError(ErrRemoteOffline, in.Peer, nil)
	}
	s.ChannelID = in.ChannelID
	s.CallID = in.CallID
	s.RemoteUserID = in.Peer
	s.Role = RoleCaller
	s.Phase = PhaseDialing
	s.Epoch++
	s.Muted, s.Paused = false, false
	s.SessionOpen, s.SessionPending = false, false
	s.LastError = ErrNone
	return s, []Effect{
		SendSignal{Msg: s.signal(SignalStartCall)},
		Publish{Event: s.event(EventIntentToCall, ErrNone)},
	}, nil
}

func answer(s CallSession, in Answer) (CallSession, []Effect, error) {
	if s.Phase != PhaseRinging {
		return s, nil, ErrInvalidPhase
	}
	if in.Caller != s.RemoteUserID {
		return s, nil, ErrPeerMismatch
	}
	s.Phase = PhaseNegotiating
	s.SessionPending = true
	return s, []Effect{
		SendSignal{Msg: s.signal(SignalAnswerCall)},
		Publish{Event: s.event(EventIntentToCall, ErrNone)},
		JoinSession{Epoch: s.Epoch, Caller: s.RemoteUserID},
	}, nil
}

func reject(s CallSession, in Reject) (CallSession, []Effect, error) {
	if s.Phase != PhaseRinging {
		return s, nil, ErrInvalidPhase
	}
	if in.Caller != s.RemoteUserID {
		return s, nil, ErrPeerMismatch
	}
	next, effects := teardown(s, ErrRejected, SignalRejectCall, EventRejected)
	return next, effects, nil
}

func hangup(s CallSession) (CallSession, []Effect, error) {
	var effects []Effect
	switch s.Phase {
	case PhaseDialing, PhaseNegotiating:
		s, effects = teardown(s, ErrCancelledLocally, SignalCancelCall, EventCancelled)
	case PhaseRinging:
		s, effects = teardown(s, ErrRejected, SignalRejectCall, EventRejected)
	case PhaseConnected:
		s, effects = teardown(s, ErrNone, "", EventEnded)
	default:
		return s, nil, ErrNoActiveCall
	}
	return s, effects, nil
}

func signalReceived(s CallSession, in SignalReceived) (CallSession, []Effect, error) {
	m := in.Msg
	if m.To != s.LocalUserID || !m.Kind.Valid() {
		return s, nil, nil
	}
	if m.Kind == SignalStartCall {
		return startCall(s, in)
	}
	if !s.Owns(m) {
		return s, nil, nil
	}

	var effects []Effect
	switch m.Kind {
	case SignalCancelCall:
		if s.Phase == PhaseConnected {
			s, effects = teardown(s, ErrCancelledByPeer, "", EventEnded)
		} else {
			s, effects = teardown(s, ErrCancelledByPeer, "", EventCancelled)
		}
	case SignalAnswerCall:
		if s.Phase != PhaseDialing || s.Role != RoleCaller {
			return s, nil, nil
		}
		s.Phase = PhaseNegotiating
		s.SessionPending = true
		effects = []Effect{CreateSession{Epoch: s.Epoch, Peer: s.RemoteUserID}}
	case SignalRejectCall:
		if s.Role != RoleCaller || (s.Phase != PhaseDialing && s.Phase != PhaseNegotiating) {
			return s, nil, nil
		}
		reason := ErrRejected
		if m.Reason == ErrBusy {
			reason = ErrBusy
		}
		s, effects = teardown(s, reason, "", EventRejected)
	case SignalNotSupported:
		if s.Phase != PhaseDialing {
			return s, nil, nil
		}
		s, effects = teardown(s, ErrNotSupportedByPeer, "", EventNotSupported)
	case SignalCallFailed:
		s, effects = teardown(s, ErrParticipantFailed, "", EventFailed)
	}
	return s, effects, nil
}

func startCall(s CallSession, in SignalReceived) (CallSession, []Effect, error) {
	m := in.Msg
	if s.Owns(m) {
		return s, nil, nil
	}
	if s.Phase.InCall() {
		// single call per client: a second caller is turned away, the active call is untouched
		busy := m.Reply(SignalRejectCall)
		busy.Reason = ErrBusy
		return s, []Effect{SendSignal{Msg: busy}}, nil
	}
	if !in.CallsEnabled || !in.CaptureSupported {
		reason := ErrNotSupportedByPeer
		if !in.CallsEnabled {
			reason = ErrCallsDisabled
		}
		ev := Event{
			Kind:      EventIncomingCall,
			ChannelID: m.ChannelID,
			CallID:    m.CallID,
			Peer:      m.From,
			Role:      RoleCallee,
			Reason:    reason,
			Supported: false,
		}
		return s, []Effect{
			SendSignal{Msg: m.Reply(SignalNotSupported)},
			Publish{Event: ev},
		}, nil
	}
	s.ChannelID = m.ChannelID
	s.CallID = m.CallID
	s.RemoteUserID = m.From
	s.Role = RoleCallee
	s.Phase = PhaseRinging
	s.Epoch++
	s.Muted, s.Paused = false, false
	s.SessionOpen, s.SessionPending = false, false
	s.LastError = ErrNone
	return s, []Effect{Publish{Event: s.event(EventIncomingCall, ErrNone)}}, nil
}

func presenceChanged(s CallSession, c PresenceChange) (CallSession, []Effect, error) {
	if c.Online || c.User != s.RemoteUserID || !s.Phase.InCall() {
		return s, nil, nil
	}
	var effects []Effect
	switch s.Phase {
	case PhaseDialing:
		s, effects = teardown(s, ErrRemoteOffline, SignalCancelCall, EventFailed)
	case PhaseRinging:
		s, effects = teardown(s, ErrRemoteOffline, "", EventCancelled)
	default:
		s, effects = teardown(s, ErrRemoteOffline, "", EventFailed)
	}
	return s, effects, nil
}

func sessionEvent(s CallSession, in SessionEventReceived) (CallSession, []Effect, error) {
	if in.Epoch != s.Epoch || !s.SessionOpen {
		return s, nil, nil
	}
	var effects []Effect
	switch in.Event.Kind {
	case SessionParticipantConnected:
		if s.Phase != PhaseNegotiating {
			return s, nil, nil
		}
		s.Phase = PhaseConnected
		s.Muted, s.Paused = false, false
		effects = []Effect{
			ApplyLayout{Layout: LayoutInCall},
			Publish{Event: s.event(EventConnected, ErrNone)},
		}
	case SessionParticipantFailed:
		s, effects = teardown(s, ErrParticipantFailed, SignalCallFailed, EventFailed)
	case SessionDisconnected:
		if s.Phase == PhaseConnected {
			s, effects = teardown(s, ErrNone, "", EventEnded)
		} else {
			s, effects = teardown(s, ErrSessionCreationFailed, SignalCallFailed, EventFailed)
		}
	}
	return s, effects, nil
}

// teardown ends the active attempt: optional outbound signal, session release,
// capture release unless the preview stays open, one bus event, one record.
// The returned session is Idle with a fresh epoch.
func teardown(s CallSession, reason ErrorKind, send SignalKind, kind EventKind) (CallSession, []Effect) {
	var effects []Effect
	if send != "" {
		effects = append(effects, SendSignal{Msg: s.signal(send)})
	}
	if s.SessionOpen {
		effects = append(effects, DisconnectSession{})
	}
	keepCapture := s.CaptureHeld && s.SurfaceOpen
	if s.CaptureHeld && !keepCapture {
		effects = append(effects, ReleaseCapture{})
	}
	if keepCapture && s.Phase == PhaseConnected {
		effects = append(effects, ApplyLayout{Layout: LayoutPreview})
	}

	ev := s.event(kind, reason)
	if kind == EventRejected && s.Role == RoleCallee {
		ev.Peer = s.LocalUserID
	}
	effects = append(effects, Publish{Event: ev})

	if s.Phase.InCall() {
		effects = append(effects, RecordCall{
			CallID:    s.CallID,
			ChannelID: s.ChannelID,
			Peer:      s.RemoteUserID,
			Role:      s.Role,
			Outcome:   reason,
			Connected: s.Phase == PhaseConnected,
		})
	}

	next := NewSession(s.LocalUserID)
	next.Epoch = s.Epoch + 1
	next.SurfaceOpen = s.SurfaceOpen
	next.PreviewEpoch = s.PreviewEpoch
	next.CaptureHeld = keepCapture
	next.CapturePending = s.CapturePending && s.SurfaceOpen
	if !reason.Quiet() {
		next.LastError = reason
	}
	return next, effects
}
