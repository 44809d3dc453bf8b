package domain

type SignalKind string

const (
	SignalStartCall    SignalKind = "start_call"
	SignalCancelCall   SignalKind = "cancel_call"
	SignalAnswerCall   SignalKind = "answer_call"
	SignalRejectCall   SignalKind = "reject_call"
	SignalNotSupported SignalKind = "not_supported"
	SignalCallFailed   SignalKind = "call_failed"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalStartCall, SignalCancelCall, SignalAnswerCall,
		SignalRejectCall, SignalNotSupported, SignalCallFailed:
		return true
	}
	return false
}

// SignalMessage is one addressed call-control message between two clients.
// CallID is copied from the StartCall into every reply of the same attempt.
// Reason is only set on a RejectCall sent by a client already in a call.
type SignalMessage struct {
	ChannelID ChannelID  `json:"channel_id"`
	CallID    CallID     `json:"call_id"`
	From      UserID     `json:"from_id"`
	To        UserID     `json:"to_id"`
	Kind      SignalKind `json:"kind"`
	Reason    ErrorKind  `json:"reason,omitempty"`
}

func NewSignal(kind SignalKind, channelID ChannelID, callID CallID, from, to UserID) SignalMessage {
	return SignalMessage{
		ChannelID: channelID,
		CallID:    callID,
		From:      from,
		To:        to,
		Kind:      kind,
	}
}

// Reply builds a message of the given kind going back to the sender of m.
func (m SignalMessage) Reply(kind SignalKind) SignalMessage {
	return NewSignal(kind, m.ChannelID, m.CallID, m.To, m.From)
}
