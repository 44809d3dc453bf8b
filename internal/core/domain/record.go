package domain

import (
	"errors"
	"time"
)

// CallRecord is the history entry written when an attempt ends.
type CallRecord struct {
	CallID    CallID
	ChannelID ChannelID
	Peer      UserID
	Role      Role
	// Outcome is ErrNone for a call that connected and was hung up normally.
	Outcome   ErrorKind
	Connected bool
	StartedAt time.Time
	EndedAt   time.Time
}

func NewCallRecord(callID CallID, channelID ChannelID, peer UserID, role Role, outcome ErrorKind, connected bool, startedAt, endedAt time.Time) (*CallRecord, error) {
	if callID.IsZero() {
		return nil, errors.New("call record needs a call id")
	}
	if endedAt.Before(startedAt) {
		return nil, errors.New("call record ends before it starts")
	}
	return &CallRecord{
		CallID:    callID,
		ChannelID: channelID,
		Peer:      peer,
		Role:      role,
		Outcome:   outcome,
		Connected: connected,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}, nil
}

func (r CallRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
