package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a call attempt ended or could not start.
type ErrorKind string

const (
	ErrNone ErrorKind = ""

	// ErrMediaUnavailable is the only recoverable kind: the preview stays open and may retry.
	ErrMediaUnavailable      ErrorKind = "MEDIA_UNAVAILABLE"
	ErrRemoteOffline         ErrorKind = "REMOTE_OFFLINE"
	ErrRejected              ErrorKind = "REJECTED"
	ErrNotSupportedByPeer    ErrorKind = "NOT_SUPPORTED_BY_PEER"
	ErrSessionCreationFailed ErrorKind = "SESSION_CREATION_FAILED"
	ErrParticipantFailed     ErrorKind = "PARTICIPANT_FAILED"
	ErrCancelledByPeer       ErrorKind = "CANCELLED_BY_PEER"
	ErrCancelledLocally      ErrorKind = "CANCELLED_LOCALLY"
	ErrBusy                  ErrorKind = "BUSY"
	ErrCallsDisabled         ErrorKind = "CALLS_DISABLED"
)

// Recoverable is true when the session does not have to be reset.
func (k ErrorKind) Recoverable() bool {
	return k == ErrMediaUnavailable
}

// Quiet is true for explicit aborts that should not be shown as errors.
func (k ErrorKind) Quiet() bool {
	return k == ErrNone || k == ErrCancelledLocally || k == ErrCancelledByPeer
}

// CallError carries an ErrorKind, the peer it concerns and an optional cause.
type CallError struct {
	Kind ErrorKind
	Peer UserID
	Err  error
}

func NewCallError(kind ErrorKind, peer UserID, err error) *CallError {
	return &CallError{Kind: kind, Peer: peer, Err: err}
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: peer %s (caused by: %v)", e.Kind, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: peer %s", e.Kind, e.Peer)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is matches any *CallError with the same Kind.
func (e *CallError) Is(target error) bool {
	var t *CallError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf extracts the ErrorKind of err, or ErrNone.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrNone
}

// Intent rejections. None of them change the session.
var (
	ErrInvalidPhase   = errors.New("action not valid in current phase")
	ErrNoActiveCall   = errors.New("no active call")
	ErrPeerMismatch   = errors.New("peer does not match active call")
	ErrCallInProgress = errors.New("call in progress, hang up first")
)
