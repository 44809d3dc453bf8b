// Package wire is the JSON framing spoken on the relay websocket.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type FrameType string

const (
	FrameSignal        FrameType = "signal"
	FramePresence      FrameType = "presence"
	FramePresenceQuery FrameType = "presence_query"
	FrameMedia         FrameType = "media"
	FrameError         FrameType = "error"
)

// Media carries the media provider's own negotiation (offer, answer,
// candidates). The relay never looks inside Payload.
type Media struct {
	From    domain.UserID   `json:"from_id"`
	To      domain.UserID   `json:"to_id"`
	Payload json.RawMessage `json:"payload"`
}

type Frame struct {
	Type     FrameType              `json:"type"`
	Signal   *domain.SignalMessage  `json:"signal,omitempty"`
	Presence *domain.PresenceChange `json:"presence,omitempty"`
	Media    *Media                 `json:"media,omitempty"`
	// QueryID pairs a presence_query with its presence answer.
	QueryID string `json:"query_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

var ErrMalformedFrame = errors.New("malformed frame")

func SignalFrame(msg domain.SignalMessage) Frame {
	return Frame{Type: FrameSignal, Signal: &msg}
}

func PresenceFrame(change domain.PresenceChange) Frame {
	return Frame{Type: FramePresence, Presence: &change}
}

func PresenceQueryFrame(queryID string, userID domain.UserID) Frame {
	return Frame{
		Type:     FramePresenceQuery,
		QueryID:  queryID,
		Presence: &domain.PresenceChange{User: userID},
	}
}

func MediaFrame(from, to domain.UserID, payload json.RawMessage) Frame {
	return Frame{Type: FrameMedia, Media: &Media{From: from, To: to, Payload: payload}}
}

func ErrorFrame(err error) Frame {
	return Frame{Type: FrameError, Error: err.Error()}
}

// Validate checks that the body matching Type is present.
func (f Frame) Validate() error {
	switch f.Type {
	case FrameSignal:
		if f.Signal == nil {
			return fmt.Errorf("%w: signal frame without signal", ErrMalformedFrame)
		}
	case FramePresence, FramePresenceQuery:
		if f.Presence == nil {
			return fmt.Errorf("%w: %s frame without presence", ErrMalformedFrame, f.Type)
		}
	case FrameMedia:
		if f.Media == nil || len(f.Media.Payload) == 0 {
			return fmt.Errorf("%w: media frame without payload", ErrMalformedFrame)
		}
	case FrameError:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
	return nil
}
