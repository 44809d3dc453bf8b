package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/core/domain"
)

func TestFrame_Validate(t *testing.T) {
	alice, bob := domain.NewUserID(), domain.NewUserID()
	msg := domain.NewSignal(domain.SignalStartCall, domain.NewChannelID(), domain.NewCallID(), alice, bob)

	tests := []struct {
		name  string
		frame Frame
		ok    bool
	}{
		{"signal", SignalFrame(msg), true},
		{"presence", PresenceFrame(domain.PresenceChange{User: bob, Online: true}), true},
		{"presence query", PresenceQueryFrame("q1", bob), true},
		{"media", MediaFrame(alice, bob, json.RawMessage(`{"type":"bye"}`)), true},
		{"error", ErrorFrame(errors.New("nope")), true},
		{"signal without body", Frame{Type: FrameSignal}, false},
		{"presence without body", Frame{Type: FramePresence}, false},
		{"query without body", Frame{Type: FramePresenceQuery, QueryID: "q1"}, false},
		{"media without payload", Frame{Type: FrameMedia, Media: &Media{From: alice, To: bob}}, false},
		{"unknown type", Frame{Type: "chat"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedFrame)
			}
		})
	}
}

func TestFrame_SignalWireFormat(t *testing.T) {
	alice, bob := domain.NewUserID(), domain.NewUserID()
	channel, callID := domain.NewChannelID(), domain.NewCallID()
	msg := domain.NewSignal(domain.SignalRejectCall, channel, callID, alice, bob)

	data, err := json.Marshal(SignalFrame(msg))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "signal", raw["type"])
	assert.NotContains(t, raw, "presence")

	body := raw["signal"].(map[string]any)
	assert.Equal(t, "reject_call", body["kind"])
	assert.Equal(t, alice.String(), body["from_id"])
	assert.Equal(t, bob.String(), body["to_id"])
	assert.Equal(t, channel.String(), body["channel_id"])
	assert.Equal(t, callID.String(), body["call_id"])
}

func TestFrame_DecodeMedia(t *testing.T) {
	alice, bob := domain.NewUserID(), domain.NewUserID()
	in := `{"type":"media","media":{"from_id":"` + alice.String() + `","to_id":"` + bob.String() + `","payload":{"type":"candidate","candidate":"c"}}}`

	var f Frame
	require.NoError(t, json.Unmarshal([]byte(in), &f))
	require.NoError(t, f.Validate())
	assert.Equal(t, alice, f.Media.From)
	assert.Equal(t, bob, f.Media.To)
	assert.JSONEq(t, `{"type":"candidate","candidate":"c"}`, string(f.Media.Payload))
}
