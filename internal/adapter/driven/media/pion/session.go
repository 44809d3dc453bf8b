package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sendTimeout = 5 * time.Second
	pliInterval = 3 * time.Second
)

var ErrSessionClosed = errors.New("media session closed")

// Session is one peer connection with the remote party.
type Session struct {
	provider    *Provider
	peer        domain.UserID
	pc          *webrtc.PeerConnection
	capture     *Capture
	ownsCapture bool
	senders     []*webrtc.RTPSender
	log         zerolog.Logger

	mu                sync.Mutex
	events            chan domain.SessionEvent
	closed            bool
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	remoteTracks      []*webrtc.TrackRemote
	layout            domain.Layout

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(p *Provider, peer domain.UserID, pc *webrtc.PeerConnection, c *Capture, owned bool) *Session {
	return &Session{
		provider:    p,
		peer:        peer,
		pc:          pc,
		capture:     c,
		ownsCapture: owned,
		log:         log.With().Str("peer", peer.String()).Logger(),
		events:      make(chan domain.SessionEvent, 8),
		layout:      domain.LayoutPreview,
		done:        make(chan struct{}),
	}
}

func (s *Session) start() error {
	if s.capture != nil {
		senders, err := s.capture.attach(s.pc)
		if err != nil {
			return fmt.Errorf("add local tracks: %w", err)
		}
		s.senders = senders
	} else {
		// recvonly transceivers so the SDP still has audio and video m-lines
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := s.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.send(ctx, message{Type: msgCandidate, Candidate: &init}); err != nil {
			s.log.Error().Err(err).Msg("Failed to send candidate")
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("Peer connection state changed")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.emit(domain.SessionEvent{Kind: domain.SessionParticipantConnected, Participant: s.peer})
		case webrtc.PeerConnectionStateFailed:
			s.emit(domain.SessionEvent{Kind: domain.SessionParticipantFailed, Participant: s.peer})
		case webrtc.PeerConnectionStateClosed:
			s.emit(domain.SessionEvent{Kind: domain.SessionDisconnected, Participant: s.peer})
		}
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.log.Debug().Str("kind", track.Kind().String()).Msg("Received remote track")
		s.mu.Lock()
		s.remoteTracks = append(s.remoteTracks, track)
		s.mu.Unlock()

		go s.drain(track)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go s.requestKeyframes(track)
		}
	})
	return nil
}

func (s *Session) Events() <-chan domain.SessionEvent {
	return s.events
}

func (s *Session) LocalCapture() port.Capture {
	if s.capture == nil {
		return nil
	}
	return s.capture
}

// Attach records where the streams go. With LayoutInCall the remote tracks
// are routed to the primary surface.
func (s *Session) Attach(layout domain.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.layout = layout
	s.log.Debug().Int("remote_tracks", len(s.remoteTracks)).Int("layout", int(layout)).Msg("Media attached")
	return nil
}

// Disconnect tells the peer, closes the connection and closes Events.
func (s *Session) Disconnect() error {
	var err error
	s.closeOnce.Do(func() {
		s.provider.remove(s)

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		close(s.done)

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if sendErr := s.send(ctx, message{Type: msgBye}); sendErr != nil {
			s.log.Debug().Err(sendErr).Msg("Failed to send bye")
		}
		cancel()

		if s.capture != nil {
			s.capture.detach(s.senders)
			if s.ownsCapture {
				_ = s.capture.Stop()
			}
		}
		err = s.pc.Close()
	})
	return err
}

func (s *Session) emit(ev domain.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Stringer("event", ev.Kind).Msg("Session event buffer full, dropping event")
	}
}

func (s *Session) send(ctx context.Context, m message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.provider.transport.SendMedia(ctx, s.peer, payload)
}

func (s *Session) handle(m message) {
	var err error
	switch m.Type {
	case msgOffer:
		err = s.acceptOffer(m.SDP)
	case msgAnswer:
		if m.SDP == nil {
			err = errors.New("answer without sdp")
			break
		}
		err = s.setRemote(*m.SDP)
	case msgCandidate:
		err = s.addCandidate(m.Candidate)
	case msgBye:
		s.emit(domain.SessionEvent{Kind: domain.SessionDisconnected, Participant: s.peer})
	default:
		err = fmt.Errorf("unknown negotiation message %q", m.Type)
	}
	if err != nil {
		s.log.Error().Err(err).Str("type", string(m.Type)).Msg("Negotiation failed")
		s.emit(domain.SessionEvent{Kind: domain.SessionParticipantFailed, Participant: s.peer})
	}
}

func (s *Session) acceptOffer(offer *webrtc.SessionDescription) error {
	if offer == nil {
		return errors.New("offer without sdp")
	}
	if err := s.setRemote(*offer); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return s.send(ctx, message{Type: msgAnswer, SDP: s.pc.LocalDescription()})
}

// setRemote applies desc and flushes candidates that arrived before it.
func (s *Session) setRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.mu.Lock()
	s.remoteSet = true
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add candidate: %w", err)
		}
	}
	return nil
}

func (s *Session) addCandidate(c *webrtc.ICECandidateInit) error {
	if c == nil {
		return nil
	}
	s.mu.Lock()
	if !s.remoteSet {
		s.pendingCandidates = append(s.pendingCandidates, *c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.pc.AddICECandidate(*c)
}

// drain reads RTP so the interceptors keep working. Rendering hooks in here.
func (s *Session) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (s *Session) requestKeyframes(track *webrtc.TrackRemote) {
	sendPLI := func() {
		// benign error on closed connection
		_ = s.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
	}
	sendPLI()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			sendPLI()
		}
	}
}
