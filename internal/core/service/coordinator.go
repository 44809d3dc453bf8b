package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/bus"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
)

const defaultInboxSize = 64

var ErrCoordinatorStopped = errors.New("coordinator stopped")

type CoordinatorOptions struct {
	Logger zerolog.Logger
	// History is optional.
	History      port.CallHistory
	DisableCalls bool
	InboxSize    int
	// NewCallID and Now are replaced in tests.
	NewCallID func() domain.CallID
	Now       func() time.Time
}

type request struct {
	in      domain.Input
	capture port.Capture
	session port.MediaSession
	reply   chan error
	// presenceSeq is the presence log position when a Dial lookup started.
	presenceSeq uint64
}

// Coordinator owns the local call session. Every input goes through the
// inbox and is applied by the Run goroutine, one at a time.
type Coordinator struct {
	self      domain.UserID
	signaling port.SignalingChannel
	presence  port.PresenceOracle
	media     port.MediaProvider
	events    *bus.Bus
	history   port.CallHistory
	log       zerolog.Logger

	callsEnabled bool
	newCallID    func() domain.CallID
	now          func() time.Time

	inbox chan request
	done  chan struct{}
	seen  *presenceLog

	mu       sync.RWMutex
	snapshot domain.CallSession

	// owned by the Run goroutine
	session         domain.CallSession
	capture         port.Capture
	active          port.MediaSession
	arrivingCapture port.Capture
	arrivingSession port.MediaSession
	stopPump        context.CancelFunc
	startedAt       time.Time
}

func NewCoordinator(self domain.UserID, signaling port.SignalingChannel, presence port.PresenceOracle, media port.MediaProvider, events *bus.Bus, opts CoordinatorOptions) *Coordinator {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.NewCallID == nil {
		opts.NewCallID = domain.NewCallID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := domain.NewSession(self)
	return &Coordinator{
		self:         self,
		signaling:    signaling,
		presence:     presence,
		media:        media,
		events:       events,
		history:      opts.History,
		log:          opts.Logger.With().Str("component", "coordinator").Str("user_id", self.String()).Logger(),
		callsEnabled: !opts.DisableCalls,
		newCallID:    opts.NewCallID,
		now:          opts.Now,
		inbox:        make(chan request, opts.InboxSize),
		done:         make(chan struct{}),
		seen:         newPresenceLog(),
		snapshot:     s,
		session:      s,
	}
}

// Run processes inputs until ctx is cancelled. On exit the active call is
// hung up and the preview closed.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	cancelSignals := c.signaling.OnSignal(func(m domain.SignalMessage) {
		if err := c.post(ctx, request{in: c.signalInput(m)}); err != nil {
			c.log.Debug().Err(err).Str("kind", string(m.Kind)).Msg("Dropping inbound signal")
		}
	})
	defer cancelSignals()

	cancelPresence := c.presence.OnPresence(func(ch domain.PresenceChange) {
		if err := c.post(ctx, request{in: domain.PresenceChanged{Change: ch}}); err != nil {
			c.log.Debug().Err(err).Msg("Dropping presence change")
		}
	})
	defer cancelPresence()

	c.log.Info().Msg("Coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.log.Info().Msg("Coordinator stopped")
			return ctx.Err()
		case req := <-c.inbox:
			err := c.step(ctx, req)
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

// State returns the session as of the last applied input.
func (c *Coordinator) State() domain.CallSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) OpenPreview(ctx context.Context) error {
	return c.submit(ctx, domain.OpenPreview{})
}

func (c *Coordinator) ClosePreview(ctx context.Context) error {
	return c.submit(ctx, domain.ClosePreview{})
}

// Dial starts a call to peer on channelID. It fails with a RemoteOffline
// CallError, without sending anything, when peer is not online.
func (c *Coordinator) Dial(ctx context.Context, channelID domain.ChannelID, peer domain.UserID) error {
	if !c.callsEnabled {
		return domain.NewCallError(domain.ErrCallsDisabled, peer, nil)
	}
	if peer == c.self {
		return fmt.Errorf("dial %s: %w", peer, domain.ErrPeerMismatch)
	}
	seq := c.seen.Seq()
	online, err := c.presence.IsOnline(ctx, peer)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Str("peer", peer.String()).Msg("Presence lookup failed, treating peer as offline")
		online = false
	}
	return c.send(ctx, request{
		in: domain.Dial{
			ChannelID:  channelID,
			Peer:       peer,
			CallID:     c.newCallID(),
			PeerOnline: online,
		},
		presenceSeq: seq,
	})
}

func (c *Coordinator) Answer(ctx context.Context, caller domain.UserID) error {
	return c.submit(ctx, domain.Answer{Caller: caller})
}

func (c *Coordinator) Reject(ctx context.Context, caller domain.UserID) error {
	return c.submit(ctx, domain.Reject{Caller: caller})
}

func (c *Coordinator) Hangup(ctx context.Context) error {
	return c.submit(ctx, domain.Hangup{})
}

func (c *Coordinator) ToggleMute(ctx context.Context) error {
	return c.submit(ctx, domain.ToggleMute{})
}

func (c *Coordinator) ToggleVideo(ctx context.Context) error {
	return c.submit(ctx, domain.ToggleVideo{})
}

func (c *Coordinator) signalInput(m domain.SignalMessage) domain.SignalReceived {
	return domain.SignalReceived{
		Msg:              m,
		CaptureSupported: c.media.CaptureSupported(),
		CallsEnabled:     c.callsEnabled,
	}
}

func (c *Coordinator) submit(ctx context.Context, in domain.Input) error {
	return c.send(ctx, request{in: in})
}

// send posts req and waits for the loop to apply it.
func (c *Coordinator) send(ctx context.Context, req request) error {
	reply := make(chan error, 1)
	req.reply = reply
	if err := c.post(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

func (c *Coordinator) post(ctx context.Context, req request) error {
	select {
	case c.inbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

func (c *Coordinator) step(ctx context.Context, req request) error {
	if req.capture != nil {
		c.arrivingCapture = req.capture
	}
	if req.session != nil {
		c.arrivingSession = req.session
	}

	switch in := req.in.(type) {
	case domain.PresenceChanged:
		c.seen.Observe(in.Change)
	case domain.Dial:
		// the lookup ran outside the loop; an offline change that arrived meanwhile wins
		if in.PeerOnline && c.seen.WentOfflineSince(in.Peer, req.presenceSeq) {
			c.log.Info().Str("peer", in.Peer.String()).Msg("Peer went offline during presence lookup")
			in.PeerOnline = false
			req.in = in
		}
	}

	prev := c.session
	next, effects, err := domain.Transition(prev, req.in)
	if !prev.Phase.CanTransitionTo(next.Phase) {
		c.log.Error().Stringer("from", prev.Phase).Stringer("to", next.Phase).Msg("Illegal phase transition")
	}
	if !prev.Phase.InCall() && next.Phase.InCall() {
		c.startedAt = c.now()
	}
	c.session = next
	c.mu.Lock()
	c.snapshot = next
	c.mu.Unlock()

	if prev.Phase != next.Phase {
		c.log.Info().
			Stringer("from", prev.Phase).
			Stringer("to", next.Phase).
			Str("peer", next.RemoteUserID.String()).
			Msg("Call phase changed")
	}

	for _, e := range effects {
		c.execute(ctx, e)
	}

	// a completion nobody adopted belongs to nobody
	if c.arrivingCapture != nil {
		c.bestEffort("stop unclaimed capture", c.arrivingCapture.Stop)
		c.arrivingCapture = nil
	}
	if c.arrivingSession != nil {
		c.bestEffort("disconnect unclaimed session", c.arrivingSession.Disconnect)
		c.arrivingSession = nil
	}

	if err != nil {
		c.log.Debug().Err(err).Stringer("phase", next.Phase).Msgf("Input %T not applied", req.in)
	}
	return err
}

func (c *Coordinator) execute(ctx context.Context, e domain.Effect) {
	switch e := e.(type) {
	case domain.AcquireCapture:
		go c.acquireCapture(ctx, e.PreviewEpoch)

	case domain.AdoptCapture:
		if c.capture != nil {
			c.bestEffort("stop replaced capture", c.capture.Stop)
		}
		c.capture = c.arrivingCapture
		c.arrivingCapture = nil

	case domain.DiscardCapture:
		// handled by the unclaimed check in step

	case domain.ReleaseCapture:
		if c.capture != nil {
			c.bestEffort("stop capture", c.capture.Stop)
			c.capture = nil
		}

	case domain.CreateSession:
		capture := c.capture
		go c.openSession(ctx, e.Epoch, func(ctx context.Context) (port.MediaSession, error) {
			return c.media.CreateSession(ctx, e.Peer, capture)
		})

	case domain.JoinSession:
		capture := c.capture
		go c.openSession(ctx, e.Epoch, func(ctx context.Context) (port.MediaSession, error) {
			return c.media.JoinSession(ctx, e.Caller, capture)
		})

	case domain.AdoptSession:
		c.active = c.arrivingSession
		c.arrivingSession = nil
		pumpCtx, cancel := context.WithCancel(ctx)
		c.stopPump = cancel
		go c.pump(pumpCtx, e.Epoch, c.active.Events())

	case domain.DiscardSession:
		// handled by the unclaimed check in step

	case domain.DisconnectSession:
		if c.stopPump != nil {
			c.stopPump()
			c.stopPump = nil
		}
		if c.active != nil {
			c.bestEffort("disconnect session", c.active.Disconnect)
			c.active = nil
		}

	case domain.SendSignal:
		if err := c.signaling.Send(ctx, e.Msg); err != nil {
			c.log.Error().Err(err).
				Str("kind", string(e.Msg.Kind)).
				Str("to", e.Msg.To.String()).
				Msg("Failed to send signal")
		}

	case domain.Publish:
		c.events.Publish(e.Event)

	case domain.SetMuted:
		if capture := c.localCapture(); capture != nil {
			if err := capture.Mute(e.Muted); err != nil {
				c.log.Error().Err(err).Msg("Failed to toggle audio")
			}
		}

	case domain.SetPaused:
		if capture := c.localCapture(); capture != nil {
			if err := capture.Pause(e.Paused); err != nil {
				c.log.Error().Err(err).Msg("Failed to toggle video")
			}
		}

	case domain.ApplyLayout:
		if c.active != nil {
			if err := c.active.Attach(e.Layout); err != nil {
				c.log.Warn().Err(err).Msg("Failed to attach media")
			}
		}

	case domain.RecordCall:
		c.record(ctx, e)
	}
}

func (c *Coordinator) acquireCapture(ctx context.Context, epoch uint64) {
	capture, err := c.media.AcquireLocalCapture(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Unable to access camera and microphone")
		_ = c.post(ctx, request{in: domain.CaptureFailed{PreviewEpoch: epoch}})
		return
	}
	if err := c.post(ctx, request{in: domain.CaptureAcquired{PreviewEpoch: epoch}, capture: capture}); err != nil {
		c.bestEffort("stop capture after shutdown", capture.Stop)
	}
}

func (c *Coordinator) openSession(ctx context.Context, epoch uint64, open func(context.Context) (port.MediaSession, error)) {
	sess, err := open(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Unable to create media session")
		_ = c.post(ctx, request{in: domain.SessionCreateFailed{Epoch: epoch}})
		return
	}
	if err := c.post(ctx, request{in: domain.SessionCreated{Epoch: epoch}, session: sess}); err != nil {
		c.bestEffort("disconnect session after shutdown", sess.Disconnect)
	}
}

func (c *Coordinator) pump(ctx context.Context, epoch uint64, events <-chan domain.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.post(ctx, request{in: domain.SessionEventReceived{Epoch: epoch, Event: ev}}); err != nil {
				return
			}
		}
	}
}

func (c *Coordinator) localCapture() port.Capture {
	if c.active != nil {
		if capture := c.active.LocalCapture(); capture != nil {
			return capture
		}
	}
	return c.capture
}

func (c *Coordinator) record(ctx context.Context, e domain.RecordCall) {
	if c.history == nil {
		return
	}
	rec, err := domain.NewCallRecord(e.CallID, e.ChannelID, e.Peer, e.Role, e.Outcome, e.Connected, c.startedAt, c.now())
	if err != nil {
		c.log.Error().Err(err).Msg("Invalid call record")
		return
	}
	if err := c.history.Save(ctx, *rec); err != nil {
		c.log.Error().Err(err).Str("call_id", e.CallID.String()).Msg("Failed to save call record")
	}
}

// shutdown runs the hangup and close transitions so resources are released
// and the peer is told, even though Run is exiting.
func (c *Coordinator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if c.session.Phase.InCall() {
		_ = c.step(ctx, request{in: domain.Hangup{}})
	}
	if c.session.SurfaceOpen || c.capture != nil {
		_ = c.step(ctx, request{in: domain.ClosePreview{}})
	}
}

// bestEffort runs a teardown step. Teardown never fails: errors and panics
// from the provider are logged and dropped.
func (c *Coordinator) bestEffort(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Provider panicked during " + what)
		}
	}()
	if err := fn(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to " + what)
	}
}
