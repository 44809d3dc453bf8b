package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

var (
	ErrSpoofedSender = errors.New("signal sender does not match connection")
	ErrInvalidSignal = errors.New("invalid signal")
)

// RelayService routes signals and media negotiation between connected
// clients and keeps presence up to date.
type RelayService struct {
	gateway  port.RealTimeGateway
	presence port.PresenceStore
	metrics  port.RelayMetrics
}

func NewRelayService(gateway port.RealTimeGateway, presence port.PresenceStore, metrics port.RelayMetrics) *RelayService {
	return &RelayService{
		gateway:  gateway,
		presence: presence,
		metrics:  metrics,
	}
}

// Run broadcasts presence changes to every connected client until ctx is done.
func (s *RelayService) Run(ctx context.Context) error {
	return s.presence.Watch(ctx, func(change domain.PresenceChange) {
		if err := s.gateway.BroadcastPresence(ctx, change); err != nil {
			log.Error().Err(err).Str("user_id", change.User.String()).Msg("Failed to broadcast presence")
		}
	})
}

// Connect marks userID online and sends it the users already online.
func (s *RelayService) Connect(ctx context.Context, userID domain.UserID) error {
	if err := s.presence.SetOnline(ctx, userID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	s.metrics.ClientConnected()

	online, err := s.presence.Online(ctx)
	if err != nil {
		return fmt.Errorf("list online users: %w", err)
	}
	for _, other := range online {
		if other == userID {
			continue
		}
		change := domain.PresenceChange{User: other, Online: true}
		if err := s.gateway.SendPresence(ctx, userID, change); err != nil {
			return err
		}
	}
	return nil
}

func (s *RelayService) Disconnect(ctx context.Context, userID domain.UserID) error {
	s.metrics.ClientDisconnected()
	if err := s.presence.SetOffline(ctx, userID); err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

// Release accounts for a connection of userID that was replaced by a newer
// one. The user stays online.
func (s *RelayService) Release(userID domain.UserID) {
	s.metrics.ClientDisconnected()
}

func (s *RelayService) Heartbeat(ctx context.Context, userID domain.UserID) error {
	return s.presence.Refresh(ctx, userID)
}

// HandleSignal forwards msg, received on the connection of from, to its
// addressee only. Messages for users not connected here are dropped: the
// sender's presence view already says they are offline.
func (s *RelayService) HandleSignal(ctx context.Context, from domain.UserID, msg domain.SignalMessage) error {
	if msg.From != from {
		s.metrics.SignalDropped("spoofed")
		return ErrSpoofedSender
	}
	if !msg.Kind.Valid() || msg.To.IsZero() {
		s.metrics.SignalDropped("invalid")
		return fmt.Errorf("%w: kind %q to %s", ErrInvalidSignal, msg.Kind, msg.To)
	}
	if !s.gateway.IsConnected(msg.To) {
		s.metrics.SignalDropped("offline")
		log.Debug().Str("kind", string(msg.Kind)).Str("to", msg.To.String()).Msg("Addressee offline, dropping signal")
		return nil
	}
	if err := s.gateway.SendSignal(ctx, msg.To, msg); err != nil {
		s.metrics.SignalDropped("send_failed")
		log.Err(err).Str("to", msg.To.String()).Msg("Gateway error")
		return err
	}
	s.metrics.SignalRouted(msg.Kind)
	return nil
}

// HandleMedia forwards an opaque media negotiation payload.
func (s *RelayService) HandleMedia(ctx context.Context, from, to domain.UserID, payload json.RawMessage) error {
	if !s.gateway.IsConnected(to) {
		return nil
	}
	if err := s.gateway.SendMedia(ctx, to, from, payload); err != nil {
		return err
	}
	s.metrics.MediaRelayed()
	return nil
}

func (s *RelayService) QueryPresence(ctx context.Context, userID domain.UserID) (bool, error) {
	return s.presence.IsOnline(ctx, userID)
}
