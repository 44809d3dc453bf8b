package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Wyydra/yacall/internal/adapter/wire"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("user not connected")

// implements port.RealTimeGateway
type Hub struct {
	mu        sync.RWMutex
	clients   map[domain.UserID]Client
	broadcast chan wire.Frame
	quit      chan struct{}
	stopOnce  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[domain.UserID]Client),
		broadcast: make(chan wire.Frame, 256),
		quit:      make(chan struct{}),
	}
}

func (h *Hub) SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalMessage) error {
	return h.sendTo(userID, wire.SignalFrame(msg))
}

func (h *Hub) SendMedia(ctx context.Context, userID domain.UserID, from domain.UserID, payload json.RawMessage) error {
	return h.sendTo(userID, wire.MediaFrame(from, userID, payload))
}

func (h *Hub) SendPresence(ctx context.Context, userID domain.UserID, change domain.PresenceChange) error {
	return h.sendTo(userID, wire.PresenceFrame(change))
}

func (h *Hub) BroadcastPresence(ctx context.Context, change domain.PresenceChange) error {
	select {
	case h.broadcast <- wire.PresenceFrame(change):
	default:
		log.Warn().Str("user_id", change.User.String()).Msg("Broadcast channel full, dropping presence")
	}
	return nil
}

func (h *Hub) IsConnected(userID domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) sendTo(userID domain.UserID, f wire.Frame) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	if err := client.Send(f); err != nil {
		h.drop(client, err)
		return err
	}
	return nil
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case frame := <-h.broadcast:
			h.mu.RLock()
			targets := make([]Client, 0, len(h.clients))
			for id, client := range h.clients {
				if frame.Presence != nil && frame.Presence.User == id {
					continue
				}
				targets = append(targets, client)
			}
			h.mu.RUnlock()

			for _, client := range targets {
				if err := client.Send(frame); err != nil {
					h.drop(client, err)
				}
			}
		}
	}
}

// Register adds c. A previous connection of the same user is closed.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	old, ok := h.clients[c.UserID()]
	h.clients[c.UserID()] = c
	h.mu.Unlock()

	if ok && old != c {
		log.Info().Str("user_id", c.UserID().String()).Msg("Replacing existing connection")
		old.Close()
	}
	log.Info().Str("user_id", c.UserID().String()).Msg("Client registered")
}

// Unregister removes c. It reports false when the user has already
// reconnected on another connection, which then stays registered.
func (h *Hub) Unregister(c Client) bool {
	h.mu.Lock()
	current, ok := h.clients[c.UserID()]
	replaced := ok && current != c
	if ok && current == c {
		delete(h.clients, c.UserID())
	}
	h.mu.Unlock()

	c.Close()
	if replaced {
		return false
	}
	log.Info().Str("user_id", c.UserID().String()).Msg("Client unregistered")
	return true
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) drop(c Client, err error) {
	log.Error().Err(err).Str("user_id", c.UserID().String()).Msg("Error sending frame, dropping client")
	h.mu.Lock()
	if current, ok := h.clients[c.UserID()]; ok && current == c {
		delete(h.clients, c.UserID())
	}
	h.mu.Unlock()
	c.Close()
}
