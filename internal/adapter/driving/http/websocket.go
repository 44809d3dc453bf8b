package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/wire"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 * 1024
	sendBuffer   = 64
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: only for dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient implements ws.Client. Frames are written by a single writer
// goroutine so per-sender order is kept.
type WSClient struct {
	id   domain.UserID
	conn *websocket.Conn
	send chan wire.Frame
	done chan struct{}
	once sync.Once
}

func newWSClient(id domain.UserID, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   id,
		conn: conn,
		send: make(chan wire.Frame, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *WSClient) UserID() domain.UserID {
	return c.id
}

func (c *WSClient) Send(f wire.Frame) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errSlowClient
	}
}

func (c *WSClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := domain.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(userID, conn)
	l := log.With().Str("user_id", userID.String()).Logger()
	l.Info().Msg("New client connected")

	ctx := r.Context()
	h.Hub.Register(client)
	go client.writePump()

	if err := h.Relay.Connect(ctx, userID); err != nil {
		l.Error().Err(err).Msg("Failed to mark client online")
	}

	defer func() {
		l.Info().Msg("Client disconnected")
		if !h.Hub.Unregister(client) {
			h.Relay.Release(userID)
			return
		}
		dctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := h.Relay.Disconnect(dctx, userID); err != nil {
			l.Error().Err(err).Msg("Failed to mark client offline")
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.Relay.Heartbeat(ctx, userID); err != nil {
			l.Warn().Err(err).Msg("Presence refresh failed")
		}
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.Warn().Err(err).Msg("Invalid frame")
			_ = client.Send(wire.ErrorFrame(wire.ErrMalformedFrame))
			continue
		}
		if err := f.Validate(); err != nil {
			l.Warn().Err(err).Msg("Invalid frame")
			_ = client.Send(wire.ErrorFrame(err))
			continue
		}
		h.dispatch(ctx, client, f, l)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *WSClient, f wire.Frame, l zerolog.Logger) {
	switch f.Type {
	case wire.FrameSignal:
		err := h.Relay.HandleSignal(ctx, client.id, *f.Signal)
		if errors.Is(err, service.ErrSpoofedSender) || errors.Is(err, service.ErrInvalidSignal) {
			l.Warn().Err(err).Msg("Rejected signal")
			_ = client.Send(wire.ErrorFrame(err))
		} else if err != nil {
			l.Error().Err(err).Msg("Failed to route signal")
		}

	case wire.FrameMedia:
		if err := h.Relay.HandleMedia(ctx, client.id, f.Media.To, f.Media.Payload); err != nil {
			l.Error().Err(err).Msg("Failed to relay media frame")
		}

	case wire.FramePresenceQuery:
		online, err := h.Relay.QueryPresence(ctx, f.Presence.User)
		if err != nil {
			l.Error().Err(err).Msg("Presence lookup failed")
		}
		reply := wire.PresenceFrame(domain.PresenceChange{User: f.Presence.User, Online: online})
		reply.QueryID = f.QueryID
		_ = client.Send(reply)

	default:
		l.Debug().Str("type", string(f.Type)).Msg("Ignoring frame")
	}
}
