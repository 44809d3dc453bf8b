// Package wsclient is the client end of the relay websocket. One Conn is the
// signaling channel, the presence oracle and the media negotiation transport.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/wire"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var ErrClosed = errors.New("relay connection closed")

type Conn struct {
	self domain.UserID
	ws   *websocket.Conn
	send chan wire.Frame
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	nextID    int
	signals   map[int]func(domain.SignalMessage)
	presences map[int]func(domain.PresenceChange)
	media     map[int]func(domain.UserID, json.RawMessage)
	queries   map[string]chan bool
	err       error
}

// Dial connects to the relay at relayURL (ws:// or wss://, path included) as self.
func Dial(ctx context.Context, relayURL string, self domain.UserID) (*Conn, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", self.String())
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Conn{
		self:      self,
		ws:        ws,
		send:      make(chan wire.Frame, sendBuffer),
		done:      make(chan struct{}),
		signals:   make(map[int]func(domain.SignalMessage)),
		presences: make(map[int]func(domain.PresenceChange)),
		media:     make(map[int]func(domain.UserID, json.RawMessage)),
		queries:   make(map[string]chan bool),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection closed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) Send(ctx context.Context, msg domain.SignalMessage) error {
	return c.enqueue(ctx, wire.SignalFrame(msg))
}

func (c *Conn) OnSignal(fn func(domain.SignalMessage)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.signals[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.signals, id)
		c.mu.Unlock()
	}
}

// IsOnline asks the relay and waits for its answer.
func (c *Conn) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	id := uuid.NewString()
	reply := make(chan bool, 1)

	c.mu.Lock()
	c.queries[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.queries, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, wire.PresenceQueryFrame(id, userID)); err != nil {
		return false, err
	}
	select {
	case online := <-reply:
		return online, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.done:
		return false, ErrClosed
	}
}

func (c *Conn) OnPresence(fn func(domain.PresenceChange)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.presences[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.presences, id)
		c.mu.Unlock()
	}
}

func (c *Conn) SendMedia(ctx context.Context, to domain.UserID, payload json.RawMessage) error {
	return c.enqueue(ctx, wire.MediaFrame(c.self, to, payload))
}

func (c *Conn) OnMedia(fn func(domain.UserID, json.RawMessage)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.media[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.media, id)
		c.mu.Unlock()
	}
}

func (c *Conn) enqueue(ctx context.Context, f wire.Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Conn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Relay connection lost")
			}
			c.shutdown(err)
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("Invalid frame from relay")
			continue
		}
		if err := f.Validate(); err != nil {
			log.Warn().Err(err).Msg("Invalid frame from relay")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f wire.Frame) {
	switch f.Type {
	case wire.FrameSignal:
		for _, fn := range snapshot(&c.mu, c.signals) {
			fn(*f.Signal)
		}

	case wire.FramePresence:
		if f.QueryID != "" {
			c.mu.Lock()
			reply, ok := c.queries[f.QueryID]
			c.mu.Unlock()
			if ok {
				select {
				case reply <- f.Presence.Online:
				default:
				}
			}
			return
		}
		for _, fn := range snapshot(&c.mu, c.presences) {
			fn(*f.Presence)
		}

	case wire.FrameMedia:
		for _, fn := range snapshot(&c.mu, c.media) {
			fn(f.Media.From, f.Media.Payload)
		}

	case wire.FrameError:
		log.Warn().Str("error", f.Error).Msg("Relay rejected a frame")
	}
}

func snapshot[F any](mu *sync.Mutex, m map[int]F) []F {
	mu.Lock()
	defer mu.Unlock()
	out := make([]F, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
