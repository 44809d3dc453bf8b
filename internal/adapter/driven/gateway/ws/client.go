package ws

import (
	"github.com/Wyydra/yacall/internal/adapter/wire"
	"github.com/Wyydra/yacall/internal/core/domain"
)

// Client is one live websocket connection. Send must not block.
type Client interface {
	UserID() domain.UserID
	Send(f wire.Frame) error
	Close() error
}
