package sockets

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// SocketID identifies one viewer's signaling channel. It matches the viewer
// identity minted at registration, not the remote address: a viewer behind a
// NAT may share an address with others.
type SocketID string

type Socket interface {
	SendMessage(v any) error
	Close() error
}

type socketImpl struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// SendMessage serializes writes on the underlying connection. Engine
// callbacks and the dispatcher may both target the same viewer concurrently.
func (s *socketImpl) SendMessage(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *socketImpl) Close() error {
	return s.ws.Close()
}
