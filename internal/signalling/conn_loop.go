package signalling

import (
	"context"
	"log/slog"
	"sync"

	"github.com/adaptcast/webrtc-multicast/internal/api"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
	"github.com/adaptcast/webrtc-multicast/internal/sockets"
)

const outboundQueueSize = 16

// ViewerConnectionLoop owns the outbound half of one viewer's socket. Engine
// callbacks and the dispatcher enqueue; a single writer goroutine drains, so
// a slow viewer never blocks a session or the media engine.
type ViewerConnectionLoop struct {
	socket   sockets.Socket
	viewerID string
	messages chan api.Message
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewViewerConnectionLoop(socket sockets.Socket, viewerID string) *ViewerConnectionLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewerConnectionLoop{
		socket:   socket,
		viewerID: viewerID,
		messages: make(chan api.Message, outboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (l *ViewerConnectionLoop) Start() {
	l.wg.Add(1)
	go l.messageWriterLoop()
}

func (l *ViewerConnectionLoop) Stop() {
	l.cancel()
	l.wg.Wait()
}

// SendMessage enqueues without blocking. Messages to a stopped loop or past a
// full queue are dropped; the transport is already doomed or drowning in both
// cases and trickle ICE tolerates loss.
func (l *ViewerConnectionLoop) SendMessage(msg api.Message) {
	select {
	case <-l.ctx.Done():
	case l.messages <- msg:
	default:
		slog.Warn("outbound queue full, dropping message",
			"viewerID", l.viewerID, "type", string(msg.Type))
	}
}

func (l *ViewerConnectionLoop) messageWriterLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case msg := <-l.messages:
			if err := l.socket.SendMessage(msg); err != nil {
				slog.Error("failed to send message to viewer",
					"viewerID", l.viewerID, "error", err)
				return
			}
			metrics.SignallingMessagesTotal.WithLabelValues(string(msg.Type), "out").Inc()
		}
	}
}
