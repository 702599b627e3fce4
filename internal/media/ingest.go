package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/adaptcast/webrtc-multicast/internal/config"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
)

const (
	rtpBufferSize   = 1500
	packetQueueSize = 100
)

var bufferPool = sync.Pool{
	New: func() any {
		return make([]byte, rtpBufferSize)
	},
}

// Broadcaster feeds one shared outbound track from a UDP RTP listener. Every
// attached viewer's peer connection binds the same local track, so one read
// loop serves the whole audience.
type Broadcaster struct {
	localTrack *webrtc.TrackLocalStaticRTP
	conn       net.PacketConn

	ctx    context.Context
	cancel context.CancelFunc

	packetChan chan []byte
}

func NewBroadcaster(tc config.TrackConfig) (*Broadcaster, error) {
	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  tc.MimeType,
			ClockRate: tc.ClockRate,
			Channels:  tc.Channels,
		},
		tc.Kind,
		"broadcast",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local track %s: %w", tc.Kind, err)
	}

	conn, err := net.ListenPacket("udp", tc.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s RTP on %s: %w", tc.Kind, tc.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	broadcaster := &Broadcaster{
		localTrack: localTrack,
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan []byte, packetQueueSize),
	}

	go broadcaster.readLoop(tc)
	go broadcaster.writeLoop()

	slog.Info("RTP ingest listening", "kind", tc.Kind, "addr", tc.ListenAddr, "mimeType", tc.MimeType)
	return broadcaster, nil
}

func (b *Broadcaster) readLoop(tc config.TrackConfig) {
	defer b.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		buf := bufferPool.Get().([]byte)
		buf = buf[:cap(buf)]

		n, _, err := b.conn.ReadFrom(buf)
		if err != nil {
			if b.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				slog.Error("error reading ingest RTP", "kind", tc.Kind, "error", err)
			}
			return
		}

		metrics.RTPPacketsTotal.WithLabelValues("received").Inc()
		metrics.RTPBytesTotal.WithLabelValues("received").Add(float64(n))

		select {
		case b.packetChan <- buf[:n]:
		default:
			bufferPool.Put(buf)
		}
	}
}

func (b *Broadcaster) writeLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case pkt := <-b.packetChan:
			if _, err := b.localTrack.Write(pkt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				slog.Error("error writing to local track", "error", err)
			} else {
				metrics.RTPPacketsTotal.WithLabelValues("forwarded").Inc()
				metrics.RTPBytesTotal.WithLabelValues("forwarded").Add(float64(len(pkt)))
			}
		}
	}
}

func (b *Broadcaster) LocalTrack() *webrtc.TrackLocalStaticRTP {
	return b.localTrack
}

func (b *Broadcaster) Stop() {
	b.cancel()
	_ = b.conn.Close()
}
