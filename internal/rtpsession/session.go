// Package rtpsession implements the RTP session: a UDP socket bound to
// the negotiated local port, a paced send tick, a receive loop
// dispatching by payload type, and the OutputEmpty latch that fires
// once when a send tick produces no packets.
package rtpsession

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/rtp"

	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/media"
)

// mediaQueueDepth is a Go rendition of an unbounded media channel: the
// per-codec outbound buffer cap (~5000 samples) already bounds
// outstanding audio memory, so a generously sized buffered channel
// never blocks a real producer in practice while still being boundable
// — true unbounded growth is not an idiom this codebase otherwise uses
// for any channel.
const mediaQueueDepth = 1024

// Session owns one UDP socket for the life of an answered call.
type Session struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	codecs     []media.Codec
	ptime      time.Duration

	// ToApplication carries decoded Media (Audio, TelephoneEvent,
	// OutputEmpty) and is consumed by the call layer.
	ToApplication chan media.Media
	// FromApplication carries outbound Media (the application's
	// send_audio / DTMF output) into the codec buffers.
	FromApplication chan media.Media

	notifiedEmpty bool
}

// New binds a UDP socket on localPort and resolves the remote endpoint,
// using the given codec set (already constructed from a negotiated SDP
// answer/offer) and the negotiated ptime for the send-tick interval.
func New(localPort int, remoteAddr string, remotePort int, codecs []media.Codec, ptimeMs int) (*Session, error) {
	if ptimeMs <= 0 {
		ptimeMs = 20
	}
	laddr := &net.UDPAddr{Port: localPort}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("rtpsession: listen udp :%d: %w", localPort, err)
	}

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", remoteAddr, remotePort))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtpsession: resolve remote %s:%d: %w", remoteAddr, remotePort, err)
	}

	return &Session{
		conn:            conn,
		remoteAddr:      raddr,
		codecs:          codecs,
		ptime:           time.Duration(ptimeMs) * time.Millisecond,
		ToApplication:   make(chan media.Media, mediaQueueDepth),
		FromApplication: make(chan media.Media, mediaQueueDepth),
	}, nil
}

// LocalPort returns the bound local UDP port.
func (s *Session) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the UDP socket. Run returns once this unblocks its
// reader goroutine.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run drives the session's event loop until ctx is cancelled or the
// socket is closed: a send tick, the UDP receive path, and the
// application's outbound media queue, all folded into one select so no
// lock is held across a suspension point.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.ptime)
	defer ticker.Stop()

	recvCh := make(chan []byte, mediaQueueDepth)
	go s.readLoop(recvCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			s.sendTick()

		case data, ok := <-recvCh:
			if !ok {
				return fmt.Errorf("rtpsession: udp socket closed")
			}
			s.handleIncoming(data)

		case m, ok := <-s.FromApplication:
			if !ok {
				return nil
			}
			s.handleOutboundMedia(m)
		}
	}
}

// readLoop blocks on UDP reads and forwards raw datagrams to out,
// closing out when the socket errors (typically because Close was
// called, which is the normal shutdown path).
func (s *Session) readLoop(out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 1500)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case out <- cp:
		default:
			logger.Warn("rtpsession: dropping inbound packet, receive queue full")
		}
	}
}

// sendTick asks each codec for its next packets and transmits them. If
// no codec produced anything this tick, it latches a single
// OutputEmpty notification; any successful send resets the latch.
func (s *Session) sendTick() {
	sentAny := false
	for _, c := range s.codecs {
		packets, err := c.NextPackets()
		if err != nil {
			logger.Warn("rtpsession: codec NextPackets failed", "payload_type", c.PayloadType(), "error", err)
			continue
		}
		for _, p := range packets {
			if _, err := s.conn.WriteToUDP(p, s.remoteAddr); err != nil {
				logger.Warn("rtpsession: udp write failed", "error", err)
				continue
			}
			sentAny = true
		}
	}

	if sentAny {
		s.notifiedEmpty = false
		return
	}
	if !s.notifiedEmpty {
		s.notifiedEmpty = true
		select {
		case s.ToApplication <- media.OutputEmptyMedia():
		default:
			logger.Warn("rtpsession: application media queue full, dropping OutputEmpty")
		}
	}
}

// handleIncoming parses one RTP packet and dispatches it to the codec
// matching its payload type. Parse failures and unknown payload types
// are logged and skipped, never fatal to the session.
func (s *Session) handleIncoming(data []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		logger.Warn("rtpsession: malformed RTP packet", "error", err)
		return
	}

	for _, c := range s.codecs {
		if c.PayloadType() != pkt.PayloadType {
			continue
		}
		m, err := c.DecodePayload(pkt.Payload)
		if err != nil {
			logger.Warn("rtpsession: codec decode failed", "payload_type", pkt.PayloadType, "error", err)
			return
		}
		if m == nil {
			return
		}
		select {
		case s.ToApplication <- *m:
		default:
			logger.Warn("rtpsession: application media queue full, dropping decoded media")
		}
		return
	}
	logger.Warn("rtpsession: no codec for payload type", "payload_type", pkt.PayloadType)
}

// handleOutboundMedia hands m to the first codec able to carry it.
func (s *Session) handleOutboundMedia(m media.Media) {
	for _, c := range s.codecs {
		if c.CanHandle(m) {
			c.AppendToBuffer(m)
			return
		}
	}
}
