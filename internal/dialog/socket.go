// Package dialog implements the SIP socket, the answered-call
// signaling handler, and the pre-answer state machines for incoming
// and outgoing calls.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sebas/sipua/internal/config"
	"github.com/sebas/sipua/internal/digest"
	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/portpool"
	"github.com/sebas/sipua/internal/sipmsg"
)

const outboundQueueDepth = 64

// Socket owns the single TCP connection to the SIP server: the
// registration handshake, a per-Call-ID routing table, and the
// run-loop that dispatches incoming messages and drains outbound ones.
type Socket struct {
	conn net.Conn
	dec  *sipmsg.Decoder

	outbound chan *sipmsg.Message

	mu     sync.Mutex
	routes map[string]chan *sipmsg.Message

	incomingCh chan<- *IncomingCall
	cfg        *config.Config
	ports      *portpool.Allocator
}

// Connect dials the configured SIP server and performs the
// registration handshake synchronously before returning. The returned
// Socket's Run must then be started to process further traffic.
func Connect(cfg *config.Config, ports *portpool.Allocator, incomingCh chan<- *IncomingCall) (*Socket, error) {
	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("dialog: dial %s: %w", cfg.ServerAddr, err)
	}
	return newSocketOverConn(conn, cfg, ports, incomingCh)
}

// newSocketOverConn drives the registration handshake over an
// already-established connection. Split out from Connect so tests can
// supply a net.Pipe in place of a real TCP dial.
func newSocketOverConn(conn net.Conn, cfg *config.Config, ports *portpool.Allocator, incomingCh chan<- *IncomingCall) (*Socket, error) {
	s := &Socket{
		conn:       conn,
		dec:        sipmsg.NewDecoder(conn),
		outbound:   make(chan *sipmsg.Message, outboundQueueDepth),
		routes:     make(map[string]chan *sipmsg.Message),
		incomingCh: incomingCh,
		cfg:        cfg,
		ports:      ports,
	}

	if err := s.register(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying TCP connection, unblocking Run.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Send enqueues a message for transmission. It blocks while the
// outbound queue is full, throttling chatty callers.
func (s *Socket) Send(msg *sipmsg.Message) error {
	s.outbound <- msg
	return nil
}

// RegisterRoute associates a Call-ID with the channel its dialog
// handler reads from.
func (s *Socket) RegisterRoute(callID string, ch chan *sipmsg.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[callID] = ch
}

// RemoveRoute removes a Call-ID's routing entry, e.g. once its dialog
// has terminated.
func (s *Socket) RemoveRoute(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, callID)
}

func (s *Socket) routeFor(callID string) (chan *sipmsg.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.routes[callID]
	return ch, ok
}

// register performs the synchronous REGISTER handshake: an initial
// REGISTER, and on a 401 challenge exactly one retry carrying a digest
// Authorization header.
func (s *Socket) register() error {
	branch := NewBranch()
	callID := NewBranch() // any unique token serves; reuse the branch generator

	req := s.buildRegister(callID, branch, 1, "")
	if err := s.writeDirect(req); err != nil {
		return err
	}

	resp, err := s.dec.Next()
	if err != nil {
		return fmt.Errorf("dialog: register: %w", err)
	}

	if resp.StatusCode == 200 {
		return nil
	}
	if resp.StatusCode != 401 {
		return &RegisterFailed{Status: resp.StatusCode, Reason: resp.Reason}
	}

	wwwAuth, _ := resp.GetHeader("WWW-Authenticate")
	chal, err := digest.ParseChallenge(wwwAuth)
	if err != nil {
		return fmt.Errorf("dialog: register: %w", err)
	}

	digestURI := fmt.Sprintf("sip:%s;transport=TCP", hostOnly(s.cfg.ServerAddr))
	authz, err := digest.Authorization("REGISTER", digestURI, s.cfg.Username, s.cfg.Password, chal)
	if err != nil {
		return fmt.Errorf("dialog: register: %w", err)
	}

	req2 := s.buildRegister(callID, branch, 2, authz)
	if err := s.writeDirect(req2); err != nil {
		return err
	}

	resp2, err := s.dec.Next()
	if err != nil {
		return fmt.Errorf("dialog: register retry: %w", err)
	}
	if resp2.StatusCode != 200 {
		return &RegisterFailed{Status: resp2.StatusCode, Reason: resp2.Reason}
	}
	return nil
}

// hostOnly strips a trailing :port, matching the digest- and
// request-URI form this library sends (host only, no port).
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (s *Socket) buildRegister(callID, branch string, cseq int, authz string) *sipmsg.Message {
	req := sipmsg.NewRequest("REGISTER", fmt.Sprintf("sip:%s", hostOnly(s.cfg.ServerAddr)))
	req.AppendHeader("Via", fmt.Sprintf("SIP/2.0/TCP %s;branch=%s;rport", s.cfg.OwnAddr, branch))
	req.AppendHeader("Max-Forwards", "70")
	req.AppendHeader("Call-ID", callID)
	req.AppendHeader("Contact", fmt.Sprintf("<sip:%s@%s;transport=TCP>", s.cfg.Username, s.cfg.OwnAddr))
	req.AppendHeader("From", fmt.Sprintf("<sip:%s@%s>;tag=%s", s.cfg.Username, s.cfg.ServerAddr, branch))
	req.AppendHeader("To", fmt.Sprintf("<sip:%s@%s>", s.cfg.Username, s.cfg.ServerAddr))
	req.AppendHeader("CSeq", fmt.Sprintf("%d REGISTER", cseq))
	if authz != "" {
		req.AppendHeader("Authorization", authz)
	}
	req.AppendHeader("Content-Length", "0")
	req.AppendHeader("User-Agent", "sipua")
	return req
}

func (s *Socket) writeDirect(msg *sipmsg.Message) error {
	_, err := s.conn.Write(msg.Encode())
	if err != nil {
		return fmt.Errorf("dialog: write: %w", err)
	}
	return nil
}

// Run is the socket's single-task event loop: select over the next
// decoded message and the outbound queue, until ctx is cancelled or
// the transport fails.
func (s *Socket) Run(ctx context.Context) error {
	msgCh := make(chan *sipmsg.Message)
	errCh := make(chan error, 1)
	go s.readLoop(msgCh, errCh)

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-msgCh:
			if !ok {
				return ErrTransportClosed
			}
			s.dispatch(msg)

		case err := <-errCh:
			return fmt.Errorf("dialog: %w: %v", ErrTransportClosed, err)

		case out := <-s.outbound:
			if err := s.writeDirect(out); err != nil {
				return err
			}
		}
	}
}

func (s *Socket) readLoop(out chan<- *sipmsg.Message, errCh chan<- error) {
	defer close(out)
	for {
		msg, err := s.dec.Next()
		if err != nil {
			var decodeErr *sipmsg.DecodeError
			if errors.As(err, &decodeErr) {
				logger.Warn("dialog: discarding malformed message", "err", err)
				continue
			}
			errCh <- err
			return
		}
		out <- msg
	}
}

func (s *Socket) dispatch(msg *sipmsg.Message) {
	callID := msg.CallID()
	if ch, ok := s.routeFor(callID); ok {
		select {
		case ch <- msg:
		default:
			// A full/closed per-call channel means the call task has
			// already terminated; prune the stale route.
			s.RemoveRoute(callID)
		}
		return
	}

	if !msg.IsRequest {
		logger.Warn("dialog: response with no matching dialog", "call_id", callID)
		return
	}

	switch msg.Method {
	case "OPTIONS":
		s.handleOptions(msg)
	case "INVITE":
		s.handleInvite(msg)
	default:
		logger.Warn("dialog: unhandled top-level request", "method", msg.Method)
	}
}

func (s *Socket) handleOptions(req *sipmsg.Message) {
	resp := sipmsg.NewResponse(200, "")
	via, _ := req.Via()
	from, _ := req.GetHeader("From")
	to, _ := req.GetHeader("To")
	cseq, _ := req.GetHeader("CSeq")

	resp.AppendHeader("Via", via)
	resp.AppendHeader("Call-ID", req.CallID())
	resp.AppendHeader("From", from)
	resp.AppendHeader("To", to)
	resp.AppendHeader("CSeq", cseq)
	resp.AppendHeader("Contact", fmt.Sprintf("<sip:%s@%s;transport=TCP>", s.cfg.Username, s.cfg.OwnAddr))
	resp.AppendHeader("Allow", "INVITE, ACK, BYE, CANCEL, OPTIONS")
	resp.AppendHeader("Accept", "application/sdp")
	resp.AppendHeader("Accept-Language", "en")
	resp.AppendHeader("Content-Length", "0")

	// Called synchronously from the run-loop goroutine itself; write
	// directly rather than through the outbound queue to avoid the
	// task deadlocking against its own full queue.
	if err := s.writeDirect(resp); err != nil {
		logger.Warn("dialog: failed to send OPTIONS response", "err", err)
	}
}

func (s *Socket) handleInvite(req *sipmsg.Message) {
	port := s.ports.Next()

	localURI := sipmsg.URI{Scheme: "sip", User: s.cfg.Username, Host: s.cfg.OwnAddr}
	params, err := NewRemoteSessionParameters(s.cfg, req, localURI, port)
	if err != nil {
		logger.Warn("dialog: rejecting malformed INVITE", "err", err)
		return
	}

	inbound := make(chan *sipmsg.Message, perCallInboundDepth)
	s.RegisterRoute(params.CallID(), inbound)

	ic := newIncomingCall(s, req, params, inbound)
	select {
	case s.incomingCh <- ic:
	default:
		// No room in the manager's incoming queue; this mirrors the
		// original's behavior of never blocking the socket loop on
		// application-side backpressure for a brand-new call.
		logger.Warn("dialog: incoming call queue full, dropping INVITE", "call_id", params.CallID())
		s.RemoveRoute(params.CallID())
		return
	}

	if err := ic.sendRinging(); err != nil {
		logger.Warn("dialog: failed to send 180 Ringing", "err", err)
	}
}
