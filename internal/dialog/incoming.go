package dialog

import (
	"fmt"

	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/rtpsession"
	"github.com/sebas/sipua/internal/sdp"
	"github.com/sebas/sipua/internal/sipmsg"
)

const perCallInboundDepth = 32

// IncomingCall is the pre-answer state for a received INVITE. It
// is constructed by the socket, which queues it for the application
// and then writes 180 Ringing from its run-loop, so the 180 goes out
// before any response the application sends through the outbound
// queue. It resolves into either a Call (accept) or termination
// (reject, or a race with CANCEL).
type IncomingCall struct {
	socket  *Socket
	req     *sipmsg.Message
	params  *SessionParameters
	inbound chan *sipmsg.Message

	cancelled bool
}

func newIncomingCall(s *Socket, req *sipmsg.Message, params *SessionParameters, inbound chan *sipmsg.Message) *IncomingCall {
	return &IncomingCall{socket: s, req: req, params: params, inbound: inbound}
}

// sendRinging is only ever called from the socket's own run-loop
// goroutine (handleInvite), so it writes directly instead of going
// through the outbound queue: going through the queue here would risk
// the same task deadlocking against itself if the queue were ever
// full.
func (ic *IncomingCall) sendRinging() error {
	resp := sipmsg.NewResponse(180, "")
	for _, h := range ic.params.ResponseHeaders(ic.req, 0) {
		resp.AppendHeader(h.Name, h.Value)
	}
	return ic.socket.writeDirect(resp)
}

// RemoteURI returns the calling party's URI, read from the INVITE's
// From header.
func (ic *IncomingCall) RemoteURI() sipmsg.URI {
	from, err := ic.req.From()
	if err != nil {
		return sipmsg.URI{}
	}
	return from.URI
}

// drainCancel non-blockingly drains any messages already queued on the
// inbound channel, looking for a CANCEL. Any other message seen before
// the channel empties is dropped with a warning: nothing but CANCEL is
// expected before accept()/reject() resolves the pre-answer state.
func (ic *IncomingCall) drainCancel() *sipmsg.Message {
	for {
		select {
		case msg := <-ic.inbound:
			if msg.IsRequest && msg.Method == "CANCEL" {
				return msg
			}
			logger.Warn("dialog: ignoring message before incoming call answered", "method", msg.Method)
		default:
			return nil
		}
	}
}

func (ic *IncomingCall) ackCancel(cancel *sipmsg.Message) error {
	resp := sipmsg.NewResponse(200, "")
	for _, h := range ic.params.ResponseHeaders(cancel, 0) {
		resp.AppendHeader(h.Name, h.Value)
	}
	ic.cancelled = true
	return ic.socket.Send(resp)
}

// Accept answers the call: if a CANCEL already arrived, it is
// acknowledged and ErrCancelled is returned with no media set up.
// Otherwise a 200 OK carrying the negotiated local SDP is sent and a
// Call is spawned.
func (ic *IncomingCall) Accept() (*Call, error) {
	if cancel := ic.drainCancel(); cancel != nil {
		if err := ic.ackCancel(cancel); err != nil {
			logger.Warn("dialog: failed to ack late CANCEL", "err", err)
		}
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, ErrCancelled
	}

	neg, err := sdp.ParseRemote(ic.req.Body, rtpsession.SupportedOffer())
	if err != nil {
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, fmt.Errorf("dialog: %w: %v", ErrInvalidSDP, err)
	}
	codecs, err := rtpsession.CodecsFromNegotiated(neg)
	if err != nil {
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, fmt.Errorf("dialog: %w", ErrNoCompatibleCodec)
	}

	localSDP, err := sdp.BuildOffer(ic.socket.cfg.OwnAddr, ic.params.RTPPort(), rtpsession.SupportedOffer())
	if err != nil {
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, fmt.Errorf("dialog: %w: %v", ErrInvalidSDP, err)
	}
	ic.params.SetLocalSDP(localSDP)

	resp := sipmsg.NewResponse(200, "")
	for _, h := range ic.params.ResponseHeaders(ic.req, len(localSDP)) {
		resp.AppendHeader(h.Name, h.Value)
	}
	resp.AppendHeader("Content-Type", "application/sdp")
	resp.Body = localSDP

	if err := ic.socket.Send(resp); err != nil {
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, fmt.Errorf("dialog: failed to send 200 OK: %w", err)
	}

	session, err := rtpsession.New(ic.params.RTPPort(), neg.RemoteAddr, neg.RemotePort, codecs, neg.PtimeMs)
	if err != nil {
		ic.socket.RemoveRoute(ic.params.CallID())
		return nil, fmt.Errorf("dialog: failed to start RTP session: %w", err)
	}

	return newCall(ic.socket, ic.params, ic.inbound, session), nil
}

// Reject declines the call: 603 Decline, unless a CANCEL already
// arrived, in which case it is acknowledged instead.
func (ic *IncomingCall) Reject() error {
	defer ic.socket.RemoveRoute(ic.params.CallID())

	if cancel := ic.drainCancel(); cancel != nil {
		return ic.ackCancel(cancel)
	}

	resp := sipmsg.NewResponse(603, "")
	for _, h := range ic.params.ResponseHeaders(ic.req, 0) {
		resp.AppendHeader(h.Name, h.Value)
	}
	return ic.socket.Send(resp)
}
