package dialog

import (
	"context"
	"fmt"

	"github.com/sebas/sipua/internal/digest"
	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/rtpsession"
	"github.com/sebas/sipua/internal/sdp"
	"github.com/sebas/sipua/internal/sipmsg"
)

// OutgoingCall is the pre-answer state for a locally-initiated INVITE.
// Construction sends the INVITE immediately; WaitForAnswer then
// drives the response loop until the dialog is accepted, rejected, or
// the transport closes.
type OutgoingCall struct {
	socket  *Socket
	params  *SessionParameters
	inbound chan *sipmsg.Message

	branch     string
	challenged bool
}

// Dial builds and sends an INVITE to "to" and registers the dialog's
// routing entry. WaitForAnswer must be called to drive it to
// completion.
func Dial(s *Socket, to sipmsg.URI, localUsername, ownAddr string, rtpPort int) (*OutgoingCall, error) {
	localURI := sipmsg.URI{Scheme: "sip", User: localUsername, Host: ownAddr}
	params := NewLocalSessionParameters(s.cfg, localURI, rtpPort)
	params.remote.uri = to

	inbound := make(chan *sipmsg.Message, perCallInboundDepth)
	s.RegisterRoute(params.CallID(), inbound)

	oc := &OutgoingCall{socket: s, params: params, inbound: inbound}
	if err := oc.sendInvite(""); err != nil {
		s.RemoveRoute(params.CallID())
		return nil, err
	}
	return oc, nil
}

func (oc *OutgoingCall) sendInvite(authz string) error {
	offer, err := sdp.BuildOffer(oc.socket.cfg.OwnAddr, oc.params.RTPPort(), rtpsession.SupportedOffer())
	if err != nil {
		return fmt.Errorf("dialog: %w: %v", ErrInvalidSDP, err)
	}
	oc.params.SetLocalSDP(offer)

	oc.branch = NewBranch()
	req := sipmsg.NewRequest("INVITE", oc.params.remote.uri.String())
	for _, h := range oc.params.RequestHeaders("INVITE", oc.branch, len(offer)) {
		req.AppendHeader(h.Name, h.Value)
	}
	req.AppendHeader("Content-Type", "application/sdp")
	if authz != "" {
		req.AppendHeader("Authorization", authz)
	}
	req.Body = offer

	return oc.socket.Send(req)
}

// WaitForAnswer drives the INVITE transaction to completion: it
// follows at most one 401 challenge/retry, resolves a final rejection
// as Rejected, and a 200 OK as an established Call after sending ACK.
func (oc *OutgoingCall) WaitForAnswer(ctx context.Context) (*Call, error) {
	for {
		select {
		case <-ctx.Done():
			oc.socket.RemoveRoute(oc.params.CallID())
			return nil, ctx.Err()

		case msg, ok := <-oc.inbound:
			if !ok {
				oc.socket.RemoveRoute(oc.params.CallID())
				return nil, ErrTransportClosed
			}

			if msg.IsRequest {
				logger.Warn("dialog: outgoing call ignoring request mid-wait", "method", msg.Method)
				continue
			}

			switch msg.StatusCode {
			case 100:
				logger.Debug("dialog: outgoing call trying", "call_id", oc.params.CallID())
				continue
			case 180:
				logger.Debug("dialog: outgoing call ringing", "call_id", oc.params.CallID())
				continue
			case 183:
				logger.Debug("dialog: outgoing call session progress", "call_id", oc.params.CallID())
				continue

			case 401:
				if oc.challenged {
					oc.socket.RemoveRoute(oc.params.CallID())
					return nil, &Rejected{Status: msg.StatusCode, Reason: msg.Reason}
				}
				oc.challenged = true
				authz, err := oc.buildChallengeResponse(msg)
				if err != nil {
					oc.socket.RemoveRoute(oc.params.CallID())
					return nil, err
				}
				oc.params.NextCSeq()
				if err := oc.sendInvite(authz); err != nil {
					oc.socket.RemoveRoute(oc.params.CallID())
					return nil, err
				}
				continue

			case 486, 600, 480, 503, 487:
				oc.ackNon2xx(msg)
				oc.socket.RemoveRoute(oc.params.CallID())
				return nil, &Rejected{Status: msg.StatusCode, Reason: msg.Reason}

			case 200:
				return oc.handleAccepted(msg)

			default:
				logger.Warn("dialog: outgoing call ignoring unexpected status", "status", msg.StatusCode)
				continue
			}
		}
	}
}

func (oc *OutgoingCall) buildChallengeResponse(resp *sipmsg.Message) (string, error) {
	wwwAuth, ok := resp.GetHeader("WWW-Authenticate")
	if !ok {
		return "", fmt.Errorf("dialog: %w: 401 missing WWW-Authenticate", ErrAuthRequired)
	}
	chal, err := digest.ParseChallenge(wwwAuth)
	if err != nil {
		return "", fmt.Errorf("dialog: %w: %v", ErrAuthRequired, err)
	}
	digestURI := fmt.Sprintf("sip:%s;transport=TCP", hostOnly(oc.socket.cfg.ServerAddr))
	return digest.Authorization("INVITE", digestURI, oc.socket.cfg.Username, oc.socket.cfg.Password, chal)
}

func (oc *OutgoingCall) handleAccepted(resp *sipmsg.Message) (*Call, error) {
	if err := oc.params.SetRemoteFromResponse(resp); err != nil {
		oc.socket.RemoveRoute(oc.params.CallID())
		return nil, fmt.Errorf("dialog: %w: %v", ErrInvalidSDP, err)
	}

	neg, err := sdp.ParseRemote(resp.Body, rtpsession.SupportedOffer())
	if err != nil {
		oc.socket.RemoveRoute(oc.params.CallID())
		return nil, fmt.Errorf("dialog: %w: %v", ErrInvalidSDP, err)
	}
	codecs, err := rtpsession.CodecsFromNegotiated(neg)
	if err != nil {
		oc.socket.RemoveRoute(oc.params.CallID())
		return nil, fmt.Errorf("dialog: %w", ErrNoCompatibleCodec)
	}

	cseqNum, _, _ := resp.CSeq()
	ack := sipmsg.NewRequest("ACK", oc.params.remote.uri.String())
	for _, h := range oc.params.RequestHeaders("ACK", oc.branch, 0) {
		if h.Name == "CSeq" {
			h.Value = fmt.Sprintf("%d ACK", cseqNum)
		}
		ack.AppendHeader(h.Name, h.Value)
	}
	if err := oc.socket.Send(ack); err != nil {
		oc.socket.RemoveRoute(oc.params.CallID())
		return nil, fmt.Errorf("dialog: failed to send ACK: %w", err)
	}

	session, err := rtpsession.New(oc.params.RTPPort(), neg.RemoteAddr, neg.RemotePort, codecs, neg.PtimeMs)
	if err != nil {
		oc.socket.RemoveRoute(oc.params.CallID())
		return nil, fmt.Errorf("dialog: failed to start RTP session: %w", err)
	}

	return newCall(oc.socket, oc.params, oc.inbound, session), nil
}

func (oc *OutgoingCall) ackNon2xx(resp *sipmsg.Message) {
	if resp.StatusCode == 487 {
		return // the 487 here is the CANCEL's own final response, not the INVITE's
	}
	cseqNum, _, _ := resp.CSeq()
	ack := sipmsg.NewRequest("ACK", oc.params.remote.uri.String())
	for _, h := range oc.params.RequestHeaders("ACK", oc.branch, 0) {
		if h.Name == "CSeq" {
			h.Value = fmt.Sprintf("%d ACK", cseqNum)
		}
		ack.AppendHeader(h.Name, h.Value)
	}
	if err := oc.socket.Send(ack); err != nil {
		logger.Warn("dialog: failed to ack non-2xx INVITE response", "err", err)
	}
}

// Cancel sends a CANCEL reusing the INVITE's Via branch and CSeq
// number. It does not wait for the final response; any 487 that
// arrives is handled as part of WaitForAnswer's normal loop.
func (oc *OutgoingCall) Cancel() error {
	cancel := sipmsg.NewRequest("CANCEL", oc.params.remote.uri.String())
	for _, h := range oc.params.RequestHeaders("CANCEL", oc.branch, 0) {
		if h.Name == "CSeq" {
			h.Value = fmt.Sprintf("%d CANCEL", oc.params.CurrentCSeq())
		}
		cancel.AppendHeader(h.Name, h.Value)
	}
	return oc.socket.Send(cancel)
}
