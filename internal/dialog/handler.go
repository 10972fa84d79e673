package dialog

import (
	"context"
	"fmt"

	"github.com/sebas/sipua/internal/logger"
	"github.com/sebas/sipua/internal/sipmsg"
)

// callHandler runs for the life of an answered dialog: it selects
// over the application's control channel and the dialog's inbound SIP
// messages, reacting to a local hangup request or a peer BYE,
// answering a late CANCEL with 200 OK, and ignoring everything else
// with a warning.
type callHandler struct {
	socket  *Socket
	params  *SessionParameters
	inbound chan *sipmsg.Message

	control  chan CallControl // from the application: Hangup
	toApp    chan CallControl // to the application: Finished (the only value sent)

	terminated bool
}

func newCallHandler(s *Socket, params *SessionParameters, inbound chan *sipmsg.Message) *callHandler {
	return &callHandler{
		socket:  s,
		params:  params,
		inbound: inbound,
		control: make(chan CallControl, 1),
		toApp:   make(chan CallControl, 4),
	}
}

// run drives the handler until the dialog terminates, for any reason,
// then emits Finished exactly once.
func (h *callHandler) run(ctx context.Context) {
	defer h.notifyFinished()

	for {
		select {
		case <-ctx.Done():
			return

		case ctrl, ok := <-h.control:
			if !ok {
				return
			}
			if ctrl == ControlHangup {
				h.sendBye()
				return
			}

		case msg, ok := <-h.inbound:
			if !ok {
				return
			}
			if h.handleDialogMessage(msg) {
				return
			}
		}
	}
}

// handleDialogMessage processes one in-dialog message and reports
// whether the dialog should now terminate.
func (h *callHandler) handleDialogMessage(msg *sipmsg.Message) bool {
	if h.terminated {
		return true
	}

	if msg.IsRequest && msg.Method == "BYE" {
		h.ackBye(msg)
		h.terminated = true
		return true
	}

	if msg.IsRequest && msg.Method == "CANCEL" {
		// A CANCEL that arrives after the 200 OK still gets its own
		// 200 OK; the answered dialog stays up.
		resp := sipmsg.NewResponse(200, "")
		for _, hdr := range h.params.ResponseHeaders(msg, 0) {
			resp.AppendHeader(hdr.Name, hdr.Value)
		}
		if err := h.socket.Send(resp); err != nil {
			logger.Warn("dialog: failed to ack late CANCEL", "err", err)
		}
		return false
	}

	if msg.IsRequest {
		logger.Warn("dialog: call handler ignoring request", "method", msg.Method)
		return false
	}

	logger.Warn("dialog: call handler ignoring response", "status", msg.StatusCode)
	return false
}

func (h *callHandler) ackBye(bye *sipmsg.Message) {
	resp := sipmsg.NewResponse(200, "")
	for _, hdr := range h.params.ResponseHeaders(bye, 0) {
		resp.AppendHeader(hdr.Name, hdr.Value)
	}
	if err := h.socket.Send(resp); err != nil {
		logger.Warn("dialog: failed to ack BYE", "err", err)
	}
}

func (h *callHandler) sendBye() {
	h.terminated = true

	req := sipmsg.NewRequest("BYE", h.params.RemoteURI().String())
	cseq := h.params.NextCSeq()
	for _, hdr := range h.params.RequestHeaders("BYE", NewBranch(), 0) {
		if hdr.Name == "CSeq" {
			hdr.Value = fmt.Sprintf("%d BYE", cseq)
		}
		req.AppendHeader(hdr.Name, hdr.Value)
	}
	if err := h.socket.Send(req); err != nil {
		logger.Warn("dialog: failed to send BYE", "err", err)
	}
}

func (h *callHandler) notifyFinished() {
	h.socket.RemoveRoute(h.params.CallID())
	select {
	case h.toApp <- ControlFinished:
	default:
		logger.Warn("dialog: dropping Finished notification, application not listening")
	}
}
