package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/sipua/internal/sipmsg"
)

// TestOutgoingCallRejectedBusy covers provisional responses followed by
// a final rejection: 100, 180, then 486 resolves WaitForAnswer as
// Rejected(486).
func TestOutgoingCallRejectedBusy(t *testing.T) {
	cfg := testConfig()
	sock := &Socket{
		routes:   make(map[string]chan *sipmsg.Message),
		cfg:      cfg,
		outbound: make(chan *sipmsg.Message, 8),
	}

	to := sipmsg.URI{Scheme: "sip", User: "1002", Host: "192.0.2.1"}
	oc, err := Dial(sock, to, "alice", cfg.OwnAddr, 20300)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Drain the INVITE the Dial call enqueued so the outbound queue
	// does not fill further below.
	invite := <-sock.outbound
	if invite.Method != "INVITE" {
		t.Fatalf("first outbound message method = %s, want INVITE", invite.Method)
	}

	inbound, _ := sock.routeFor(oc.params.CallID())

	for _, status := range []int{100, 180} {
		resp := sipmsg.NewResponse(status, "")
		resp.AppendHeader("Call-ID", oc.params.CallID())
		resp.AppendHeader("CSeq", "1 INVITE")
		inbound <- resp
	}
	busy := sipmsg.NewResponse(486, "")
	busy.AppendHeader("Call-ID", oc.params.CallID())
	busy.AppendHeader("CSeq", "1 INVITE")
	inbound <- busy

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	call, err := oc.WaitForAnswer(ctx)
	if call != nil {
		t.Fatal("WaitForAnswer returned a Call for a rejected INVITE")
	}
	rej, ok := err.(*Rejected)
	if !ok {
		t.Fatalf("err = %v (%T), want *Rejected", err, err)
	}
	if rej.Status != 486 {
		t.Fatalf("Rejected.Status = %d, want 486", rej.Status)
	}
}
