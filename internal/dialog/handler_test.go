package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/sipua/internal/sipmsg"
)

// TestCallHandlerSendsByeWithRemoteURI covers a local Hangup(): the BYE
// it produces must carry the remote party's URI as its Request-URI,
// not an empty one.
func TestCallHandlerSendsByeWithRemoteURI(t *testing.T) {
	cfg := testConfig()
	sock := &Socket{routes: make(map[string]chan *sipmsg.Message), cfg: cfg, outbound: make(chan *sipmsg.Message, 8)}

	params := NewLocalSessionParameters(cfg, sipmsg.URI{Scheme: "sip", User: "alice", Host: "198.51.100.9"}, 20400)
	params.remote.uri = sipmsg.URI{Scheme: "sip", User: "bob", Host: "192.0.2.1"}
	params.remote.tag = "bobtag"

	inbound := make(chan *sipmsg.Message, perCallInboundDepth)
	sock.RegisterRoute(params.CallID(), inbound)

	h := newCallHandler(sock, params, inbound)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.run(ctx)

	h.control <- ControlHangup

	select {
	case bye := <-sock.outbound:
		if bye.Method != "BYE" {
			t.Fatalf("method = %s, want BYE", bye.Method)
		}
		if bye.RequestURI != params.RemoteURI().String() {
			t.Errorf("Request-URI = %q, want %q", bye.RequestURI, params.RemoteURI().String())
		}
		if bye.RequestURI == "" {
			t.Fatal("BYE Request-URI is empty")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outgoing BYE")
	}
}
