package dialog

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/sebas/sipua/internal/config"
	"github.com/sebas/sipua/internal/portpool"
	"github.com/sebas/sipua/internal/sipmsg"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr: "192.0.2.1:5060",
		OwnAddr:    "198.51.100.9:5060",
		Username:   "alice",
		Password:   "secret",
	}
}

// fakeServer wraps one end of a net.Pipe with a sipmsg decoder, acting
// as the remote SIP party in tests.
type fakeServer struct {
	conn net.Conn
	dec  *sipmsg.Decoder
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{conn: conn, dec: sipmsg.NewDecoder(conn)}
}

func (f *fakeServer) recv(t *testing.T) *sipmsg.Message {
	t.Helper()
	msg, err := f.dec.Next()
	if err != nil {
		t.Fatalf("fake server: recv: %v", err)
	}
	return msg
}

func (f *fakeServer) send(t *testing.T, msg *sipmsg.Message) {
	t.Helper()
	if _, err := f.conn.Write(msg.Encode()); err != nil {
		t.Fatalf("fake server: send: %v", err)
	}
}

// TestRegisterWithAuthChallenge covers the digest retry: a 401
// challenge with realm="asterisk", nonce="abcdef" must produce an
// Authorization response matching the literal MD5 chain.
func TestRegisterWithAuthChallenge(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	srv := newFakeServer(serverConn)

	done := make(chan struct{})
	var gotAuthz string
	go func() {
		defer close(done)
		reg1 := srv.recv(t)
		if cseq, method, _ := reg1.CSeq(); cseq != 1 || method != "REGISTER" {
			t.Errorf("first REGISTER CSeq = %d %s, want 1 REGISTER", cseq, method)
		}

		challenge := sipmsg.NewResponse(401, "")
		challenge.AppendHeader("Call-ID", reg1.CallID())
		challenge.AppendHeader("CSeq", "1 REGISTER")
		challenge.AppendHeader("Via", mustVia(reg1))
		challenge.AppendHeader("WWW-Authenticate", `Digest realm="asterisk", nonce="abcdef"`)
		challenge.AppendHeader("Content-Length", "0")
		srv.send(t, challenge)

		reg2 := srv.recv(t)
		if cseq, _, _ := reg2.CSeq(); cseq != 2 {
			t.Errorf("retried REGISTER CSeq = %d, want 2", cseq)
		}
		gotAuthz, _ = reg2.GetHeader("Authorization")

		ok := sipmsg.NewResponse(200, "")
		ok.AppendHeader("Call-ID", reg2.CallID())
		ok.AppendHeader("CSeq", "2 REGISTER")
		ok.AppendHeader("Via", mustVia(reg2))
		ok.AppendHeader("Content-Length", "0")
		srv.send(t, ok)
	}()

	cfg := testConfig()
	ports := portpool.New(20000, 20010)
	incoming := make(chan *IncomingCall, 1)

	sock, err := newSocketOverConn(clientConn, cfg, ports, incoming)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer sock.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake server")
	}

	ha1 := md5hex("alice:asterisk:secret")
	ha2 := md5hex("REGISTER:sip:192.0.2.1;transport=TCP")
	want := md5hex(ha1 + ":abcdef:" + ha2)

	if gotAuthz == "" {
		t.Fatal("no Authorization header sent on retry")
	}
	if !containsSubstr(gotAuthz, `response="`+want+`"`) && !containsSubstr(gotAuthz, "response="+want) {
		t.Errorf("Authorization = %q, want response=%s", gotAuthz, want)
	}
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func containsSubstr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func mustVia(msg *sipmsg.Message) string {
	v, _ := msg.Via()
	return v
}

// TestIncomingCallCancelledBeforeAccept covers the accept/CANCEL race:
// a CANCEL arriving before Accept() is drained converts the call into
// Cancelled and a 200 OK is sent for the CANCEL.
func TestIncomingCallCancelledBeforeAccept(t *testing.T) {
	cfg := testConfig()
	sock := &Socket{
		routes: make(map[string]chan *sipmsg.Message),
		cfg:    cfg,
	}

	req := sipmsg.NewRequest("INVITE", "sip:alice@198.51.100.9")
	req.AppendHeader("Call-ID", "abc123")
	req.AppendHeader("From", `<sip:bob@192.0.2.1>;tag=bobtag`)
	req.AppendHeader("To", `<sip:alice@198.51.100.9>`)
	req.AppendHeader("CSeq", "1 INVITE")
	req.AppendHeader("Via", "SIP/2.0/TCP 192.0.2.1:5060;branch=z9hG4bKxyz")
	req.Body = []byte("v=0\r\no=- 0 0 IN IP4 192.0.2.1\r\ns=-\r\nc=IN IP4 192.0.2.1\r\nt=0 0\r\nm=audio 40000 RTP/AVP 0\r\na=rtpmap:0 PCMU/8000\r\n")

	params, err := NewRemoteSessionParameters(cfg, req, sipmsg.URI{Scheme: "sip", User: "alice", Host: "198.51.100.9"}, 20100)
	if err != nil {
		t.Fatalf("NewRemoteSessionParameters: %v", err)
	}

	inbound := make(chan *sipmsg.Message, perCallInboundDepth)
	sock.RegisterRoute(params.CallID(), inbound)

	cancel := sipmsg.NewRequest("CANCEL", "sip:alice@198.51.100.9")
	cancel.AppendHeader("Call-ID", params.CallID())
	cancel.AppendHeader("CSeq", "1 CANCEL")
	cancel.AppendHeader("Via", "SIP/2.0/TCP 192.0.2.1:5060;branch=z9hG4bKxyz")
	inbound <- cancel

	ic := newIncomingCall(sock, req, params, inbound)

	// sock.Send would block without a consumer; give the socket a
	// buffered outbound queue so Accept()'s ack can be enqueued, and
	// read it back below.
	sock.outbound = make(chan *sipmsg.Message, 8)

	call, err := ic.Accept()
	if err != ErrCancelled {
		t.Fatalf("Accept() err = %v, want ErrCancelled", err)
	}
	if call != nil {
		t.Fatal("Accept() on a cancelled call returned a non-nil Call")
	}

	select {
	case ack := <-sock.outbound:
		if ack.StatusCode != 200 {
			t.Errorf("CANCEL ack status = %d, want 200", ack.StatusCode)
		}
	default:
		t.Fatal("no ack sent for the late CANCEL")
	}

	if _, ok := sock.routeFor(params.CallID()); ok {
		t.Error("routing entry for a cancelled call was not removed")
	}
}

// TestCallHandlerTerminatesOnBye checks that receipt of a BYE leads to
// exactly one Finished notification.
func TestCallHandlerTerminatesOnBye(t *testing.T) {
	cfg := testConfig()
	sock := &Socket{routes: make(map[string]chan *sipmsg.Message), cfg: cfg, outbound: make(chan *sipmsg.Message, 8)}

	params := NewLocalSessionParameters(cfg, sipmsg.URI{Scheme: "sip", User: "alice", Host: "198.51.100.9"}, 20200)
	params.remote.uri = sipmsg.URI{Scheme: "sip", User: "bob", Host: "192.0.2.1"}
	params.remote.tag = "bobtag"

	inbound := make(chan *sipmsg.Message, perCallInboundDepth)
	sock.RegisterRoute(params.CallID(), inbound)

	h := newCallHandler(sock, params, inbound)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.run(ctx)

	bye := sipmsg.NewRequest("BYE", "sip:alice@198.51.100.9")
	bye.AppendHeader("Call-ID", params.CallID())
	bye.AppendHeader("CSeq", "2 BYE")
	bye.AppendHeader("Via", "SIP/2.0/TCP 192.0.2.1:5060;branch=z9hG4bKbye")
	inbound <- bye

	select {
	case ctrl := <-h.toApp:
		if ctrl != ControlFinished {
			t.Fatalf("got control %v, want Finished", ctrl)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Finished")
	}

	select {
	case ack := <-sock.outbound:
		if ack.StatusCode != 200 {
			t.Errorf("BYE ack status = %d, want 200", ack.StatusCode)
		}
	default:
		t.Fatal("no ack sent for the BYE")
	}
}
