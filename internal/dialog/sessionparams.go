package dialog

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sebas/sipua/internal/config"
	"github.com/sebas/sipua/internal/sipmsg"
)

// localEnd and remoteEnd hold one side's URI/tag/SDP, as tracked by
// SessionParameters{local, remote}.
type localEnd struct {
	uri     sipmsg.URI
	tag     string
	sdp     []byte
	rtpPort int
}

type remoteEnd struct {
	uri sipmsg.URI
	tag string
	sdp []byte
}

// SessionParameters is per-dialog state: call_id, cseq, local/remote
// endpoints, and the config the dialog was built under. call_id never
// changes; cseq strictly increases on the local side; local tag is
// fixed at construction.
type SessionParameters struct {
	callID string
	cseq   uint32 // accessed only via NextCSeq/CurrentCSeq, both taking the dialog's single-writer assumption

	local  localEnd
	remote remoteEnd

	cfg *config.Config
}

// NewLocalSessionParameters builds SessionParameters for a
// locally-initiated dialog (outgoing INVITE): fresh Call-ID, local tag,
// and an allocated RTP port, with cseq starting at an arbitrary value
// >= 1 (any starting value is acceptable; it need not be 1).
func NewLocalSessionParameters(cfg *config.Config, localURI sipmsg.URI, rtpPort int) *SessionParameters {
	return &SessionParameters{
		callID: uuid.NewString(),
		cseq:   1,
		local: localEnd{
			uri:     localURI,
			tag:     uuid.NewString(),
			rtpPort: rtpPort,
		},
		cfg: cfg,
	}
}

// NewRemoteSessionParameters builds SessionParameters from an incoming
// INVITE: the remote's From uri/tag becomes our remote end, a fresh
// local tag and RTP port are allocated.
func NewRemoteSessionParameters(cfg *config.Config, req *sipmsg.Message, localURI sipmsg.URI, rtpPort int) (*SessionParameters, error) {
	from, err := req.From()
	if err != nil {
		return nil, fmt.Errorf("dialog: incoming INVITE missing From: %w", err)
	}
	tag, _ := from.Tag()

	return &SessionParameters{
		callID: req.CallID(),
		cseq:   1,
		local: localEnd{
			uri:     localURI,
			tag:     uuid.NewString(),
			rtpPort: rtpPort,
		},
		remote: remoteEnd{
			uri: from.URI,
			tag: tag,
			sdp: req.Body,
		},
		cfg: cfg,
	}, nil
}

// CallID returns the dialog's invariant Call-ID.
func (s *SessionParameters) CallID() string { return s.callID }

// RTPPort returns the local RTP port allocated for this dialog.
func (s *SessionParameters) RTPPort() int { return s.local.rtpPort }

// SetLocalSDP records the local offer/answer body.
func (s *SessionParameters) SetLocalSDP(body []byte) { s.local.sdp = body }

// SetRemoteFromResponse records the remote endpoint learned from a 200
// OK response's To header and body (outgoing-call path).
func (s *SessionParameters) SetRemoteFromResponse(resp *sipmsg.Message) error {
	to, err := resp.To()
	if err != nil {
		return fmt.Errorf("dialog: response missing To: %w", err)
	}
	tag, _ := to.Tag()
	s.remote.uri = to.URI
	s.remote.tag = tag
	s.remote.sdp = resp.Body
	return nil
}

// RemoteSDP returns the remote's last recorded SDP body.
func (s *SessionParameters) RemoteSDP() []byte { return s.remote.sdp }

// RemoteURI returns the other party's URI as currently recorded.
func (s *SessionParameters) RemoteURI() sipmsg.URI { return s.remote.uri }

// NextCSeq increments and returns the next local CSeq number. The
// dialog has a single local writer (its owning task), so no additional
// synchronization is required beyond the atomic itself.
func (s *SessionParameters) NextCSeq() uint32 {
	return uint32(atomic.AddUint32(&s.cseq, 1))
}

// CurrentCSeq returns the last CSeq number used without advancing it.
func (s *SessionParameters) CurrentCSeq() uint32 {
	return atomic.LoadUint32(&s.cseq)
}

// RequestHeaders builds the ordered header list for a request this
// dialog originates: Via, Max-Forwards, Call-ID, Contact, From (with
// local tag), To (with remote tag if learned), CSeq, Content-Length,
// User-Agent.
func (s *SessionParameters) RequestHeaders(method string, branch string, contentLength int) []sipmsg.Header {
	from := sipmsg.Addr{URI: s.local.uri}.WithTag(s.local.tag)
	to := sipmsg.Addr{URI: s.remote.uri}
	if s.remote.tag != "" {
		to = to.WithTag(s.remote.tag)
	}

	return []sipmsg.Header{
		{Name: "Via", Value: viaValue(s.cfg, branch)},
		{Name: "Max-Forwards", Value: "70"},
		{Name: "Call-ID", Value: s.callID},
		{Name: "Contact", Value: contactValue(s.cfg)},
		{Name: "From", Value: from.String()},
		{Name: "To", Value: to.String()},
		{Name: "CSeq", Value: fmt.Sprintf("%d %s", s.CurrentCSeq(), method)},
		{Name: "Content-Length", Value: fmt.Sprintf("%d", contentLength)},
		{Name: "User-Agent", Value: "sipua"},
	}
}

// ResponseHeaders builds the ordered header list for a response to a
// request within this dialog: Via (echoed), Max-Forwards, Call-ID,
// From (remote), To (local, tagged), CSeq (echoed), Content-Length,
// User-Agent.
func (s *SessionParameters) ResponseHeaders(req *sipmsg.Message, contentLength int) []sipmsg.Header {
	via, _ := req.Via()
	cseqNum, cseqMethod, _ := req.CSeq()

	from := sipmsg.Addr{URI: s.remote.uri}
	if s.remote.tag != "" {
		from = from.WithTag(s.remote.tag)
	}
	to := sipmsg.Addr{URI: s.local.uri}.WithTag(s.local.tag)

	return []sipmsg.Header{
		{Name: "Via", Value: via},
		{Name: "Max-Forwards", Value: "70"},
		{Name: "Call-ID", Value: s.callID},
		{Name: "From", Value: from.String()},
		{Name: "To", Value: to.String()},
		{Name: "CSeq", Value: fmt.Sprintf("%d %s", cseqNum, cseqMethod)},
		{Name: "Content-Length", Value: fmt.Sprintf("%d", contentLength)},
		{Name: "User-Agent", Value: "sipua"},
	}
}

func viaValue(cfg *config.Config, branch string) string {
	return fmt.Sprintf("SIP/2.0/TCP %s;branch=%s;rport", cfg.OwnAddr, branch)
}

func contactValue(cfg *config.Config) string {
	return fmt.Sprintf("<sip:%s@%s;transport=TCP>", cfg.Username, cfg.OwnAddr)
}

// NewBranch generates a fresh Via branch token.
func NewBranch() string {
	return "z9hG4bK" + uuid.NewString()
}
