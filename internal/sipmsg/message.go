// Package sipmsg implements the message model and TCP framing codec for
// the SIP subset this library speaks: Request/Response, a small set of
// typed header accessors, and a decoder that frames messages off a byte
// stream by CRLFCRLF + Content-Length.
package sipmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Header is one name/value pair, kept in wire order.
type Header struct {
	Name  string
	Value string
}

// Message is either a Request or a Response; IsRequest discriminates.
// Headers are kept in insertion order so Encode round-trips byte-for-byte
// modulo header construction order chosen by the builder.
type Message struct {
	IsRequest bool

	// Request fields.
	Method     string
	RequestURI string

	// Response fields.
	StatusCode int
	Reason     string

	Headers []Header
	Body    []byte
}

// GetHeader returns the value of the first header matching name
// case-insensitively, and whether one was found.
func (m *Message) GetHeader(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// AppendHeader appends a header, preserving insertion order.
func (m *Message) AppendHeader(name, value string) {
	m.Headers = append(m.Headers, Header{Name: name, Value: value})
}

// SetHeader replaces the first header with this name, or appends one if
// none exists.
func (m *Message) SetHeader(name, value string) {
	for i := range m.Headers {
		if strings.EqualFold(m.Headers[i].Name, name) {
			m.Headers[i].Value = value
			return
		}
	}
	m.AppendHeader(name, value)
}

// CallID returns the Call-ID header value.
func (m *Message) CallID() string {
	v, _ := m.GetHeader("Call-ID")
	return v
}

// CSeq returns the CSeq header's sequence number and method.
func (m *Message) CSeq() (uint32, string, error) {
	v, ok := m.GetHeader("CSeq")
	if !ok {
		return 0, "", fmt.Errorf("sipmsg: no CSeq header")
	}
	fields := strings.Fields(v)
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("sipmsg: malformed CSeq %q", v)
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("sipmsg: malformed CSeq number %q: %w", fields[0], err)
	}
	return uint32(n), fields[1], nil
}

// From parses the From header into an Addr.
func (m *Message) From() (Addr, error) {
	v, ok := m.GetHeader("From")
	if !ok {
		return Addr{}, fmt.Errorf("sipmsg: no From header")
	}
	return ParseAddr(v)
}

// To parses the To header into an Addr.
func (m *Message) To() (Addr, error) {
	v, ok := m.GetHeader("To")
	if !ok {
		return Addr{}, fmt.Errorf("sipmsg: no To header")
	}
	return ParseAddr(v)
}

// Contact parses the Contact header into an Addr.
func (m *Message) Contact() (Addr, error) {
	v, ok := m.GetHeader("Contact")
	if !ok {
		return Addr{}, fmt.Errorf("sipmsg: no Contact header")
	}
	return ParseAddr(v)
}

// Via returns the raw value of the topmost Via header.
func (m *Message) Via() (string, bool) {
	return m.GetHeader("Via")
}

// ViaBranch extracts the branch= param from the topmost Via header.
func (m *Message) ViaBranch() (string, bool) {
	v, ok := m.Via()
	if !ok {
		return "", false
	}
	for _, part := range strings.Split(v, ";") {
		if name, val, found := strings.Cut(part, "="); found && strings.EqualFold(strings.TrimSpace(name), "branch") {
			return val, true
		}
	}
	return "", false
}

// ContentLength returns the Content-Length header's value, or 0 if
// absent or unparsable.
func (m *Message) ContentLength() int {
	v, ok := m.GetHeader("Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// StartLine renders the request-line or status-line for this message.
func (m *Message) StartLine() string {
	if m.IsRequest {
		return fmt.Sprintf("%s %s SIP/2.0", m.Method, m.RequestURI)
	}
	reason := m.Reason
	if reason == "" {
		reason = ReasonFor(m.StatusCode)
	}
	return fmt.Sprintf("SIP/2.0 %d %s", m.StatusCode, reason)
}

// Encode serializes the message to wire bytes: start line, headers in
// insertion order, a blank line, then the body.
func (m *Message) Encode() []byte {
	var b strings.Builder
	b.WriteString(m.StartLine())
	b.WriteString("\r\n")
	for _, h := range m.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	out := []byte(b.String())
	out = append(out, m.Body...)
	return out
}

// NewRequest builds a bare request with no headers and no body.
func NewRequest(method, requestURI string) *Message {
	return &Message{IsRequest: true, Method: method, RequestURI: requestURI}
}

// NewResponse builds a bare response with no headers and no body.
func NewResponse(status int, reason string) *Message {
	if reason == "" {
		reason = ReasonFor(status)
	}
	return &Message{IsRequest: false, StatusCode: status, Reason: reason}
}

// ReasonFor returns the standard reason phrase for the status codes this
// library emits or expects; unknown codes get a generic phrase.
func ReasonFor(status int) string {
	switch status {
	case 100:
		return "Trying"
	case 180:
		return "Ringing"
	case 183:
		return "Session Progress"
	case 200:
		return "OK"
	case 401:
		return "Unauthorized"
	case 480:
		return "Temporarily Unavailable"
	case 486:
		return "Busy Here"
	case 487:
		return "Request Terminated"
	case 500:
		return "Server Internal Error"
	case 503:
		return "Service Unavailable"
	case 600:
		return "Busy Everywhere"
	case 603:
		return "Decline"
	default:
		return "Unknown"
	}
}

// Addr is a display-name + URI + header-level params, as used by
// From/To/Contact headers: `"Alice" <sip:alice@host>;tag=abc`.
type Addr struct {
	Display string
	URI     URI
	Params  []Param
}

// Tag returns the tag= parameter, if present.
func (a Addr) Tag() (string, bool) {
	for _, p := range a.Params {
		if strings.EqualFold(p.Name, "tag") {
			return p.Value, true
		}
	}
	return "", false
}

// WithTag returns a copy of a with a tag= parameter appended.
func (a Addr) WithTag(tag string) Addr {
	a.Params = append(append([]Param{}, a.Params...), Param{Name: "tag", Value: tag})
	return a
}

// String renders the address in wire form, always bracketing the URI
// (matching the form this library both emits and expects to parse).
func (a Addr) String() string {
	var b strings.Builder
	if a.Display != "" {
		fmt.Fprintf(&b, "%q ", a.Display)
	}
	b.WriteByte('<')
	b.WriteString(a.URI.String())
	b.WriteByte('>')
	for _, p := range a.Params {
		b.WriteByte(';')
		b.WriteString(p.Name)
		if p.Value != "" {
			b.WriteByte('=')
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// ParseAddr parses a From/To/Contact header value of the form
// `["Display"] <uri>[;param...]`.
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)

	var display string
	if i := strings.IndexByte(s, '<'); i >= 0 {
		display = strings.Trim(strings.TrimSpace(s[:i]), `"`)
		rest := s[i:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return Addr{}, fmt.Errorf("sipmsg: unterminated <uri> in address %q", s)
		}
		uriPart := rest[1:end]
		u, err := ParseURI(uriPart)
		if err != nil {
			return Addr{}, err
		}
		var params []Param
		for _, raw := range strings.Split(rest[end+1:], ";") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if name, val, found := strings.Cut(raw, "="); found {
				params = append(params, Param{Name: name, Value: val})
			} else {
				params = append(params, Param{Name: raw})
			}
		}
		return Addr{Display: display, URI: u, Params: params}, nil
	}

	// No angle brackets: bare URI, optionally with trailing ;params.
	parts := strings.Split(s, ";")
	u, err := ParseURI(parts[0])
	if err != nil {
		return Addr{}, err
	}
	var params []Param
	for _, raw := range parts[1:] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if name, val, found := strings.Cut(raw, "="); found {
			params = append(params, Param{Name: name, Value: val})
		} else {
			params = append(params, Param{Name: raw})
		}
	}
	return Addr{URI: u, Params: params}, nil
}
