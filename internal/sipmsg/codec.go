package sipmsg

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// MaxContentLength bounds how large a single message body can be
// before the decoder rejects the message outright, per the framing
// boundary behavior: a Content-Length above this is a decode error, not
// a truncation.
const MaxContentLength = 50_000

var crlfcrlf = []byte("\r\n\r\n")

// DecodeError reports a malformed message found on the wire: the
// decoder has already resynchronized past it (discarded up to and
// including the terminating CRLFCRLF) and remains usable. Callers
// should log it and call Next again, unlike an error surfaced from the
// underlying reader, which means the connection itself is gone.
type DecodeError struct {
	msg string
}

func (e *DecodeError) Error() string { return e.msg }

func newDecodeError(format string, args ...any) *DecodeError {
	return &DecodeError{msg: fmt.Sprintf(format, args...)}
}

// Decoder incrementally frames SIP messages off an io.Reader: it scans
// for CRLFCRLF, discards bare keep-alives, parses the header block, and
// waits for Content-Length body bytes before yielding a Message.
type Decoder struct {
	r      io.Reader
	buf    []byte
	rdbuf  [8192]byte
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next blocks until one full message (or a keep-alive, which is
// discarded internally) is available, returning the next Message.
// A malformed header block yields an error but does not close the
// decoder: the caller should log and call Next again.
func (d *Decoder) Next() (*Message, error) {
	for {
		idx := bytes.Index(d.buf, crlfcrlf)
		if idx < 0 {
			if err := d.fill(); err != nil {
				return nil, err
			}
			continue
		}

		if idx == 0 {
			// Bare CRLFCRLF: keep-alive, discard silently.
			d.buf = d.buf[4:]
			continue
		}

		headerBlock := d.buf[:idx]
		msg, err := parseHeaderBlock(headerBlock)
		if err != nil {
			d.buf = d.buf[idx+4:]
			return nil, newDecodeError("sipmsg: decode header block: %v", err)
		}

		contentLength := msg.ContentLength()
		if contentLength > MaxContentLength {
			d.buf = d.buf[idx+4:]
			return nil, newDecodeError("sipmsg: decode: content-length %d exceeds cap %d", contentLength, MaxContentLength)
		}

		total := idx + 4 + contentLength
		for len(d.buf) < total {
			if err := d.fill(); err != nil {
				return nil, err
			}
		}

		msg.Body = append([]byte(nil), d.buf[idx+4:total]...)
		d.buf = d.buf[total:]
		return msg, nil
	}
}

// fill reads more bytes from the underlying reader, appending to buf.
// Returns an error (including io.EOF) if the read fails.
func (d *Decoder) fill() error {
	n, err := d.r.Read(d.rdbuf[:])
	if n > 0 {
		d.buf = append(d.buf, d.rdbuf[:n]...)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.ErrNoProgress
	}
	return nil
}

// parseHeaderBlock parses a request-line/status-line plus headers (no
// trailing CRLFCRLF) into a Message with an empty Body.
func parseHeaderBlock(block []byte) (*Message, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("sipmsg: empty header block")
	}

	msg := &Message{}
	if err := parseStartLine(lines[0], msg); err != nil {
		return nil, err
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("sipmsg: malformed header line %q", line)
		}
		msg.Headers = append(msg.Headers, Header{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	return msg, nil
}

func parseStartLine(line string, msg *Message) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("sipmsg: malformed start line %q", line)
	}

	if strings.HasPrefix(fields[0], "SIP/") {
		// Status line: SIP/2.0 <code> <reason...>
		var code int
		if _, err := fmt.Sscanf(fields[1], "%d", &code); err != nil {
			return fmt.Errorf("sipmsg: malformed status code in %q: %w", line, err)
		}
		msg.IsRequest = false
		msg.StatusCode = code
		if len(fields) > 2 {
			msg.Reason = strings.Join(fields[2:], " ")
		}
		return nil
	}

	// Request line: METHOD request-uri SIP/2.0
	if len(fields) < 3 {
		return fmt.Errorf("sipmsg: malformed request line %q", line)
	}
	msg.IsRequest = true
	msg.Method = fields[0]
	msg.RequestURI = fields[1]
	return nil
}
