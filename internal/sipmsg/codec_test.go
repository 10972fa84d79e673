package sipmsg

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecoderDiscardsKeepAlive(t *testing.T) {
	raw := "\r\n\r\n" + "OPTIONS sip:alice@host SIP/2.0\r\nCall-ID: abc\r\nContent-Length: 0\r\n\r\n"
	d := NewDecoder(strings.NewReader(raw))

	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !msg.IsRequest || msg.Method != "OPTIONS" {
		t.Fatalf("expected the OPTIONS request after the keep-alive, got %+v", msg)
	}
}

func TestDecoderReadsBodyByContentLength(t *testing.T) {
	body := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	raw := "INVITE sip:bob@host SIP/2.0\r\nCall-ID: xyz\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	d := NewDecoder(strings.NewReader(raw))

	msg, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(msg.Body) != body {
		t.Fatalf("body = %q, want %q", msg.Body, body)
	}
}

func TestDecoderRejectsOversizedContentLength(t *testing.T) {
	raw := "INVITE sip:bob@host SIP/2.0\r\nCall-ID: xyz\r\nContent-Length: 999999\r\n\r\n"
	d := NewDecoder(strings.NewReader(raw))

	_, err := d.Next()
	if err == nil {
		t.Fatal("expected a decode error for oversized content-length, got nil")
	}
	if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("err = %v (%T), want *DecodeError", err, err)
	}
}

// TestDecoderContinuesAfterMalformedMessage asserts the decoder stays
// usable after a decode error: the next Next() call picks up the
// following well-formed message rather than the caller having to
// recreate the Decoder.
func TestDecoderContinuesAfterMalformedMessage(t *testing.T) {
	bad := "garbage\r\n\r\n"
	good := "OPTIONS sip:alice@host SIP/2.0\r\nCall-ID: abc\r\nContent-Length: 0\r\n\r\n"
	d := NewDecoder(strings.NewReader(bad + good))

	_, err := d.Next()
	if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("first Next err = %v (%T), want *DecodeError", err, err)
	}

	msg, err := d.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if !msg.IsRequest || msg.Method != "OPTIONS" {
		t.Fatalf("expected the OPTIONS request after the malformed one, got %+v", msg)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewRequest("REGISTER", "sip:server")
	msg.AppendHeader("Call-ID", "call-1")
	msg.AppendHeader("CSeq", "1 REGISTER")
	msg.AppendHeader("Content-Length", "0")

	d := NewDecoder(bytes.NewReader(msg.Encode()))
	got, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.CallID() != "call-1" {
		t.Fatalf("CallID = %q, want call-1", got.CallID())
	}
	n, method, err := got.CSeq()
	if err != nil || n != 1 || method != "REGISTER" {
		t.Fatalf("CSeq = %d %q %v, want 1 REGISTER", n, method, err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
