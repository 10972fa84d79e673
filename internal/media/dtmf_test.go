package media

import "testing"

func TestTelephoneEventEdgeSemantics(t *testing.T) {
	c := NewTelephoneEventCodec(101)

	down, err := c.DecodePayload([]byte{0x05, 0x00, 0x00, 0xA0})
	if err != nil {
		t.Fatalf("decode key-down: %v", err)
	}
	if down == nil || down.Kind != KindTelephoneEvent || down.Event != DTMF5 || down.KeyUp {
		t.Fatalf("got %+v, want key-down 5", down)
	}

	dup, err := c.DecodePayload([]byte{0x05, 0x00, 0x00, 0xB0})
	if err != nil {
		t.Fatalf("decode duplicate continuation: %v", err)
	}
	if dup != nil {
		t.Fatalf("expected duplicate continuation to be suppressed, got %+v", dup)
	}

	up, err := c.DecodePayload([]byte{0x05, 0x80, 0x01, 0x40})
	if err != nil {
		t.Fatalf("decode key-up: %v", err)
	}
	if up == nil || up.Kind != KindTelephoneEvent || up.Event != DTMF5 || !up.KeyUp {
		t.Fatalf("got %+v, want key-up 5", up)
	}
}

func TestTelephoneEventNextPacketsRoundTrip(t *testing.T) {
	c := NewTelephoneEventCodec(101)
	c.AppendToBuffer(TelephoneEventMedia(DTMF9, false))

	packets, err := c.NextPackets()
	if err != nil {
		t.Fatalf("NextPackets: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	// Decode the payload (after the 12-byte RTP header) back through a
	// fresh codec: it must come out as key-down 9.
	decoded, err := NewTelephoneEventCodec(101).DecodePayload(packets[0][12:])
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded == nil || decoded.Kind != KindTelephoneEvent || decoded.Event != DTMF9 || decoded.KeyUp {
		t.Fatalf("got %+v, want key-down 9", decoded)
	}
}
