package media

import "testing"

func TestPCMUNextPacketsAndDecode(t *testing.T) {
	c := NewPCMUCodec(0, 20)

	stereo := make([]float32, 48000/1000*20*2) // 20ms stereo @ 48kHz
	for i := range stereo {
		stereo[i] = 0.1
	}
	c.AppendToBuffer(AudioMedia(stereo))

	packets, err := c.NextPackets()
	if err != nil {
		t.Fatalf("NextPackets: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	// An RTP header is 12 bytes; the payload should be 160 bytes (8kHz, 20ms, mono, 1 byte/sample).
	if len(packets[0]) != 12+160 {
		t.Fatalf("packet length = %d, want %d", len(packets[0]), 12+160)
	}

	decoded, err := c.DecodePayload(packets[0][12:])
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded == nil || decoded.Kind != KindAudio || len(decoded.Audio) == 0 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestPCMUUnderrunPadsTail(t *testing.T) {
	c := NewPCMUCodec(0, 20)
	c.AppendToBuffer(AudioMedia([]float32{0.5, 0.5})) // far less than one frame

	packets, err := c.NextPackets()
	if err != nil {
		t.Fatalf("NextPackets: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected one zero-padded packet even on underrun, got %d", len(packets))
	}
}
