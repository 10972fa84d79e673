package media

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/rtp"
)

// sequencer tracks the per-codec RTP state the original's packetizer
// owned independently per codec: its own SSRC, a random starting
// sequence number, and a monotonically advancing timestamp.
type sequencer struct {
	ssrc      uint32
	seq       uint16
	timestamp uint32
}

func newSequencer() sequencer {
	var b [4]byte
	_, _ = rand.Read(b[:])
	ssrc := binary.BigEndian.Uint32(b[:])

	var sb [2]byte
	_, _ = rand.Read(sb[:])
	seq := binary.BigEndian.Uint16(sb[:])

	return sequencer{ssrc: ssrc, seq: seq, timestamp: 0}
}

// packetize builds one RTP packet and advances seq/timestamp.
func (s *sequencer) packetize(payloadType uint8, payload []byte, timestampIncrement uint32, marker bool) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}
	s.seq++
	s.timestamp += timestampIncrement
	return data, nil
}
