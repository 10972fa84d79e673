package media

import "encoding/binary"

// Named DTMF event codes per RFC 4733 §3.
const (
	DTMF0     uint8 = 0
	DTMF1     uint8 = 1
	DTMF2     uint8 = 2
	DTMF3     uint8 = 3
	DTMF4     uint8 = 4
	DTMF5     uint8 = 5
	DTMF6     uint8 = 6
	DTMF7     uint8 = 7
	DTMF8     uint8 = 8
	DTMF9     uint8 = 9
	DTMFStar  uint8 = 10
	DTMFPound uint8 = 11
	DTMFA     uint8 = 12
	DTMFB     uint8 = 13
	DTMFC     uint8 = 14
	DTMFD     uint8 = 15
)

const (
	defaultEventVolume  uint8  = 10
	defaultEventDurMs   uint16 = 200 * 8 // 200ms at 8kHz in timestamp units
)

// TelephoneEventCodec implements RFC 4733 decode (required) and a
// minimal encode path, tracking currently pressed events to emit
// KeyDown/KeyUp edges rather than raw packets.
type TelephoneEventCodec struct {
	payloadType uint8
	pressed     map[uint8]bool

	seq     sequencer
	pending []pendingEvent
}

type pendingEvent struct {
	event uint8
	keyUp bool
}

// NewTelephoneEventCodec constructs a telephone-event codec bound to
// the remote-negotiated payload type (commonly 101).
func NewTelephoneEventCodec(payloadType uint8) *TelephoneEventCodec {
	return &TelephoneEventCodec{
		payloadType: payloadType,
		pressed:     make(map[uint8]bool),
		seq:         newSequencer(),
	}
}

func (c *TelephoneEventCodec) PayloadType() uint8 { return c.payloadType }

func (c *TelephoneEventCodec) CanHandle(m Media) bool { return m.Kind == KindTelephoneEvent }

// DecodePayload implements the edge semantics: a packet with end=0 for
// an event not currently pressed emits KeyDown and marks it pressed; a
// packet with end=1 emits KeyUp and clears it; any other combination
// (duplicate continuation, or end=1 for something not pressed) is
// suppressed and returns (nil, nil).
func (c *TelephoneEventCodec) DecodePayload(payload []byte) (*Media, error) {
	if len(payload) < 4 {
		return nil, nil
	}
	event := payload[0]
	end := payload[1]&0x80 != 0

	if !end {
		if c.pressed[event] {
			return nil, nil
		}
		c.pressed[event] = true
		m := TelephoneEventMedia(event, false)
		return &m, nil
	}

	if !c.pressed[event] {
		return nil, nil
	}
	delete(c.pressed, event)
	m := TelephoneEventMedia(event, true)
	return &m, nil
}

// AppendToBuffer queues a key edge to be sent as one RTP packet on the
// next send tick.
func (c *TelephoneEventCodec) AppendToBuffer(m Media) {
	if m.Kind != KindTelephoneEvent {
		return
	}
	c.pending = append(c.pending, pendingEvent{event: m.Event, keyUp: m.KeyUp})
}

func (c *TelephoneEventCodec) NextPackets() ([][]byte, error) {
	if len(c.pending) == 0 {
		return nil, nil
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]

	payload := make([]byte, 4)
	payload[0] = ev.event
	payload[1] = defaultEventVolume & 0x3F
	if ev.keyUp {
		payload[1] |= 0x80
	}
	binary.BigEndian.PutUint16(payload[2:], defaultEventDurMs)

	data, err := c.seq.packetize(c.payloadType, payload, 0, ev.keyUp)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}
