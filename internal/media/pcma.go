package media

import "fmt"

// PCMACodec is G.711 A-law. Unlike PCMU, which goes through zaf/g711,
// this uses the standard piecewise-linear A-law companding directly
// (segment/exponent/mantissa form, XOR 0x55).
type PCMACodec struct {
	payloadType uint8
	ptimeMs     int
	seq         sequencer
	bufferOut   []float32
}

const pcmaSampleRate = 8000

// NewPCMACodec constructs a PCMA codec bound to the remote-negotiated
// payload type and ptime (default 20ms).
func NewPCMACodec(payloadType uint8, ptimeMs int) *PCMACodec {
	if ptimeMs <= 0 {
		ptimeMs = 20
	}
	return &PCMACodec{payloadType: payloadType, ptimeMs: ptimeMs, seq: newSequencer()}
}

func (c *PCMACodec) PayloadType() uint8 { return c.payloadType }

func (c *PCMACodec) CanHandle(m Media) bool { return m.Kind == KindAudio }

func (c *PCMACodec) DecodePayload(payload []byte) (*Media, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("media: pcma: empty payload")
	}
	mono := make([]float32, len(payload))
	for i, b := range payload {
		mono[i] = float32(alawDecode(b)) / 32768
	}
	upsampled := linearResample(mono, pcmaSampleRate, 48000)
	stereo := duplicateToStereo(upsampled)
	m := AudioMedia(stereo)
	return &m, nil
}

func (c *PCMACodec) AppendToBuffer(m Media) {
	if m.Kind != KindAudio {
		return
	}
	if len(c.bufferOut) > outboundBufferCap {
		return
	}
	c.bufferOut = append(c.bufferOut, m.Audio...)
}

func (c *PCMACodec) NextPackets() ([][]byte, error) {
	samplesPerFrame := 48000 / 1000 * c.ptimeMs * 2
	if len(c.bufferOut) == 0 {
		return nil, nil
	}

	taken, rest := takeOrPad(c.bufferOut, samplesPerFrame)
	c.bufferOut = rest

	mono := downmixToMono(taken)
	resampled := linearResample(mono, 48000, pcmaSampleRate)

	payload := make([]byte, len(resampled))
	for i, s := range resampled {
		v := s * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		payload[i] = alawEncode(int16(v))
	}

	data, err := c.seq.packetize(c.payloadType, payload, uint32(len(resampled)), false)
	if err != nil {
		return nil, fmt.Errorf("media: pcma: packetize: %w", err)
	}
	return [][]byte{data}, nil
}

// alawEncode converts one 16-bit linear PCM sample to A-law, using the
// standard segment/exponent/mantissa piecewise-linear approximation.
func alawEncode(x int16) byte {
	var ix int16
	if x < 0 {
		ix = (^x) >> 4
	} else {
		ix = x >> 4
	}

	if ix > 15 {
		iexp := int16(1)
		for ix > 16+15 {
			ix >>= 1
			iexp++
		}
		ix -= 16
		ix += iexp << 4
	}

	if x >= 0 {
		ix |= 0x0080
	}

	return byte((ix ^ 0x55) & 0xFF)
}

// alawDecode is the inverse of alawEncode.
func alawDecode(y byte) int16 {
	ix := (y ^ 0x55) & 0x7F
	iexp := ix >> 4
	mant := int16(ix & 0xF)
	if iexp > 0 {
		mant += 16
	}
	mant = (mant << 4) + 0x8
	if iexp > 1 {
		mant <<= iexp - 1
	}
	if y > 127 {
		return mant
	}
	return -mant
}
