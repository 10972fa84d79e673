package media

import (
	"fmt"

	"github.com/zaf/g711"
)

// PCMUCodec is G.711 µ-law: 8kHz mono on the wire, stereo 48kHz f32 at
// the application boundary. Encoding uses zaf/g711 for this conversion.
type PCMUCodec struct {
	payloadType uint8
	ptimeMs     int
	seq         sequencer
	bufferOut   []float32
}

const pcmuSampleRate = 8000

// NewPCMUCodec constructs a PCMU codec bound to the remote-negotiated
// payload type and ptime (default 20ms).
func NewPCMUCodec(payloadType uint8, ptimeMs int) *PCMUCodec {
	if ptimeMs <= 0 {
		ptimeMs = 20
	}
	return &PCMUCodec{payloadType: payloadType, ptimeMs: ptimeMs, seq: newSequencer()}
}

func (c *PCMUCodec) PayloadType() uint8 { return c.payloadType }

func (c *PCMUCodec) CanHandle(m Media) bool { return m.Kind == KindAudio }

func (c *PCMUCodec) DecodePayload(payload []byte) (*Media, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("media: pcmu: empty payload")
	}
	pcm := g711.DecodeUlaw(payload)
	mono := pcm16ToFloat(pcm)
	upsampled := linearResample(mono, pcmuSampleRate, 48000)
	stereo := duplicateToStereo(upsampled)
	m := AudioMedia(stereo)
	return &m, nil
}

func (c *PCMUCodec) AppendToBuffer(m Media) {
	if m.Kind != KindAudio {
		return
	}
	if len(c.bufferOut) > outboundBufferCap {
		return
	}
	c.bufferOut = append(c.bufferOut, m.Audio...)
}

func (c *PCMUCodec) NextPackets() ([][]byte, error) {
	samplesPerFrame := 48000 / 1000 * c.ptimeMs * 2 // stereo samples at 48kHz per frame
	if len(c.bufferOut) == 0 {
		return nil, nil
	}

	taken, rest := takeOrPad(c.bufferOut, samplesPerFrame)
	c.bufferOut = rest

	mono := downmixToMono(taken)
	resampled := linearResample(mono, 48000, pcmuSampleRate)
	pcm := floatToPCM16(resampled)
	payload := g711.EncodeUlaw(pcm)

	data, err := c.seq.packetize(c.payloadType, payload, uint32(len(resampled)), false)
	if err != nil {
		return nil, fmt.Errorf("media: pcmu: packetize: %w", err)
	}
	return [][]byte{data}, nil
}
