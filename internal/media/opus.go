package media

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// OpusCodec decodes/encodes at 48kHz, defaulting to stereo, using
// gopkg.in/hraban/opus.v2's cgo binding to libopus.
type OpusCodec struct {
	payloadType uint8
	sampleRate  int
	channels    int
	ptimeMs     int

	encoder *opus.Encoder
	decoder *opus.Decoder

	seq       sequencer
	bufferOut []float32
}

const opusMaxPayloadBytes = 4000

// NewOpusCodec constructs an Opus codec for the negotiated payload
// type, sample rate, and channel count (falling back to 48kHz stereo
// when the remote offer omitted either).
func NewOpusCodec(payloadType uint8, sampleRate, channels, ptimeMs int) (*OpusCodec, error) {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	if channels == 0 {
		channels = 2
	}
	if ptimeMs <= 0 {
		ptimeMs = 20
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("media: opus: new encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("media: opus: new decoder: %w", err)
	}

	return &OpusCodec{
		payloadType: payloadType,
		sampleRate:  sampleRate,
		channels:    channels,
		ptimeMs:     ptimeMs,
		encoder:     enc,
		decoder:     dec,
		seq:         newSequencer(),
	}, nil
}

func (c *OpusCodec) PayloadType() uint8 { return c.payloadType }

func (c *OpusCodec) CanHandle(m Media) bool { return m.Kind == KindAudio }

func (c *OpusCodec) samplesPerFrame() int {
	return c.sampleRate / 1000 * c.ptimeMs
}

func (c *OpusCodec) DecodePayload(payload []byte) (*Media, error) {
	pcm := make([]int16, c.samplesPerFrame()*c.channels)
	n, err := c.decoder.Decode(payload, pcm)
	if err != nil {
		return nil, fmt.Errorf("media: opus: decode: %w", err)
	}
	pcm = pcm[:n*c.channels]

	floats := make([]float32, len(pcm))
	for i, v := range pcm {
		floats[i] = float32(v) / 32768
	}

	var mono []float32
	if c.channels == 2 {
		mono = downmixToMono(floats)
	} else {
		mono = floats
	}
	upsampled := linearResample(mono, uint32(c.sampleRate), 48000)
	stereo := duplicateToStereo(upsampled)

	m := AudioMedia(stereo)
	return &m, nil
}

func (c *OpusCodec) AppendToBuffer(m Media) {
	if m.Kind != KindAudio {
		return
	}
	if len(c.bufferOut) > outboundBufferCap {
		return
	}
	c.bufferOut = append(c.bufferOut, m.Audio...)
}

func (c *OpusCodec) NextPackets() ([][]byte, error) {
	samplesPerFrame := 48000 / 1000 * c.ptimeMs * 2 // stereo @ 48kHz
	if len(c.bufferOut) == 0 {
		return nil, nil
	}

	taken, rest := takeOrPad(c.bufferOut, samplesPerFrame)
	c.bufferOut = rest

	var pcmFloats []float32
	if c.channels == 2 {
		pcmFloats = linearResample(taken, 48000, uint32(c.sampleRate))
	} else {
		mono := downmixToMono(taken)
		pcmFloats = linearResample(mono, 48000, uint32(c.sampleRate))
	}

	pcm := make([]int16, len(pcmFloats))
	for i, s := range pcmFloats {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}

	opusData := make([]byte, opusMaxPayloadBytes)
	n, err := c.encoder.Encode(pcm, opusData)
	if err != nil {
		return nil, fmt.Errorf("media: opus: encode: %w", err)
	}

	data, err := c.seq.packetize(c.payloadType, opusData[:n], uint32(c.samplesPerFrame()), false)
	if err != nil {
		return nil, fmt.Errorf("media: opus: packetize: %w", err)
	}
	return [][]byte{data}, nil
}
