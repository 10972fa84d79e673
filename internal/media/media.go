// Package media implements the codec set: per-codec encode/decode
// and RTP packetization for Opus, PCMU, PCMA, and RFC 4733
// telephone-event, all operating on one shared audio-boundary format —
// interleaved stereo float32 at 48 kHz — and one shared control/media
// plane.
package media

// Kind discriminates the Media union.
type Kind int

const (
	KindAudio Kind = iota
	KindTelephoneEvent
	KindOutputEmpty
)

// Media is the tagged media-plane value exchanged between an RTP
// session and the application/call layer.
type Media struct {
	Kind Kind

	// Valid when Kind == KindAudio: interleaved stereo f32 @ 48kHz.
	Audio []float32

	// Valid when Kind == KindTelephoneEvent.
	Event uint8
	KeyUp bool
}

// AudioMedia wraps interleaved stereo f32 samples.
func AudioMedia(samples []float32) Media {
	return Media{Kind: KindAudio, Audio: samples}
}

// TelephoneEventMedia wraps a DTMF edge: keyUp=false is key-down,
// keyUp=true is key-up.
func TelephoneEventMedia(event uint8, keyUp bool) Media {
	return Media{Kind: KindTelephoneEvent, Event: event, KeyUp: keyUp}
}

// OutputEmptyMedia is the latch signaling the outbound buffer ran dry.
func OutputEmptyMedia() Media {
	return Media{Kind: KindOutputEmpty}
}

// Codec is the uniform operation set every codec in the set implements,
// dispatched over a closed sum of variants (Opus/PCMU/PCMA/telephone
// event) rather than an open set of plugins, since the codec set here
// is fixed.
type Codec interface {
	PayloadType() uint8
	CanHandle(m Media) bool
	DecodePayload(payload []byte) (*Media, error)
	AppendToBuffer(m Media)
	NextPackets() ([][]byte, error)
}

// outboundBufferCap is the soft cap on an outbound codec buffer before
// further writes are dropped, bounding drift between producer and the
// paced RTP sender.
const outboundBufferCap = 5000
