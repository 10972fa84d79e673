package rtpsession

import (
	"fmt"
	"strings"

	"github.com/sebas/sipua/internal/media"
	"github.com/sebas/sipua/internal/sdp"
)

// SupportedOffer is the fixed, closed codec set this library offers:
// Opus (dynamic PT, negotiated), PCMU (0), PCMA (8), telephone-event
// (101), using the common static/dynamic payload-type assignments.
func SupportedOffer() []sdp.CodecOffer {
	return []sdp.CodecOffer{
		{PayloadType: 96, Name: "opus", ClockRate: 48000, Channels: 2},
		{PayloadType: 0, Name: "pcmu", ClockRate: 8000, Channels: 1},
		{PayloadType: 8, Name: "pcma", ClockRate: 8000, Channels: 1},
		{PayloadType: 101, Name: "telephone-event", ClockRate: 8000, Channels: 1, Fmtp: "0-15"},
	}
}

// CodecsFromNegotiated builds one media.Codec per entry in neg.Codecs,
// bound to the remote-assigned payload type and the negotiated ptime.
func CodecsFromNegotiated(neg *sdp.Negotiated) ([]media.Codec, error) {
	var codecs []media.Codec
	for _, c := range neg.Codecs {
		switch strings.ToLower(c.Name) {
		case "opus":
			oc, err := media.NewOpusCodec(c.PayloadType, int(c.ClockRate), c.Channels, neg.PtimeMs)
			if err != nil {
				return nil, fmt.Errorf("rtpsession: building opus codec: %w", err)
			}
			codecs = append(codecs, oc)
		case "pcmu":
			codecs = append(codecs, media.NewPCMUCodec(c.PayloadType, neg.PtimeMs))
		case "pcma":
			codecs = append(codecs, media.NewPCMACodec(c.PayloadType, neg.PtimeMs))
		case "telephone-event":
			codecs = append(codecs, media.NewTelephoneEventCodec(c.PayloadType))
		}
	}
	if len(codecs) == 0 {
		return nil, fmt.Errorf("rtpsession: no supported codec in negotiated set")
	}
	return codecs, nil
}
