// Package sdp builds the local audio offer and parses a remote SDP body
// into a negotiated codec set and RTP endpoint: one m=audio line,
// static/dynamic payload types matched by codec name, and a default
// 20ms ptime when the remote doesn't advertise one.
package sdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// ErrInvalidSDP is returned for a missing m=audio line, no codec this
// library supports, or a malformed connection address.
var ErrInvalidSDP = errors.New("sdp: invalid or unsupported session description")

// CodecOffer describes one codec this library can put in an offer or
// recognize in an answer.
type CodecOffer struct {
	PayloadType uint8
	Name        string // "opus", "pcmu", "pcma", "telephone-event", matched case-insensitively
	ClockRate   uint32
	Channels    int // 0 or 1 means mono/unspecified
	Fmtp        string
}

const defaultPtimeMs = 20

// BuildOffer renders a single-media audio session description offering
// the given codecs at rtpPort on ownIP, with a=sendrecv and a=rtcp-mux.
func BuildOffer(ownIP string, rtpPort int, codecs []CodecOffer) ([]byte, error) {
	if len(codecs) == 0 {
		return nil, fmt.Errorf("sdp: BuildOffer: no codecs given")
	}

	formats := make([]string, 0, len(codecs))
	for _, c := range codecs {
		formats = append(formats, strconv.Itoa(int(c.PayloadType)))
	}

	attrs := make([]psdp.Attribute, 0, len(codecs)*2+3)
	for _, c := range codecs {
		rtpmap := fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
		if c.Channels > 1 {
			rtpmap += fmt.Sprintf("/%d", c.Channels)
		}
		attrs = append(attrs, psdp.Attribute{Key: "rtpmap", Value: rtpmap})
		if c.Fmtp != "" {
			attrs = append(attrs, psdp.Attribute{
				Key:   "fmtp",
				Value: fmt.Sprintf("%d %s", c.PayloadType, c.Fmtp),
			})
		}
	}
	attrs = append(attrs,
		psdp.Attribute{Key: "ptime", Value: strconv.Itoa(defaultPtimeMs)},
		psdp.Attribute{Key: "sendrecv"},
		psdp.Attribute{Key: "rtcp-mux"},
	)

	session := &psdp.SessionDescription{
		Origin: psdp.Origin{
			Username:       "sipua",
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: ownIP,
		},
		SessionName: "sipua media session",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: ownIP},
		},
		TimeDescriptions: []psdp.TimeDescription{{Timing: psdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*psdp.MediaDescription{
			{
				MediaName: psdp.MediaName{
					Media:   "audio",
					Port:    psdp.RangedPort{Value: rtpPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				Attributes: attrs,
			},
		},
	}

	return session.Marshal()
}

// Negotiated is the result of parsing a remote SDP body: the remote RTP
// endpoint and, for each codec this library supports that the remote
// also offered, the remote-assigned payload type.
type Negotiated struct {
	RemoteAddr string
	RemotePort int
	PtimeMs    int
	Codecs     []CodecOffer // PayloadType is the remote's assignment
}

// ParseRemote parses body (an SDP offer or answer) and returns the
// negotiated codec set restricted to the names present in supported,
// matched case-insensitively by rtpmap codec name.
func ParseRemote(body []byte, supported []CodecOffer) (*Negotiated, error) {
	var session psdp.SessionDescription
	if err := session.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}

	var media *psdp.MediaDescription
	for _, m := range session.MediaDescriptions {
		if m.MediaName.Media == "audio" {
			media = m
			break
		}
	}
	if media == nil {
		return nil, fmt.Errorf("%w: no m=audio line", ErrInvalidSDP)
	}

	connInfo := media.ConnectionInformation
	if connInfo == nil {
		connInfo = session.ConnectionInformation
	}
	if connInfo == nil || connInfo.Address == nil || connInfo.Address.Address == "" {
		return nil, fmt.Errorf("%w: no connection address", ErrInvalidSDP)
	}

	supportedByName := make(map[string]CodecOffer, len(supported))
	for _, c := range supported {
		supportedByName[strings.ToLower(c.Name)] = c
	}

	ptimeMs := defaultPtimeMs
	var matched []CodecOffer
	for _, attr := range media.Attributes {
		switch attr.Key {
		case "rtpmap":
			pt, name, rate, channels, err := parseRtpmap(attr.Value)
			if err != nil {
				continue
			}
			proto, ok := supportedByName[strings.ToLower(name)]
			if !ok {
				continue
			}
			matched = append(matched, CodecOffer{
				PayloadType: pt,
				Name:        proto.Name,
				ClockRate:   rate,
				Channels:    channels,
			})
		case "ptime":
			if v, err := strconv.Atoi(strings.TrimSpace(attr.Value)); err == nil {
				ptimeMs = v
			}
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: no codec in common", ErrInvalidSDP)
	}

	return &Negotiated{
		RemoteAddr: connInfo.Address.Address,
		RemotePort: media.MediaName.Port.Value,
		PtimeMs:    ptimeMs,
		Codecs:     matched,
	}, nil
}

// parseRtpmap parses "<pt> <name>/<rate>[/<channels>]".
func parseRtpmap(value string) (pt uint8, name string, rate uint32, channels int, err error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return 0, "", 0, 0, fmt.Errorf("sdp: malformed rtpmap %q", value)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", 0, 0, err
	}
	parts := strings.Split(fields[1], "/")
	name = parts[0]
	rate64 := uint64(8000)
	if len(parts) > 1 {
		if r, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
			rate64 = r
		}
	}
	channels = 0 // unspecified; each codec applies its own default
	if len(parts) > 2 {
		if c, err := strconv.Atoi(parts[2]); err == nil {
			channels = c
		}
	}
	return uint8(n), name, uint32(rate64), channels, nil
}
