package sdp

import "testing"

func pcmuOffer() []CodecOffer {
	return []CodecOffer{{PayloadType: 0, Name: "pcmu", ClockRate: 8000, Channels: 1}}
}

func TestParseRemotePCMUOffer(t *testing.T) {
	body := []byte("v=0\r\n" +
		"o=- 0 0 IN IP4 203.0.113.5\r\n" +
		"s=-\r\n" +
		"c=IN IP4 203.0.113.5\r\n" +
		"t=0 0\r\n" +
		"m=audio 40000 RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n" +
		"a=sendrecv\r\n")

	neg, err := ParseRemote(body, pcmuOffer())
	if err != nil {
		t.Fatalf("ParseRemote: %v", err)
	}
	if neg.RemoteAddr != "203.0.113.5" || neg.RemotePort != 40000 {
		t.Fatalf("got addr=%s port=%d", neg.RemoteAddr, neg.RemotePort)
	}
	if len(neg.Codecs) != 1 || neg.Codecs[0].Name != "pcmu" || neg.Codecs[0].PayloadType != 0 {
		t.Fatalf("got codecs=%+v", neg.Codecs)
	}
	if neg.PtimeMs != 20 {
		t.Fatalf("ptime = %d, want default 20", neg.PtimeMs)
	}
}

func TestParseRemoteRejectsNoAudio(t *testing.T) {
	body := []byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\n")
	if _, err := ParseRemote(body, pcmuOffer()); err == nil {
		t.Fatal("expected ErrInvalidSDP for a session with no m=audio")
	}
}

func TestBuildOfferIncludesCodecs(t *testing.T) {
	body, err := BuildOffer("198.51.100.9", 20304, []CodecOffer{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
		{PayloadType: 101, Name: "telephone-event", ClockRate: 8000, Fmtp: "0-15"},
	})
	if err != nil {
		t.Fatalf("BuildOffer: %v", err)
	}
	s := string(body)
	for _, want := range []string{"m=audio 20304", "a=rtpmap:0 PCMU/8000", "a=rtpmap:101 telephone-event/8000", "a=sendrecv", "a=rtcp-mux"} {
		if !contains(s, want) {
			t.Fatalf("offer missing %q:\n%s", want, s)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
