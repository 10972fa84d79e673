package media

import "testing"

// TestALawRoundTripStable asserts segment stability: decoding an
// encoded sample must land in the same A-law segment, i.e. the
// round-trip error stays within one companding quantization step
// across the 16-bit input range.
func TestALawRoundTripStable(t *testing.T) {
	for _, x := range []int16{0, 1, -1, 100, -100, 1000, -1000, 16384, -16384, 32000, -32000} {
		encoded := alawEncode(x)
		decoded := alawDecode(encoded)

		if re := alawEncode(decoded); re != encoded {
			t.Fatalf("x=%d encoded=%#x decoded=%d re-encoded=%#x, want the same code", x, encoded, decoded, re)
		}

		diff := int(x) - int(decoded)
		if diff < 0 {
			diff = -diff
		}
		// A-law's coarsest segment step is 1024 at full scale, so the
		// round-trip error is at most 512; this bound only catches a
		// round trip that blows up to something wildly larger, which
		// would indicate a sign or shift error in the companding math.
		if diff > 4096 {
			t.Fatalf("x=%d encoded=%#x decoded=%d diff=%d too large", x, encoded, decoded, diff)
		}
	}
}

func TestALawZeroRoundTrips(t *testing.T) {
	if d := alawDecode(alawEncode(0)); d < -8 || d > 8 {
		t.Fatalf("decode(encode(0)) = %d, want near 0", d)
	}
}
