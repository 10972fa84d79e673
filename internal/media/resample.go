package media

import "encoding/binary"

// downmixToMono averages interleaved stereo samples into mono.
func downmixToMono(stereo []float32) []float32 {
	mono := make([]float32, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[2*i] + stereo[2*i+1]) / 2
	}
	return mono
}

// duplicateToStereo interleaves a mono buffer into L=R stereo.
func duplicateToStereo(mono []float32) []float32 {
	stereo := make([]float32, len(mono)*2)
	for i, s := range mono {
		stereo[2*i] = s
		stereo[2*i+1] = s
	}
	return stereo
}

// linearResample resamples mono f32 samples from one rate to another by
// linear interpolation.
func linearResample(in []float32, fromRate, toRate uint32) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return append([]float32(nil), in...)
	}
	outLen := int(uint64(len(in)) * uint64(toRate) / uint64(fromRate))
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		frac := float32(srcPos - float64(i0))
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}

// floatToPCM16 converts f32 samples in [-1,1] to little-endian 16-bit
// PCM bytes, the format zaf/g711's encoders expect.
func floatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// pcm16ToFloat is the inverse of floatToPCM16.
func pcm16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// takeOrPad drains up to n samples from buf (padding the tail with
// zeroes on underrun), returning the drained slice and the remainder.
func takeOrPad(buf []float32, n int) (taken []float32, rest []float32) {
	if len(buf) >= n {
		return append([]float32(nil), buf[:n]...), buf[n:]
	}
	taken = make([]float32, n)
	copy(taken, buf)
	return taken, nil
}
