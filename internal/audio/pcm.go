package audio

import "encoding/binary"

// EncodePCM16 quantizes float samples in [-1, 1] to little-endian signed
// 16-bit PCM. Values are clamped first. Negative values scale by 32768 and
// positive by 32767 so the full asymmetric int16 range is used, matching
// standard PCM16 semantics.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 widens little-endian signed 16-bit PCM to float samples in
// [-1, 1], using the same asymmetric divisor per sign as EncodePCM16.
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if s < 0 {
			samples[i] = float32(s) / 32768
		} else {
			samples[i] = float32(s) / 32767
		}
	}
	return samples
}
