package audio

import "math"

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Each output sample sits at a fractional position
// i * (srcRate/dstRate) in the input and is interpolated between the two
// nearest input samples. Returns the input unchanged if rates already match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, outLen)

	for i := range outLen {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		out[i] = interpolate(samples, idx, frac)
	}

	return out
}

func interpolate(samples []float32, idx int, frac float32) float32 {
	if idx >= len(samples) {
		return samples[len(samples)-1]
	}
	if idx+1 >= len(samples) {
		return samples[idx]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}
