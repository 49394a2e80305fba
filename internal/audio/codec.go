package audio

import (
	"encoding/base64"
	"fmt"
)

// Encode converts captured microphone samples into a base64 wire frame at the
// model's sample rate, resampling when sourceRate differs from ModelRate.
func Encode(samples []float32, sourceRate int) string {
	if sourceRate != ModelRate {
		samples = Resample(samples, sourceRate, ModelRate)
	}
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// Decode converts a base64 wire frame from the model into a playback-ready
// Frame. Malformed frames (bad base64, odd byte count, empty payload) return
// an error; callers log and drop the frame rather than stopping the stream.
func Decode(wire string) (Frame, error) {
	pcm, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return Frame{}, fmt.Errorf("decode audio frame: %w", err)
	}
	if len(pcm) == 0 {
		return Frame{}, fmt.Errorf("decode audio frame: empty payload")
	}
	if len(pcm)%2 != 0 {
		return Frame{}, fmt.Errorf("decode audio frame: odd byte count %d", len(pcm))
	}
	return Frame{PCM: pcm, SampleRate: ModelRate}, nil
}
