package audio

import "time"

// ModelRate is the sample rate the upstream speech model consumes and produces.
const ModelRate = 24000

// Frame is one decoded chunk of mono PCM16 audio ready for playback scheduling.
// Immutable once produced.
type Frame struct {
	PCM        []byte // little-endian signed 16-bit mono samples
	SampleRate int
}

// Samples returns the number of 16-bit samples in the frame.
func (f Frame) Samples() int {
	return len(f.PCM) / 2
}

// Duration is the playback length derived from sample count and rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
