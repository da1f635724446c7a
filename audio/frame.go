package audio

import (
	"encoding/binary"
	"math"
)

const (
	SampleRate   = 16000
	FrameSamples = 4096
	MimeType     = "audio/pcm;rate=16000"
)

// Frame is one block of FrameSamples mono signed 16-bit little-endian
// samples. Seq increases by one for every frame a capture emits.
type Frame struct {
	Seq uint64
	PCM []byte
}

func (f Frame) Samples() []int16 {
	out := make([]int16, len(f.PCM)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.PCM[i*2:]))
	}
	return out
}

// Quantize maps a normalized float sample to the signed 16-bit range.
// NaN becomes silence.
func Quantize(sample float32) int16 {
	if math.IsNaN(float64(sample)) {
		return 0
	}
	v := math.Round(float64(sample) * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Downmix averages interleaved channels into one.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodeFrame quantizes mono float samples into a frame payload.
func EncodeFrame(seq uint64, mono []float32) Frame {
	pcm := make([]byte, len(mono)*2)
	for i, s := range mono {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(Quantize(s)))
	}
	return Frame{Seq: seq, PCM: pcm}
}

func decodeFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
