// Package audio moves PCM between the local sound devices and the model
// stream: capture encodes microphone blocks into base64 chunks, playback
// decodes streamed chunks into a device render callback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

const (
	// CaptureSampleRate is the rate the model expects for microphone input.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of synthesized speech from the model.
	PlaybackSampleRate = 24000
	// BlockFrames is the number of frames per captured chunk.
	BlockFrames = 4096
)

// Float32ToPCM16 converts samples in [-1, 1] to little-endian int16 PCM.
// Out-of-range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 decodes little-endian int16 PCM. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		f := float32(v) / 32768
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = f
	}
	return out
}

// Level returns the RMS of samples, 0 for an empty block.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// EncodeChunk converts samples to the wire form: base64 of int16 LE PCM.
func EncodeChunk(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

func bytesToFloat32(dst []float32, b []byte) []float32 {
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return dst
}

func float32ToBytes(dst []byte, samples []float32) {
	for i, s := range samples {
		if (i+1)*4 > len(dst) {
			return
		}
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
