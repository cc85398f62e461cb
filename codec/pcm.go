// Package codec converts between the agent's wire encodings and the sample
// and image types used locally.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16ToFloat32 converts little-endian 16-bit PCM to samples in [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return samples
}

// Float32ToPCM16 converts samples to little-endian 16-bit PCM, clamping to [-1, 1].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		var n int16
		if v < 0 {
			n = int16(v * 0x8000)
		} else {
			n = int16(v * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(n))
	}
	return out
}

// EncodeBase64 encodes binary payloads for the wire
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a wire payload
func DecodeBase64(data string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return out, nil
}
