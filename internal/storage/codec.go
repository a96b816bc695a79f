package storage

import (
	"encoding/binary"
	"math"
)

// EncodeEmbedding packs v as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:], math.Float32bits(f))
	}
	return out
}

// DecodeEmbedding is the inverse of EncodeEmbedding. Trailing bytes that do not form a
// whole float32 are ignored.
func DecodeEmbedding(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size:]))
	}
	return out
}
