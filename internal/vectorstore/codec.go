package vectorstore

import (
	"encoding/binary"
	"math"
)

// Embeddings are persisted as fixed-width little-endian float32 arrays:
// no delimiter, length = dimension * 4 bytes.

func encodeEmbedding(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
