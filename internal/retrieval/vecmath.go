package retrieval

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// decodeVector unpacks b into dst, growing it when needed. Pass nil for a
// fresh slice.
func decodeVector(dst []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob of %d bytes is not a float32 array", len(b))
	}
	dst = slices.Grow(dst[:0], len(b)/4)[:len(b)/4]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return dst, nil
}

func l2(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of q and v given q's precomputed
// norm. Vectors of different dimension score 0.
func cosine(q []float32, qNorm float64, v []float32) float32 {
	if len(q) != len(v) || qNorm == 0 {
		return 0
	}
	var dot, vv float64
	for i, f := range v {
		dot += float64(q[i]) * float64(f)
		vv += float64(f) * float64(f)
	}
	if vv == 0 {
		return 0
	}
	return float32(dot / (qNorm * math.Sqrt(vv)))
}

type idScore struct {
	id    string
	score float32
}

// topScores keeps the n best scores seen so far, best first.
type topScores struct {
	n     int
	items []idScore
}

func (t *topScores) offer(id string, score float32) {
	if len(t.items) == t.n && score <= t.items[len(t.items)-1].score {
		return
	}
	i, _ := slices.BinarySearchFunc(t.items, score, func(it idScore, s float32) int {
		switch {
		case it.score > s:
			return -1
		case it.score < s:
			return 1
		}
		return 0
	})
	t.items = slices.Insert(t.items, i, idScore{id: id, score: score})
	if len(t.items) > t.n {
		t.items = t.items[:t.n]
	}
}
