package retrieval

import (
	"math"
	"testing"
)

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, float32(math.Inf(1))}
	blob := encodeVector(in)
	if len(blob) != 16 {
		t.Fatalf("blob length = %d, want 16", len(blob))
	}

	scratch := make([]float32, 1, 8)
	out, err := decodeVector(scratch, blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) || &out[0] != &scratch[0] {
		t.Errorf("decode did not reuse the buffer: len %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeVector(nil, blob[:5]); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCosine(t *testing.T) {
	q := []float32{1, 0}
	tests := []struct {
		name string
		v    []float32
		want float32
	}{
		{"same direction", []float32{2, 0}, 1},
		{"orthogonal", []float32{0, 3}, 0},
		{"opposite", []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, 0},
		{"dimension mismatch", []float32{1, 0, 0}, 0},
	}
	for _, tt := range tests {
		if got := cosine(q, l2(q), tt.v); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("%s: cosine = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTopScores(t *testing.T) {
	best := topScores{n: 3}
	for i, s := range []float32{0.2, 0.9, 0.1, 0.5, 0.7, 0.3} {
		best.offer(string(rune('a'+i)), s)
	}
	want := []idScore{{"b", 0.9}, {"e", 0.7}, {"d", 0.5}}
	if len(best.items) != len(want) {
		t.Fatalf("items = %+v", best.items)
	}
	for i := range want {
		if best.items[i] != want[i] {
			t.Errorf("items[%d] = %+v, want %+v", i, best.items[i], want[i])
		}
	}
}
