package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockProvider_Deterministic(t *testing.T) {
	m := NewMockProvider(16)
	ctx := context.Background()
	a, _ := m.Embed(ctx, "hello")
	b, _ := m.Embed(ctx, "hello")
	c, _ := m.Embed(ctx, "world")

	if len(a) != 16 {
		t.Fatalf("dimension = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different embeddings")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("embedding not unit length: %f", math.Sqrt(norm))
	}
}
