package embedder

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(384)
	a, err := m.Embed(context.Background(), "what is my name?")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, _ := m.Embed(context.Background(), "what is my name?")
	if len(a) != 384 || len(b) != 384 {
		t.Fatalf("dimensions = %d/%d, want 384", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d", i)
		}
	}
}

func TestMockEmbedderUnitNorm(t *testing.T) {
	m := NewMockEmbedder(64)
	vec, _ := m.Embed(context.Background(), "anything")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-3 {
		t.Fatalf("norm^2 = %f, want ~1", norm)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("self similarity = %f, want 1", got)
	}
	b := []float32{0, 1, 0}
	if got := CosineSimilarity(a, b); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal similarity = %f, want 0", got)
	}
	c := []float32{-1, 0, 0}
	if got := CosineDistance(a, c); math.Abs(got-2) > 1e-9 {
		t.Errorf("opposite distance = %f, want 2", got)
	}
	if got := CosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched lengths similarity = %f, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero vector similarity = %f, want 0", got)
	}
}
