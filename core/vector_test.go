package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosine_Symmetric(t *testing.T) {
	vecs := [][]float32{
		{0.1, 0.7, -0.3, 0.2},
		{0.9, -0.1, 0.05, 0.4},
		{-0.5, 0.5, 0.5, -0.5},
	}
	for _, a := range vecs {
		for _, b := range vecs {
			assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-6)
		}
	}
}

func TestCosine_NeverNaN(t *testing.T) {
	got := Cosine([]float32{float32(math.Inf(1)), 0}, []float32{1, 0})
	assert.False(t, math.IsNaN(float64(got)))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.True(t, IsUnit(v))

	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, Normalize(zero), "zero vector returned unchanged")

	orig := []float32{3, 4}
	Normalize(orig)
	assert.Equal(t, []float32{3, 4}, orig, "input must not be modified")
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.Len(t, c, 2)
	assert.InDelta(t, 2.0/3.0, c[0], 1e-6)
	assert.InDelta(t, 2.0/3.0, c[1], 1e-6)

	assert.Nil(t, Centroid(nil))
	assert.Equal(t, []float32{1, 1}, Centroid([][]float32{{1, 1}, {5, 5, 5}}), "mismatched vectors skipped")
}

func TestDotAndNorm(t *testing.T) {
	assert.InDelta(t, 11, Dot([]float32{1, 2}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 5, Norm([]float32{3, 4}), 1e-6)
}

func TestIsFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	assert.True(t, IsFinite(nil))
	assert.True(t, IsFinite([]float32{0, -1.5, math.MaxFloat32}))
	assert.False(t, IsFinite([]float32{1, nan}))
	assert.False(t, IsFinite([]float32{-inf, 0}))
}
