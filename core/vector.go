// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "math"

// Epsilon is the norm below which a vector is treated as zero.
const Epsilon = 1e-8

// UnitTolerance is the allowed deviation of a stored vector's norm from 1.
const UnitTolerance = 1e-4

// Dot returns the dot product over the shared prefix of a and b.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Cosine returns the cosine similarity of a and b. It returns 0 when the
// lengths disagree or either norm is at most Epsilon, and never NaN.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	na, nb = math.Sqrt(na), math.Sqrt(nb)
	if na <= Epsilon || nb <= Epsilon {
		return 0
	}
	sim := dot / (na * nb)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return float32(sim)
}

// Normalize returns a unit-length copy of v. A vector whose norm is at most
// Epsilon is returned unchanged.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n <= Epsilon {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Centroid returns the componentwise mean of vecs. Vectors whose length
// differs from the first are skipped. Returns nil for an empty input.
func Centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	count := 0
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(count))
	}
	return out
}

// IsFinite reports whether every component of v is neither NaN nor
// infinite. JSON cannot carry the others.
func IsFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// IsUnit reports whether v has norm within UnitTolerance of 1.
func IsUnit(v []float32) bool {
	return math.Abs(float64(Norm(v))-1) <= UnitTolerance
}
