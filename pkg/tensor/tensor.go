// Package tensor holds the flat-vector representation of model parameters used throughout the
// harness. A model's trainable state is a Weights value, an ordered list of float64 vectors; the
// federated averaging core only ever manipulates Weights through the helpers here, so the update
// algebra stays in one place.
package tensor

import (
	"fmt"
	"math"
)

// Spec describes one named variable of a model template.
type Spec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// Size returns the number of elements a variable with this spec holds.
func (s Spec) Size() int {
	size := 1
	for _, d := range s.Shape {
		size *= d
	}
	return size
}

// TotalDim returns the dimension of a template as a single vector.
func TotalDim(specs []Spec) int {
	total := 0
	for _, s := range specs {
		total += s.Size()
	}
	return total
}

// PadPow2 rounds dim up to the next power of two. Discrete aggregation mechanisms operate on
// power-of-two dimensions.
func PadPow2(dim int) int {
	if dim <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(dim))))
}

// Vector is a flat slice of parameters.
type Vector []float64

// Zeros returns a zero vector of length n.
func Zeros(n int) Vector {
	return make(Vector, n)
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Weights is the full trainable state of a model, one vector per variable.
type Weights []Vector

// ZerosLike returns a zero-valued Weights with the same structure as w.
func ZerosLike(w Weights) Weights {
	out := make(Weights, len(w))
	for i, v := range w {
		out[i] = Zeros(len(v))
	}
	return out
}

// Clone returns a deep copy of w.
func Clone(w Weights) Weights {
	out := make(Weights, len(w))
	for i, v := range w {
		out[i] = v.Clone()
	}
	return out
}

// Dim returns the total number of parameters in w.
func Dim(w Weights) int {
	total := 0
	for _, v := range w {
		total += len(v)
	}
	return total
}

func mustMatch(a, b Weights) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("tensor: structure mismatch, %d vs %d variables", len(a), len(b)))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			panic(fmt.Sprintf("tensor: variable %d length mismatch, %d vs %d",
				i, len(a[i]), len(b[i])))
		}
	}
}

// Add accumulates src into dst elementwise.
func Add(dst, src Weights) {
	mustMatch(dst, src)
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += src[i][j]
		}
	}
}

// AXPY accumulates a*x into dst elementwise.
func AXPY(dst Weights, a float64, x Weights) {
	mustMatch(dst, x)
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += a * x[i][j]
		}
	}
}

// Sub returns a - b as a new Weights.
func Sub(a, b Weights) Weights {
	mustMatch(a, b)
	out := ZerosLike(a)
	for i := range a {
		for j := range a[i] {
			out[i][j] = a[i][j] - b[i][j]
		}
	}
	return out
}

// Scale multiplies every element of w by a in place.
func Scale(w Weights, a float64) {
	for i := range w {
		for j := range w[i] {
			w[i][j] *= a
		}
	}
}

// GlobalNorm returns the L2 norm of w viewed as a single vector.
func GlobalNorm(w Weights) float64 {
	sum := 0.0
	for _, v := range w {
		for _, x := range v {
			sum += x * x
		}
	}
	return math.Sqrt(sum)
}

// ClipByGlobalNorm returns a copy of w scaled so its global L2 norm is at most clip, along with
// the norm before clipping. A non-positive clip disables clipping.
func ClipByGlobalNorm(w Weights, clip float64) (Weights, float64) {
	norm := GlobalNorm(w)
	out := Clone(w)
	if clip > 0 && norm > clip {
		Scale(out, clip/norm)
	}
	return out, norm
}

// AllFinite reports whether every element of w is finite.
func AllFinite(w Weights) bool {
	for _, v := range w {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// Flatten concatenates w into a single vector.
func Flatten(w Weights) Vector {
	out := make(Vector, 0, Dim(w))
	for _, v := range w {
		out = append(out, v...)
	}
	return out
}

// Unflatten splits flat back into the structure of like. It panics if the dimensions disagree.
func Unflatten(flat Vector, like Weights) Weights {
	if len(flat) != Dim(like) {
		panic(fmt.Sprintf("tensor: cannot unflatten %d elements into dim %d",
			len(flat), Dim(like)))
	}
	out := make(Weights, len(like))
	pos := 0
	for i, v := range like {
		out[i] = flat[pos : pos+len(v)].Clone()
		pos += len(v)
	}
	return out
}
