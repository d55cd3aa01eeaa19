package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpecSize(t *testing.T) {
	require.Equal(t, 784, Spec{Name: "kernel", Shape: []int{28, 28}}.Size())
	require.Equal(t, 10, Spec{Name: "bias", Shape: []int{10}}.Size())
	require.Equal(t, 1, Spec{Name: "scalar", Shape: nil}.Size())
	require.Equal(t, 794, TotalDim([]Spec{
		{Name: "kernel", Shape: []int{28, 28}},
		{Name: "bias", Shape: []int{10}},
	}))
}

func TestPadPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		require.Equal(t, want, PadPow2(in), "PadPow2(%d)", in)
	}
}

func TestArithmetic(t *testing.T) {
	a := Weights{{1, 2}, {3}}
	b := Weights{{10, 20}, {30}}

	sum := Clone(a)
	Add(sum, b)
	require.Equal(t, Weights{{11, 22}, {33}}, sum)

	diff := Sub(b, a)
	require.Equal(t, Weights{{9, 18}, {27}}, diff)

	axpy := Clone(a)
	AXPY(axpy, -0.5, b)
	require.Equal(t, Weights{{-4, -8}, {-12}}, axpy)

	scaled := Clone(a)
	Scale(scaled, 2)
	require.Equal(t, Weights{{2, 4}, {6}}, scaled)

	// The originals must be untouched.
	require.Equal(t, Weights{{1, 2}, {3}}, a)
	require.Equal(t, Weights{{10, 20}, {30}}, b)
}

func TestMismatchPanics(t *testing.T) {
	require.Panics(t, func() { Add(Weights{{1}}, Weights{{1}, {2}}) })
	require.Panics(t, func() { Add(Weights{{1}}, Weights{{1, 2}}) })
}

func TestGlobalNormAndClip(t *testing.T) {
	w := Weights{{3}, {4}}
	require.InDelta(t, 5.0, GlobalNorm(w), 1e-12)

	clipped, norm := ClipByGlobalNorm(w, 1.0)
	require.InDelta(t, 5.0, norm, 1e-12)
	require.InDelta(t, 1.0, GlobalNorm(clipped), 1e-12)
	require.InDelta(t, 0.6, clipped[0][0], 1e-12)

	// A clip above the norm leaves the values alone.
	unclipped, norm := ClipByGlobalNorm(w, 10.0)
	require.InDelta(t, 5.0, norm, 1e-12)
	require.Equal(t, w, unclipped)

	// Zero disables clipping entirely.
	disabled, _ := ClipByGlobalNorm(w, 0)
	require.Equal(t, w, disabled)
}

func TestAllFinite(t *testing.T) {
	require.True(t, AllFinite(Weights{{1, 2}, {3}}))
	require.False(t, AllFinite(Weights{{1, math.NaN()}}))
	require.False(t, AllFinite(Weights{{math.Inf(1)}}))
}

func TestFlattenRoundTrip(t *testing.T) {
	w := Weights{{1, 2, 3}, {4}, {5, 6}}
	flat := Flatten(w)
	require.Equal(t, Vector{1, 2, 3, 4, 5, 6}, flat)

	back := Unflatten(flat, w)
	require.Equal(t, w, back)

	// The restored weights must not alias the flat buffer.
	flat[0] = 99
	require.Equal(t, 1.0, back[0][0])

	require.Panics(t, func() { Unflatten(Vector{1, 2}, w) })
}
