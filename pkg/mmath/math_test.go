package mmath

import (
	"testing"

	"gotest.tools/assert"
)

func TestMin(t *testing.T) {
	assert.Equal(t, 1, Min(3, 1, 2))
	assert.Equal(t, -2.5, Min(0.0, -2.5))
	assert.Equal(t, "a", Min("b", "a"))
}

func TestMax(t *testing.T) {
	assert.Equal(t, 3, Max(3, 1, 2))
	assert.Equal(t, 0.0, Max(0.0, -2.5))
	assert.Equal(t, 7, Max(7))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(0, 5, 10))
	assert.Equal(t, 0, Clamp(0, -5, 10))
	assert.Equal(t, 10, Clamp(0, 15, 10))
}
