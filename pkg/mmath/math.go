// Package mmath provides math helpers missing from the standard library.
package mmath

import "golang.org/x/exp/constraints"

// Min returns the smallest value of all provided values.
func Min[T constraints.Ordered](values ...T) T {
	minValue := values[0]
	for _, value := range values[1:] {
		if value < minValue {
			minValue = value
		}
	}
	return minValue
}

// Max returns the largest value of all provided values.
func Max[T constraints.Ordered](values ...T) T {
	maxValue := values[0]
	for _, value := range values[1:] {
		if value > maxValue {
			maxValue = value
		}
	}
	return maxValue
}

// Clamp returns value restricted to [low, high].
func Clamp[T constraints.Ordered](low, value, high T) T {
	return Max(low, Min(value, high))
}
