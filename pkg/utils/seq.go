package utils

import (
	"golang.org/x/exp/constraints"
)

// Iota generates a sequence of n elements given a generation function
func Iota[T any](n int, gen func(int) T) []T {
	values := make([]T, n)

	for i := range values {
		values[i] = gen(i)
	}

	return values
}

// Clamp limits a value to the [lo, hi] range
func Clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
