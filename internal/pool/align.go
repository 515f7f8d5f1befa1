package pool

import "golang.org/x/exp/constraints"

// alignup rounds val up to the nearest multiple of align. align must be a power of 2.
func alignup[T constraints.Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

// isaligned checks if val is wholly divisible by align. align must be a power of 2.
func isaligned[T constraints.Unsigned](val, align T) bool {
	return val&(align-1) == 0
}

func ispow2[T constraints.Unsigned](val T) bool {
	return val != 0 && isaligned(val, val)
}
