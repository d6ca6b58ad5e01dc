package workflow

// Set is a generic membership set.
type Set[T comparable] map[T]struct{}

// NewSet builds a set from a slice of values.
func NewSet[T comparable](values []T) Set[T] {
	set := make(Set[T], len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Add inserts a value into the set.
func (s Set[T]) Add(value T) { s[value] = struct{}{} }

// Contains reports whether the value is in the set.
func (s Set[T]) Contains(value T) bool {
	_, ok := s[value]
	return ok
}

// Len returns the number of values in the set.
func (s Set[T]) Len() int { return len(s) }
