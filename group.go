package labelledset

import (
	"cmp"
	"slices"
)

// Group is the read-only view of the values labelled by one key. Groups
// returned by a LabelledSet are owned by it; two lookups that resolve to the
// same group compare equal.
type Group[K ~string, V cmp.Ordered] interface {
	Key() K
	Len() int
	Values() []V
	Contains(V) bool
}

// SubSet is a key and an array of unique values.
//
// The zero value is an empty group with an empty key.
type SubSet[K ~string, V cmp.Ordered] struct {
	key    K
	values []V
}

// NewSubSet creates a group holding a copy of values. Duplicates in the input
// are dropped, keeping the first occurrence.
func NewSubSet[K ~string, V cmp.Ordered](key K, values ...V) *SubSet[K, V] {
	s := &SubSet[K, V]{key: key}
	s.Set(values...)
	return s
}

func (s *SubSet[K, V]) Key() K {
	return s.key
}

func (s *SubSet[K, V]) Len() int {
	return len(s.values)
}

// Values returns a copy of the group's values in insertion order.
func (s *SubSet[K, V]) Values() []V {
	out := make([]V, len(s.values))
	copy(out, s.values)
	return out
}

func (s *SubSet[K, V]) Contains(value V) bool {
	return s.indexOf(value) >= 0
}

func (s *SubSet[K, V]) indexOf(value V) int {
	for i, v := range s.values {
		if cmp.Compare(v, value) == 0 {
			return i
		}
	}
	return -1
}

// Set replaces the group's contents. The previous backing array is released
// and a new one sized to the unique input is allocated.
func (s *SubSet[K, V]) Set(values ...V) {
	next := make([]V, 0, len(values))
	for _, v := range values {
		if slices.ContainsFunc(next, func(e V) bool { return cmp.Compare(e, v) == 0 }) {
			continue
		}
		next = append(next, v)
	}
	s.values = slices.Clip(next)
}

// Reset replaces both the key and the contents.
func (s *SubSet[K, V]) Reset(key K, values ...V) {
	s.key = key
	s.Set(values...)
}

// Add appends value unless it is already present. It returns the stored
// value and whether the group grew.
func (s *SubSet[K, V]) Add(value V) (V, bool) {
	if i := s.indexOf(value); i >= 0 {
		return s.values[i], false
	}
	s.values = append(s.values, value)
	return value, true
}

// AddGroup appends each value with the same rule as Add and returns how many
// were added.
func (s *SubSet[K, V]) AddGroup(values ...V) int {
	var added int
	for _, v := range values {
		if _, ok := s.Add(v); ok {
			added++
		}
	}
	return added
}

// Remove deletes value while keeping the relative order of the remaining
// values. It reports false when value is not a member.
func (s *SubSet[K, V]) Remove(value V) bool {
	i := s.indexOf(value)
	if i < 0 {
		return false
	}
	s.values = slices.Delete(s.values, i, i+1)
	if cap(s.values) > 2*len(s.values) {
		s.values = slices.Clone(s.values)
	}
	return true
}

// CopyFrom overwrites the key and values with a deep copy of other. It is a
// replacement, not a merge.
func (s *SubSet[K, V]) CopyFrom(other *SubSet[K, V]) {
	if s == other {
		return
	}
	s.key = other.key
	s.values = slices.Clone(other.values)
}

func (s *SubSet[K, V]) Clone() *SubSet[K, V] {
	c := &SubSet[K, V]{}
	c.CopyFrom(s)
	return c
}
