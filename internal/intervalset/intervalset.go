// Package intervalset implements exact interval arithmetic over a totally
// ordered time type: a canonicalized, disjoint, sorted collection of
// half-open intervals [lo, hi). It is the leaf-most component of this
// repository (spec.md §4.1) and every other package that deals in time
// ranges - the frame loader's request/cover bookkeeping above all -
// builds directly on it.
package intervalset

import "sort"

// Ordered is the constraint on the element type an IntervalSet can hold.
// pvtime.Seconds satisfies it; so does any type whose underlying type is
// float64, float32, int, int64 or int32.
type Ordered interface {
	~float64 | ~float32 | ~int | ~int64 | ~int32
}

// Interval is a single half-open range [Lo, Hi). An Interval is only
// meaningful when Lo < Hi; a degenerate or inverted interval is treated as
// empty by every operation in this package.
type Interval[T Ordered] struct {
	Lo, Hi T
}

// Empty reports whether the interval contains no points.
func (iv Interval[T]) Empty() bool { return iv.Lo >= iv.Hi }

// Set is a canonicalized, disjoint, sorted collection of half-open
// intervals. The zero value is an empty set ready to use.
//
// Invariants maintained by every mutating method:
//   - intervals are sorted by Lo
//   - intervals are non-empty (Lo < Hi)
//   - intervals are non-overlapping and non-adjacent (touching intervals
//     are merged into one)
type Set[T Ordered] struct {
	ivs []Interval[T]
}

// New builds a Set from zero or more intervals, canonicalizing them.
func New[T Ordered](ivs ...Interval[T]) Set[T] {
	var s Set[T]
	for _, iv := range ivs {
		s.Insert(iv.Lo, iv.Hi)
	}
	return s
}

// Intervals returns the canonical intervals in order. The returned slice
// must not be mutated by the caller; it aliases the Set's internal state.
func (s Set[T]) Intervals() []Interval[T] {
	return s.ivs
}

// IsEmpty reports whether the set has no intervals.
func (s Set[T]) IsEmpty() bool { return len(s.ivs) == 0 }

// Clone returns an independent copy of s.
func (s Set[T]) Clone() Set[T] {
	out := Set[T]{ivs: make([]Interval[T], len(s.ivs))}
	copy(out.ivs, s.ivs)
	return out
}

// Insert adds [lo, hi) to the set, merging with any interval it overlaps
// or exactly touches. A degenerate or inverted range (lo >= hi) is a no-op.
func (s *Set[T]) Insert(lo, hi T) {
	if lo >= hi {
		return
	}

	// Binary search for the first interval whose Hi >= lo; everything
	// before that cannot overlap or touch [lo, hi).
	start := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Hi >= lo })

	end := start
	for end < len(s.ivs) && s.ivs[end].Lo <= hi {
		if s.ivs[end].Lo < lo {
			lo = s.ivs[end].Lo
		}
		if s.ivs[end].Hi > hi {
			hi = s.ivs[end].Hi
		}
		end++
	}

	merged := Interval[T]{Lo: lo, Hi: hi}
	s.ivs = append(s.ivs[:start], append([]Interval[T]{merged}, s.ivs[end:]...)...)
}

// InsertInterval is a convenience wrapper around Insert(iv.Lo, iv.Hi).
func (s *Set[T]) InsertInterval(iv Interval[T]) { s.Insert(iv.Lo, iv.Hi) }

// Erase removes [lo, hi) from the set, splitting any interval it partially
// overlaps and removing any interval it fully covers. A degenerate or
// inverted range is a no-op.
func (s *Set[T]) Erase(lo, hi T) {
	if lo >= hi {
		return
	}

	out := make([]Interval[T], 0, len(s.ivs))
	for _, iv := range s.ivs {
		switch {
		case iv.Hi <= lo || iv.Lo >= hi:
			// No overlap; keep as-is.
			out = append(out, iv)
		case iv.Lo >= lo && iv.Hi <= hi:
			// Fully covered by the erased range; drop it.
		case iv.Lo < lo && iv.Hi > hi:
			// The erased range is a strict sub-interval; split in two.
			out = append(out, Interval[T]{Lo: iv.Lo, Hi: lo}, Interval[T]{Lo: hi, Hi: iv.Hi})
		case iv.Lo < lo:
			// Overlaps the trailing edge of iv.
			out = append(out, Interval[T]{Lo: iv.Lo, Hi: lo})
		default:
			// Overlaps the leading edge of iv.
			out = append(out, Interval[T]{Lo: hi, Hi: iv.Hi})
		}
	}
	s.ivs = out
}

// EraseInterval is a convenience wrapper around Erase(iv.Lo, iv.Hi).
func (s *Set[T]) EraseInterval(iv Interval[T]) { s.Erase(iv.Lo, iv.Hi) }

// Contains reports whether t falls within some interval of the set.
func (s Set[T]) Contains(t T) bool {
	i := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Hi > t })
	return i < len(s.ivs) && s.ivs[i].Lo <= t
}

// Bounds returns the smallest interval [min Lo, max Hi) covering the whole
// set, and false if the set is empty.
func (s Set[T]) Bounds() (Interval[T], bool) {
	if len(s.ivs) == 0 {
		return Interval[T]{}, false
	}
	return Interval[T]{Lo: s.ivs[0].Lo, Hi: s.ivs[len(s.ivs)-1].Hi}, true
}

// Union returns a new set containing every point in s or other.
func (s Set[T]) Union(other Set[T]) Set[T] {
	out := s.Clone()
	for _, iv := range other.ivs {
		out.Insert(iv.Lo, iv.Hi)
	}
	return out
}

// Difference returns a new set containing every point in s that is not in
// other: s \ other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	out := s.Clone()
	for _, iv := range other.ivs {
		out.Erase(iv.Lo, iv.Hi)
	}
	return out
}

// Intersection returns a new set containing every point in both s and
// other, via a single linear merge of the two sorted interval lists.
func (s Set[T]) Intersection(other Set[T]) Set[T] {
	var out Set[T]
	i, j := 0, 0
	for i < len(s.ivs) && j < len(other.ivs) {
		a, b := s.ivs[i], other.ivs[j]
		lo := a.Lo
		if b.Lo > lo {
			lo = b.Lo
		}
		hi := a.Hi
		if b.Hi < hi {
			hi = b.Hi
		}
		if lo < hi {
			out.Insert(lo, hi)
		}
		if a.Hi < b.Hi {
			i++
		} else {
			j++
		}
	}
	return out
}

// GapAfter returns the smallest u > t such that [t, u) is entirely within
// the set, clamped by limit. If t already sits in a gap (not covered), it
// returns (t, true) immediately - callers use this to find the next
// unloaded point a request needs. If t is at or past limit, it returns
// (limit, false).
func (s Set[T]) GapAfter(t, limit T) (T, bool) {
	if t >= limit {
		return limit, false
	}
	i := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Hi > t })
	if i >= len(s.ivs) || s.ivs[i].Lo > t {
		// t is not covered: the gap starts right at t.
		return t, true
	}
	hi := s.ivs[i].Hi
	if hi > limit {
		hi = limit
	}
	return hi, true
}

// Equal reports whether s and other contain exactly the same canonical
// intervals. Because both sets are always kept in canonical form, this is a
// simple structural comparison.
func (s Set[T]) Equal(other Set[T]) bool {
	if len(s.ivs) != len(other.ivs) {
		return false
	}
	for i := range s.ivs {
		if s.ivs[i] != other.ivs[i] {
			return false
		}
	}
	return true
}
