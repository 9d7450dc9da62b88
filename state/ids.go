package state

import (
	"sort"

	"github.com/samber/lo"
)

// FrameID names a time-indexed pose in the sliding window. IDs are never reused.
type FrameID int64

// LandmarkID names a tracked feature.
type LandmarkID int64

// FrameSet is an unordered set of frame ids.
type FrameSet map[FrameID]struct{}

// NewFrameSet returns a set holding ids.
func NewFrameSet(ids ...FrameID) FrameSet {
	s := make(FrameSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s FrameSet) Add(id FrameID) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s FrameSet) Contains(id FrameID) bool {
	_, ok := s[id]
	return ok
}

// Intersects reports whether any of ids is in the set.
func (s FrameSet) Intersects(ids ...FrameID) bool {
	return lo.SomeBy(ids, s.Contains)
}

// Sorted returns the members in ascending order.
func (s FrameSet) Sorted() []FrameID {
	ids := lo.Keys(s)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
