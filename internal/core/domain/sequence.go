package domain

import "sort"

// ValidateSequence checks that stop sequence numbers form exactly {1..N}
// with no gaps or duplicates. The slice does not need to be sorted.
func ValidateSequence(stops []Stop) error {
	seen := make(map[int]bool, len(stops))
	for i := range stops {
		n := stops[i].SequenceNumber
		if n < 1 || n > len(stops) {
			return ErrInvalidSequence.WithStop(stops[i].ID)
		}
		if seen[n] {
			return ErrInvalidSequence.WithStop(stops[i].ID)
		}
		seen[n] = true
	}
	return nil
}

// SortBySequence orders stops by sequence number in place.
func SortBySequence(stops []Stop) {
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].SequenceNumber < stops[j].SequenceNumber
	})
}

// Renumber rewrites sequence numbers 1..N following the slice order,
// starting at from.
func Renumber(stops []Stop, from int) {
	for i := range stops {
		stops[i].SequenceNumber = from + i
	}
}

// TopologyChanged reports whether two stop lists differ in membership,
// order, or target locations. Completion-state updates (arrival, departure,
// state) are not topology changes: they bump no mutation version and do not
// invalidate distance metrics.
func TopologyChanged(before, after []Stop) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].ID != after[i].ID ||
			before[i].SequenceNumber != after[i].SequenceNumber ||
			before[i].Location != after[i].Location {
			return true
		}
	}
	return false
}
