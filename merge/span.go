package merge

import "github.com/puregit/git/diff"

// span is one side's change relative to base: the base range it
// replaces (possibly empty, for a pure insertion) and the replacement
// lines.
type span struct {
	length int // base lines consumed, 0 for a pure insertion
	lines  []string
}

// changeSpans derives, for one side, the set of change regions
// relative to base, keyed by the 0-based base index the change is
// anchored at: the first replaced base line for a replacement or
// deletion, or the index of the base line immediately after the
// insertion point for a pure insertion (len(base) for an insertion at
// the end). diff.Hunks computed with zero context already
// yields exactly this shape - maximal contiguous change regions with
// no padding - so it's reused directly rather than re-deriving the
// LCS walk.
func changeSpans(base, side []string) map[int]span {
	spans := map[int]span{}
	for _, h := range diff.Hunks(base, side, 0) {
		anchor := h.OldStart
		if h.OldCount > 0 {
			anchor = h.OldStart - 1
		}
		var lines []string
		for _, l := range h.Lines {
			if l.Type == diff.Added {
				lines = append(lines, l.Text)
			}
		}
		spans[anchor] = span{length: h.OldCount, lines: lines}
	}
	return spans
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
