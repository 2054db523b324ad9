// Package diff implements a line-oriented Myers/LCS diff between two
// texts and segments the result into unified-diff hunks. There is no
// teacher precedent for a from-scratch LCS table: the retrieved stack's
// diff library (github.com/sergi/go-diff) wraps Myers' O(ND) algorithm
// behind a rune-level API with no exposed LCS table, so it can't stand
// in for the DP walk this package needs; this package is hand-rolled
// against that algorithm's textbook shape instead.
package diff

// LineType classifies a line in an edit script or hunk.
type LineType int

// The three kinds of line an edit script can contain.
const (
	Context LineType = iota
	Added
	Removed
)

// DefaultContext is the number of unchanged lines kept on each side of
// a change region, matching git's default -U3.
const DefaultContext = 3
