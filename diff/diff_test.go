package diff_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/diff"
)

func TestSplitLines_DropsTrailingEmptyTail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, diff.SplitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, diff.SplitLines("a\nb"))
	assert.Nil(t, diff.SplitLines(""))
}

func TestEditScript_NoChanges(t *testing.T) {
	t.Parallel()

	lines := []string{"a", "b", "c"}
	script := diff.EditScript(lines, lines)
	require.Len(t, script, 3)
	for _, l := range script {
		assert.Equal(t, diff.Context, l.Type)
	}
}

func TestEditScript_SingleLineChange(t *testing.T) {
	t.Parallel()

	a := []string{"one", "two", "three"}
	b := []string{"one", "TWO", "three"}

	script := diff.EditScript(a, b)

	var removed, added []string
	for _, l := range script {
		switch l.Type {
		case diff.Removed:
			removed = append(removed, l.Text)
		case diff.Added:
			added = append(added, l.Text)
		}
	}
	assert.Equal(t, []string{"two"}, removed)
	assert.Equal(t, []string{"TWO"}, added)
}

func TestHunks_TwoLineFileSingleChangeHeader(t *testing.T) {
	t.Parallel()

	a := diff.SplitLines("first\nsecond\n")
	b := diff.SplitLines("first\nCHANGED\n")

	hunks := diff.Hunks(a, b, diff.DefaultContext)
	require.Len(t, hunks, 1)
	assert.Equal(t, "@@ -1,2 +1,2 @@", hunks[0].Header())
}

func TestHunks_MergesAdjacentChanges(t *testing.T) {
	t.Parallel()

	a := diff.SplitLines(strings.Join([]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, "\n") + "\n")
	b := diff.SplitLines(strings.Join([]string{"1", "X", "3", "4", "5", "6", "Y", "8", "9", "10"}, "\n") + "\n")

	// Changes at indices 1 and 6 (0-based) are 5 apart - within
	// 2*context+1 (7) of each other at context=3, so they merge into
	// a single hunk.
	hunks := diff.Hunks(a, b, 3)
	assert.Len(t, hunks, 1)
}

func TestHunks_SeparatesDistantChanges(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		lines = append(lines, "line")
	}
	a := lines
	b := append([]string{}, lines...)
	b[0] = "CHANGED-START"
	b[39] = "CHANGED-END"

	hunks := diff.Hunks(a, b, 3)
	assert.Len(t, hunks, 2)
}

func TestHunks_NoChangesProducesNoHunks(t *testing.T) {
	t.Parallel()

	lines := []string{"a", "b", "c"}
	assert.Empty(t, diff.Hunks(lines, lines, 3))
}

func TestUnified_RendersPrefixedLines(t *testing.T) {
	t.Parallel()

	a := diff.SplitLines("alpha\nbeta\ngamma\n")
	b := diff.SplitLines("alpha\nBETA\ngamma\n")

	out := diff.Unified(a, b, 3)
	assert.Contains(t, out, "@@ -1,3 +1,3 @@")
	assert.Contains(t, out, "-beta")
	assert.Contains(t, out, "+BETA")
	assert.Contains(t, out, " alpha")
	assert.Contains(t, out, " gamma")
}

func TestHunks_PureInsertionAnchorsOnPrecedingOldLine(t *testing.T) {
	t.Parallel()

	a := diff.SplitLines("a\nb\nc\nd\ne\nf\ng\nh\n")
	b := diff.SplitLines("a\nb\nc\nd\nINSERTED\ne\nf\ng\nh\n")

	hunks := diff.Hunks(a, b, 0)
	require.Len(t, hunks, 1)
	assert.Equal(t, 0, hunks[0].OldCount)
	assert.Equal(t, 4, hunks[0].OldStart)
}
