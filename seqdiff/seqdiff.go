// CLAUDE:SUMMARY Deterministic line-level edit scripts (Myers O(ND)) with removals ordered before additions in each hunk.
// Package seqdiff computes shortest edit scripts between two sequences.
//
// The implementation follows Myers' O(ND) greedy algorithm. Common prefix
// and suffix are trimmed first, so typical revisions of long documents only
// pay for the changed region. Within every contiguous change hunk, removals
// are emitted before additions, which makes the output stable and easy to
// read as a unified diff.
package seqdiff

import "strings"

// Op is the kind of an edit.
type Op int

const (
	Equal Op = iota
	Removed
	Added
)

func (o Op) String() string {
	switch o {
	case Equal:
		return "equal"
	case Removed:
		return "removed"
	case Added:
		return "added"
	}
	return "unknown"
}

// Edit is one entry of an edit script.
type Edit[T any] struct {
	Op    Op
	Value T
}

// Diff returns the edit script turning a into b. Equal entries are included
// so callers can reconstruct both inputs; use Changes to drop them.
func Diff[T comparable](a, b []T) []Edit[T] {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	out := make([]Edit[T], 0, len(a)+len(b))
	for _, v := range a[:prefix] {
		out = append(out, Edit[T]{Op: Equal, Value: v})
	}
	out = append(out, myers(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix])...)
	for _, v := range a[len(a)-suffix:] {
		out = append(out, Edit[T]{Op: Equal, Value: v})
	}
	return groupHunks(out)
}

// Changes filters an edit script down to its Removed and Added entries,
// preserving order.
func Changes[T any](script []Edit[T]) []Edit[T] {
	var out []Edit[T]
	for _, e := range script {
		if e.Op != Equal {
			out = append(out, e)
		}
	}
	return out
}

// Lines diffs two text blocks line by line and returns only the changes.
// An empty block has no lines.
func Lines(a, b string) []Edit[string] {
	return Changes(Diff(splitLines(a), splitLines(b)))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// myers computes a shortest edit script with the forward greedy algorithm,
// keeping one frontier per edit distance for the backtrack.
func myers[T comparable](a, b []T) []Edit[T] {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}
	limit := n + m
	offset := limit
	v := make([]int, 2*limit+2)
	var trace [][]int

	found := false
	for d := 0; d <= limit && !found; d++ {
		snapshot := make([]int, 2*d+1)
		for k := -d; k <= d; k += 2 {
			var x int
			// Ties take the deletion step.
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = true
			}
		}
		for k := -d; k <= d; k++ {
			snapshot[k+d] = v[offset+k]
		}
		trace = append(trace, snapshot)
	}

	// Backtrack from (n, m) through the recorded frontiers.
	edits := make([]Edit[T], 0, n+m)
	x, y := n, m
	for d := len(trace) - 1; d > 0; d-- {
		prev := trace[d-1]
		at := func(k int) int { return prev[k+d-1] }
		k := x - y
		var prevK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prevK)
		prevY := prevX - prevK
		for x > prevX && y > prevY {
			x--
			y--
			edits = append(edits, Edit[T]{Op: Equal, Value: a[x]})
		}
		if x == prevX {
			y--
			edits = append(edits, Edit[T]{Op: Added, Value: b[y]})
		} else {
			x--
			edits = append(edits, Edit[T]{Op: Removed, Value: a[x]})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		edits = append(edits, Edit[T]{Op: Equal, Value: a[x]})
	}

	for i, j := 0, len(edits)-1; i < j; i, j = i+1, j-1 {
		edits[i], edits[j] = edits[j], edits[i]
	}
	return edits
}

// groupHunks reorders every maximal run of non-equal edits so that all
// removals precede all additions, keeping relative order inside each kind.
func groupHunks[T any](script []Edit[T]) []Edit[T] {
	out := make([]Edit[T], 0, len(script))
	var removed, added []Edit[T]
	flush := func() {
		out = append(out, removed...)
		out = append(out, added...)
		removed, added = removed[:0], added[:0]
	}
	for _, e := range script {
		switch e.Op {
		case Removed:
			removed = append(removed, e)
		case Added:
			added = append(added, e)
		default:
			flush()
			out = append(out, e)
		}
	}
	flush()
	return out
}
