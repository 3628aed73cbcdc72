package seqdiff

import (
	"slices"
	"sort"
	"strings"
	"testing"
)

func TestLines_Basic(t *testing.T) {
	// WHAT: A one-line replacement yields one removal then one addition.
	// WHY: Localization relies on Added lines carrying the new content exactly.
	got := Lines("Line1\nLine2\nLine3", "Line1\nModified\nLine3")
	want := []Edit[string]{
		{Op: Removed, Value: "Line2"},
		{Op: Added, Value: "Modified"},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Lines = %v, want %v", got, want)
	}
}

func TestLines_Cases(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want []Edit[string]
	}{
		{"identical", "a\nb\nc", "a\nb\nc", nil},
		{"both empty", "", "", nil},
		{"from empty", "", "x\ny", []Edit[string]{{Added, "x"}, {Added, "y"}}},
		{"to empty", "x\ny", "", []Edit[string]{{Removed, "x"}, {Removed, "y"}}},
		{"append", "a\nb", "a\nb\nc", []Edit[string]{{Added, "c"}}},
		{"prepend", "b\nc", "a\nb\nc", []Edit[string]{{Added, "a"}}},
		{"delete middle", "a\nb\nc", "a\nc", []Edit[string]{{Removed, "b"}}},
		{"hunk order", "a\nx\ny\nd", "a\np\nq\nd", []Edit[string]{
			{Removed, "x"}, {Removed, "y"}, {Added, "p"}, {Added, "q"},
		}},
		{"two hunks", "a\nb\nc\nd\ne", "a\nB\nc\nd\nE", []Edit[string]{
			{Removed, "b"}, {Added, "B"}, {Removed, "e"}, {Added, "E"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Lines(tc.a, tc.b)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Lines(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestDiff_Reconstructs(t *testing.T) {
	// WHAT: Equal+Removed rebuilds a, Equal+Added rebuilds b.
	// WHY: The script must be a valid edit script, not just a change list.
	a := strings.Split("the quick brown fox jumps over the lazy dog", " ")
	b := strings.Split("a quick red fox leaps over the dog today", " ")
	script := Diff(a, b)

	var gotA, gotB []string
	for _, e := range script {
		switch e.Op {
		case Equal:
			gotA = append(gotA, e.Value)
			gotB = append(gotB, e.Value)
		case Removed:
			gotA = append(gotA, e.Value)
		case Added:
			gotB = append(gotB, e.Value)
		}
	}
	if !slices.Equal(gotA, a) {
		t.Errorf("rebuilt a = %v", gotA)
	}
	if !slices.Equal(gotB, b) {
		t.Errorf("rebuilt b = %v", gotB)
	}
}

func TestDiff_Minimal(t *testing.T) {
	a := []rune("ABCABBA")
	b := []rune("CBABAC")
	changes := Changes(Diff(a, b))
	// Classic Myers example: edit distance 5.
	if len(changes) != 5 {
		t.Errorf("edit distance = %d, want 5 (%v)", len(changes), changes)
	}
}

func TestLines_Symmetry(t *testing.T) {
	// WHAT: Swapping inputs swaps Added/Removed with equal content multisets.
	// WHY: Direction must not change which lines are reported as different.
	pairs := [][2]string{
		{"Line1\nLine2\nLine3", "Line1\nModified\nLine3"},
		{"alpha\nbeta\ngamma\ndelta", "alpha\ngamma\nepsilon\ndelta\nzeta"},
		{"", "only\nin\nb"},
		{"same", "same"},
	}
	for _, p := range pairs {
		fwd := Lines(p[0], p[1])
		rev := Lines(p[1], p[0])
		if !slices.Equal(contents(fwd, Added), contents(rev, Removed)) {
			t.Errorf("%q: added %v vs reverse removed %v", p, contents(fwd, Added), contents(rev, Removed))
		}
		if !slices.Equal(contents(fwd, Removed), contents(rev, Added)) {
			t.Errorf("%q: removed %v vs reverse added %v", p, contents(fwd, Removed), contents(rev, Added))
		}
	}
}

func TestLines_Deterministic(t *testing.T) {
	a := "x\ny\nx\ny\nz"
	b := "y\nx\nz\nx"
	first := Lines(a, b)
	for i := 0; i < 10; i++ {
		if got := Lines(a, b); !slices.Equal(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func contents(script []Edit[string], op Op) []string {
	var out []string
	for _, e := range script {
		if e.Op == op {
			out = append(out, e.Value)
		}
	}
	sort.Strings(out)
	return out
}
