package document

import (
	"math"
	"sort"
	"strings"
)

type glyph struct {
	s       string
	x, y, w float64
	size    float64
}

// assemble groups glyphs into lines (top to bottom) and each line into
// words (left to right). Glyphs whose baselines are within yTol belong to
// the same line; a horizontal gap wider than xTol starts a new word.
func assemble(glyphs []glyph, xTol, yTol float64) [][]Word {
	if len(glyphs) == 0 {
		return nil
	}
	gs := make([]glyph, len(glyphs))
	copy(gs, glyphs)
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].y > gs[j].y })

	var lines [][]glyph
	var cur []glyph
	lineY := gs[0].y
	for _, g := range gs {
		if len(cur) > 0 && math.Abs(g.y-lineY) > yTol {
			lines = append(lines, cur)
			cur = nil
		}
		if len(cur) == 0 {
			lineY = g.y
		}
		cur = append(cur, g)
	}
	lines = append(lines, cur)

	out := make([][]Word, 0, len(lines))
	for _, l := range lines {
		sort.SliceStable(l, func(i, j int) bool { return l[i].x < l[j].x })
		out = append(out, splitWords(l, xTol))
	}
	return out
}

func splitWords(line []glyph, xTol float64) []Word {
	var words []Word
	var b strings.Builder
	var box Box
	flush := func() {
		if b.Len() > 0 {
			words = append(words, Word{Text: b.String(), Box: box})
			b.Reset()
		}
	}
	for i, g := range line {
		gb := glyphBox(g)
		if i > 0 {
			prev := line[i-1]
			if g.x-(prev.x+prev.w) > xTol {
				flush()
			}
		}
		if b.Len() == 0 {
			box = gb
		} else {
			box = union(box, gb)
		}
		b.WriteString(g.s)
	}
	flush()
	return words
}

// glyphBox approximates the glyph's ink box from its baseline and size:
// descenders reach 0.2 em below the baseline, ascenders 0.8 em above.
func glyphBox(g glyph) Box {
	size := g.size
	if size <= 0 {
		size = 1
	}
	return Box{X0: g.x, Y0: g.y - 0.2*size, X1: g.x + g.w, Y1: g.y + 0.8*size}
}

func union(a, b Box) Box {
	return Box{
		X0: math.Min(a.X0, b.X0),
		Y0: math.Min(a.Y0, b.Y0),
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
	}
}

func joinLines(lines [][]Word) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		ws := make([]string, len(l))
		for i, w := range l {
			ws[i] = w.Text
		}
		parts = append(parts, strings.Join(ws, " "))
	}
	return strings.Join(parts, "\n")
}
