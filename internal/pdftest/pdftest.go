// Package pdftest builds small, valid PDFs for tests.
//
// Pages use a monospaced Courier font with an explicit /Widths table so text
// extractors see real glyph advances: every glyph is 600/1000 em wide.
package pdftest

import (
	"fmt"
	"strings"
)

const (
	// FontSize is the size used for every line.
	FontSize = 12.0
	// Leading is the vertical distance between consecutive lines.
	Leading = 14.0
	// Left and Top locate the first baseline.
	Left = 72.0
	Top  = 720.0
	// PageWidth and PageHeight are the US Letter MediaBox.
	PageWidth  = 612.0
	PageHeight = 792.0
	// Advance is the horizontal advance of one glyph.
	Advance = 600.0 / 1000 * FontSize
)

// Build returns a PDF with one page per entry. Each page lists its lines
// top to bottom. A page with no lines has an empty content stream.
func Build(pages ...[]string) []byte {
	if len(pages) == 0 {
		pages = [][]string{nil}
	}

	// 1 catalog, 2 pages, 3 font, then (page, content) pairs.
	nObj := 3 + 2*len(pages)
	offsets := make([]int, nObj+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), len(pages))

	widths := make([]string, 126-32+1)
	for i := range widths {
		widths[i] = "600"
	}
	offsets[3] = b.Len()
	fmt.Fprintf(&b, "3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>\nendobj\n",
		strings.Join(widths, " "))

	for i, lines := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n",
			pageObj, PageWidth, PageHeight, contentObj)

		stream := contentStream(lines)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", nObj+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= nObj; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", nObj+1, xref)
	return []byte(b.String())
}

// Text returns a single page PDF holding the given lines.
func Text(lines ...string) []byte {
	return Build(lines)
}

// Filler returns a line of n printable characters.
func Filler(n int) string {
	return strings.Repeat("x", n)
}

// Baseline returns the baseline y of the zero-based line on a page.
func Baseline(line int) float64 {
	return Top - float64(line)*Leading
}

func contentStream(lines []string) string {
	if len(lines) == 0 {
		return "q Q"
	}
	var s strings.Builder
	fmt.Fprintf(&s, "BT\n/F1 %g Tf\n%g %g Td\n", FontSize, Left, Top)
	for i, line := range lines {
		if i > 0 {
			fmt.Fprintf(&s, "0 %g Td\n", -Leading)
		}
		fmt.Fprintf(&s, "(%s) Tj\n", escape(line))
	}
	s.WriteString("ET")
	return s.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}
