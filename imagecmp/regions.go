package imagecmp

import (
	"image"
	"image/color"
	"sort"
)

// Rect is a connected changed area and its pixel count.
type Rect struct {
	Rect image.Rectangle
	Area int
}

// Regions returns the bounding rectangles of 4-connected groups of mask
// pixels above threshold, dropping groups smaller than minArea. Results are
// ordered top to bottom, then left to right.
func Regions(mask *image.Gray, threshold uint8, minArea int) []Rect {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	seen := make([]bool, w*h)
	hot := func(x, y int) bool {
		return mask.Pix[y*mask.Stride+x] > threshold
	}

	var out []Rect
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || !hot(x, y) {
				continue
			}
			r := image.Rect(x, y, x+1, y+1)
			area := 0
			seen[y*w+x] = true
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				pt := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				r = r.Union(image.Rect(pt.X, pt.Y, pt.X+1, pt.Y+1))
				for _, n := range [4]image.Point{image.Pt(pt.X+1, pt.Y), image.Pt(pt.X-1, pt.Y), image.Pt(pt.X, pt.Y+1), image.Pt(pt.X, pt.Y-1)} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h || seen[n.Y*w+n.X] || !hot(n.X, n.Y) {
						continue
					}
					seen[n.Y*w+n.X] = true
					stack = append(stack, n)
				}
			}
			if area >= minArea {
				out = append(out, Rect{Rect: r.Add(b.Min), Area: area})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rect.Min.Y != out[j].Rect.Min.Y {
			return out[i].Rect.Min.Y < out[j].Rect.Min.Y
		}
		return out[i].Rect.Min.X < out[j].Rect.Min.X
	})
	return out
}

// Overlay tints the mask red: each pixel's alpha is its dissimilarity, so
// unchanged areas are fully transparent.
func Overlay(mask *image.Gray) *image.NRGBA {
	b := mask.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			out.SetNRGBA(x, y, color.NRGBA{R: 255, A: v})
		}
	}
	return out
}
