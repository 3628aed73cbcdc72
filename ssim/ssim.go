// CLAUDE:SUMMARY Windowed structural similarity (uniform filter, reflect borders) producing a global score and a per-pixel dissimilarity map.
// Package ssim computes the structural similarity index between two rasters.
//
// The computation mirrors the common reference formulation: a uniform
// square window, mirror-reflected borders, sample covariance, K1=0.01,
// K2=0.03 and a data range of 255. The global score is the mean of the
// local similarity map with a border of half a window cropped away.
//
// The returned map is a dissimilarity map: identical neighbourhoods map to
// 0 and maximally dissimilar ones to 255.
package ssim

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

const (
	k1        = 0.01
	k2        = 0.03
	dataRange = 255.0
)

var (
	// ErrImageTooSmall is returned when the shorter side of the rasters is
	// below the minimum window size.
	ErrImageTooSmall = errors.New("ssim: image smaller than minimum window")

	// ErrShapeMismatch is returned when the two rasters differ in size.
	ErrShapeMismatch = errors.New("ssim: images differ in size")
)

// Options tunes the comparison. The zero value is usable.
type Options struct {
	// WindowSize is the preferred odd window side (default 7).
	WindowSize int `json:"window_size" yaml:"window_size"`

	// MinWindow is the smallest window accepted when shrinking to fit
	// small images (default 7). Images whose shorter side is below it are
	// rejected.
	MinWindow int `json:"min_window" yaml:"min_window"`

	// Color compares R, G and B independently and averages them instead of
	// comparing luma.
	Color bool `json:"color" yaml:"color"`
}

func (o *Options) defaults() {
	if o.WindowSize <= 0 {
		o.WindowSize = 7
	}
	if o.WindowSize%2 == 0 {
		o.WindowSize++
	}
	if o.MinWindow <= 0 {
		o.MinWindow = 7
	}
}

// Result holds the global score and the dissimilarity map.
type Result struct {
	Score  float64
	Map    *image.Gray
	Window int
}

// Compare computes SSIM between a and b, which must share the same size.
func Compare(a, b image.Image, opts Options) (*Result, error) {
	opts.defaults()

	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	w, h := ab.Dx(), ab.Dy()

	win, err := fitWindow(w, h, opts)
	if err != nil {
		return nil, err
	}

	var planesA, planesB []plane
	if opts.Color {
		planesA, planesB = rgbPlanes(a), rgbPlanes(b)
	} else {
		planesA, planesB = []plane{grayPlane(a)}, []plane{grayPlane(b)}
	}

	smap := make([]float64, w*h)
	score := 0.0
	for i := range planesA {
		s := similarityMap(planesA[i], planesB[i], win)
		score += cropMean(s, w, h, (win-1)/2)
		for j, v := range s {
			smap[j] += v
		}
	}
	n := float64(len(planesA))
	score /= n

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := smap[y*w+x] / n
			out.Pix[y*out.Stride+x] = dissimilarity(s)
		}
	}
	return &Result{Score: score, Map: out, Window: win}, nil
}

// CheckSize reports whether a w×h raster can be compared under opts. It
// fails with ErrImageTooSmall when the shorter side is below MinWindow.
// Callers that resample before Compare must check each raster at its
// native size first.
func CheckSize(w, h int, opts Options) error {
	opts.defaults()
	_, err := fitWindow(w, h, opts)
	return err
}

// fitWindow returns the window to use for a w×h raster.
func fitWindow(w, h int, opts Options) (int, error) {
	side := min(w, h)
	win := opts.WindowSize
	if win > side {
		win = side
		if win%2 == 0 {
			win--
		}
	}
	if win < opts.MinWindow {
		return 0, fmt.Errorf("%w: %dx%d, need at least %d", ErrImageTooSmall, w, h, opts.MinWindow)
	}
	return win, nil
}

func dissimilarity(s float64) uint8 {
	d := math.Round((1 - s) / 2 * 255)
	if d < 0 {
		return 0
	}
	if d > 255 {
		return 255
	}
	return uint8(d)
}

type plane struct {
	w, h int
	pix  []float64
}

// grayPlane converts to 8-bit luma with the 0.299/0.587/0.114 weights.
func grayPlane(img image.Image) plane {
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < p.h; y++ {
			row := g.Pix[y*g.Stride : y*g.Stride+p.w]
			for x, v := range row {
				p.pix[y*p.w+x] = float64(v)
			}
		}
		return p
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			l := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			p.pix[y*p.w+x] = math.Round(l)
		}
	}
	return p
}

func rgbPlanes(img image.Image) []plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]plane, 3)
	for i := range out {
		out[i] = plane{w: w, h: h, pix: make([]float64, w*h)}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out[0].pix[y*w+x] = float64(c.R)
			out[1].pix[y*w+x] = float64(c.G)
			out[2].pix[y*w+x] = float64(c.B)
		}
	}
	return out
}

// similarityMap returns the local SSIM value at every pixel.
func similarityMap(a, b plane, win int) []float64 {
	n := len(a.pix)
	aa := make([]float64, n)
	bb := make([]float64, n)
	ab := make([]float64, n)
	for i := range a.pix {
		aa[i] = a.pix[i] * a.pix[i]
		bb[i] = b.pix[i] * b.pix[i]
		ab[i] = a.pix[i] * b.pix[i]
	}

	ux := uniformFilter(a.pix, a.w, a.h, win)
	uy := uniformFilter(b.pix, a.w, a.h, win)
	uxx := uniformFilter(aa, a.w, a.h, win)
	uyy := uniformFilter(bb, a.w, a.h, win)
	uxy := uniformFilter(ab, a.w, a.h, win)

	np := float64(win * win)
	covNorm := np / (np - 1)
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	s := make([]float64, n)
	for i := range s {
		vx := covNorm * (uxx[i] - ux[i]*ux[i])
		vy := covNorm * (uyy[i] - uy[i]*uy[i])
		vxy := covNorm * (uxy[i] - ux[i]*uy[i])

		a1 := 2*ux[i]*uy[i] + c1
		a2 := 2*vxy + c2
		b1 := ux[i]*ux[i] + uy[i]*uy[i] + c1
		b2 := vx + vy + c2
		s[i] = (a1 * a2) / (b1 * b2)
	}
	return s
}

// uniformFilter averages each pixel over a win×win neighbourhood with
// mirror-reflected borders (d c b a | a b c d | d c b a). It runs as two
// separable passes of sliding sums.
func uniformFilter(src []float64, w, h, win int) []float64 {
	r := win / 2
	tmp := make([]float64, w*h)
	row := make([]float64, w+2*r)
	for y := 0; y < h; y++ {
		for i := range row {
			row[i] = src[y*w+reflect(i-r, w)]
		}
		slide(row, tmp[y*w:(y+1)*w], win)
	}

	out := make([]float64, w*h)
	col := make([]float64, h+2*r)
	res := make([]float64, h)
	for x := 0; x < w; x++ {
		for i := range col {
			col[i] = tmp[reflect(i-r, h)*w+x]
		}
		slide(col, res, win)
		for y := 0; y < h; y++ {
			out[y*w+x] = res[y]
		}
	}
	inv := 1 / float64(win*win)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// slide writes the running sum of win consecutive padded values to dst.
func slide(padded, dst []float64, win int) {
	sum := 0.0
	for i := 0; i < win; i++ {
		sum += padded[i]
	}
	dst[0] = sum
	for i := 1; i < len(dst); i++ {
		sum += padded[i+win-1] - padded[i-1]
		dst[i] = sum
	}
}

func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// cropMean averages s over the interior left after removing pad pixels on
// every side.
func cropMean(s []float64, w, h, pad int) float64 {
	sum := 0.0
	count := 0
	for y := pad; y < h-pad; y++ {
		for x := pad; x < w-pad; x++ {
			sum += s[y*w+x]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
