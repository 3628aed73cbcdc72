package raster

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/hazyhaar/docdiff/inference"
)

// ImageNet channel statistics used to normalize classifier input.
var (
	ImageNetMean = []float32{0.485, 0.456, 0.406}
	ImageNetStd  = []float32{0.229, 0.224, 0.225}
)

// Resize scales img to exactly w×h with bilinear interpolation.
func Resize(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return ToRGBA(img)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ResizeShorter scales img so its shorter side equals side, keeping the
// aspect ratio.
func ResizeShorter(img image.Image, side int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, side, side))
	}
	if w <= h {
		return Resize(img, side, max(1, int(float64(h)*float64(side)/float64(w)+0.5)))
	}
	return Resize(img, max(1, int(float64(w)*float64(side)/float64(h)+0.5)), side)
}

// CenterCrop cuts the central w×h region. Images smaller than the crop are
// returned unchanged in that dimension.
func CenterCrop(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	cw, ch := min(w, b.Dx()), min(h, b.Dy())
	x0 := b.Min.X + (b.Dx()-cw)/2
	y0 := b.Min.Y + (b.Dy()-ch)/2
	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}

// ToTensor converts img to a 3×H×W tensor with values scaled to [0, 1].
func ToTensor(img image.Image) inference.Tensor {
	rgba := ToRGBA(img)
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	t := inference.NewTensor(3, h, w)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			t.Set(0, y, x, float32(row[4*x])/255)
			t.Set(1, y, x, float32(row[4*x+1])/255)
			t.Set(2, y, x, float32(row[4*x+2])/255)
		}
	}
	return t
}

// ClassifierInput prepares a page raster for the page-type classifier:
// shorter side to size, center crop to size×size, ImageNet normalization.
func ClassifierInput(img image.Image, size int) (inference.Tensor, error) {
	t := ToTensor(CenterCrop(ResizeShorter(img, size), size, size))
	if err := t.Normalize(ImageNetMean, ImageNetStd); err != nil {
		return inference.Tensor{}, err
	}
	return t, nil
}

// SimilarityInput prepares a page raster for the similarity head: a plain
// resize to size×size with values in [0, 1].
func SimilarityInput(img image.Image, size int) inference.Tensor {
	return ToTensor(Resize(img, size, size))
}
