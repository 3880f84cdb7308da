package capture

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// luma converts 8-bit RGB to 8-bit luminance using the fixed-point BT.601
// weights 77/150/29.
func luma(r, g, b uint8) uint8 {
	return uint8((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

// ToGray converts img to an 8-bit grayscale raster, downsampling first with
// a linear filter when 0 < scale < 1. The result always starts at (0,0) and
// never aliases img.
func ToGray(img image.Image, scale float64) *image.Gray {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	if scale > 0 && scale < 1 {
		w := max(1, int(math.Round(float64(b.Dx())*scale)))
		h := max(1, int(math.Round(float64(b.Dy())*scale)))
		img = imaging.Resize(img, w, h, imaging.Linear)
		b = img.Bounds()
	}
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			o := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Stride:y*out.Stride+w], src.Pix[o:o+w])
		}
		return out
	case *image.RGBA:
		grayRows(out, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
		return out
	case *image.NRGBA:
		grayRows(out, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
		return out
	}

	nrgba := imaging.Clone(img)
	grayRows(out, nrgba.Pix, nrgba.Stride, 0, w, h)
	return out
}

// grayRows reads 4-byte RGBA/NRGBA pixels row by row. Alpha is ignored;
// screen captures are opaque.
func grayRows(dst *image.Gray, pix []uint8, stride, start, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[start+y*stride : start+y*stride+w*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			i := x * 4
			out[x] = luma(row[i], row[i+1], row[i+2])
		}
	}
}
