package capture

import (
	"image"
	"math"
)

// flatEps is the variance below which a window or template is treated as
// constant.
const flatEps = 1e-9

// grayPrecomp stores per-frame grayscale values and their summed-area tables
// (integral images). The integrals allow O(1) window sum and variance queries.
type grayPrecomp struct {
	gray       []float64
	integral   []float64
	integralSq []float64
	W, H       int
}

// templatePrecomp caches grayscale pixels and summary statistics for a
// template.
type templatePrecomp struct {
	gray  []float64
	W, H  int
	meanT float64
	stdT  float64
}

// MatchOptions configures the NCC search.
type MatchOptions struct {
	Stride int  // coarse step between candidate windows (default 1)
	Refine bool // when Stride>1, search exhaustively around the coarse best
}

// Match is the best window found by MatchNCC. Score is in [-1, 1].
type Match struct {
	X, Y  int
	Score float64
}

func newTemplatePrecomp(img *image.Gray) *templatePrecomp {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	gray := make([]float64, w*h)
	var sumT, sumT2 float64
	for y := 0; y < h; y++ {
		o := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			v := float64(img.Pix[o+x])
			gray[y*w+x] = v
			sumT += v
			sumT2 += v * v
		}
	}
	n := float64(w * h)
	meanT := sumT / n
	varT := (sumT2 - sumT*sumT/n) / n
	stdT := 0.0
	if varT > 0 {
		stdT = math.Sqrt(varT)
	}
	return &templatePrecomp{gray: gray, W: w, H: h, meanT: meanT, stdT: stdT}
}

// buildGrayPrecomp computes the summed-area tables for a frame.
func buildGrayPrecomp(img *image.Gray) *grayPrecomp {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	W, H := b.Dx(), b.Dy()
	need := W * H
	p := &grayPrecomp{
		gray:       make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		o := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < W; x++ {
			v := float64(img.Pix[o+x])
			off := y*W + x
			p.gray[off] = v
			rowSum += v
			rowSum2 += v * v
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[off-W] + rowSum
				p.integralSq[off] = p.integralSq[off-W] + rowSum2
			}
		}
	}
	return p
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	at := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
}

// MatchNCC searches frame for the window that best correlates with tmpl.
func MatchNCC(frame *image.Gray, tmpl *Template, opts MatchOptions) (Match, error) {
	if frame == nil {
		return Match{Score: -1}, ErrNoFrame
	}
	var pc *templatePrecomp
	if tmpl != nil {
		pc = tmpl.pre
	}
	return matchPrecomp(buildGrayPrecomp(frame), pc, opts)
}

func matchPrecomp(pre *grayPrecomp, pc *templatePrecomp, opts MatchOptions) (Match, error) {
	res := Match{Score: -1}
	if pc == nil || pc.W == 0 || pc.H == 0 {
		return res, ErrEmptyTemplate
	}
	if pre == nil || pre.W < pc.W || pre.H < pc.H {
		return res, ErrTemplateTooLarge
	}
	stride := opts.Stride
	if stride <= 0 {
		stride = 1
	}
	if pc.stdT <= flatEps {
		return matchFlat(pre, pc, stride), nil
	}

	W, H := pre.W, pre.H
	w, h := pc.W, pc.H
	bestX, bestY, best := 0, 0, -1.0
	for y := 0; y <= H-h; y += stride {
		for x := 0; x <= W-w; x += stride {
			if s, ok := windowScore(pre, pc, x, y); ok && s > best {
				best, bestX, bestY = s, x, y
			}
		}
	}
	if opts.Refine && stride > 1 {
		minY, maxY := max(0, bestY-stride), min(H-h, bestY+stride)
		minX, maxX := max(0, bestX-stride), min(W-w, bestX+stride)
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if s, ok := windowScore(pre, pc, x, y); ok && s > best {
					best, bestX, bestY = s, x, y
				}
			}
		}
	}
	res.X, res.Y, res.Score = bestX, bestY, clampScore(best)
	return res, nil
}

// windowScore is the Pearson correlation between the template and the frame
// window at (x,y). Flat windows have no defined score.
func windowScore(pre *grayPrecomp, pc *templatePrecomp, x, y int) (float64, bool) {
	w, h := pc.W, pc.H
	n := float64(w * h)
	sumF := integralSum(pre.integral, pre.W, x, y, x+w-1, y+h-1)
	sumF2 := integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
	meanF := sumF / n
	varF := (sumF2 - sumF*sumF/n) / n
	if varF <= flatEps {
		return 0, false
	}
	var sumFT float64
	for ty := 0; ty < h; ty++ {
		frow := pre.gray[(y+ty)*pre.W+x : (y+ty)*pre.W+x+w]
		trow := pc.gray[ty*w : ty*w+w]
		for i, t := range trow {
			sumFT += frow[i] * t
		}
	}
	denom := n * math.Sqrt(varF) * pc.stdT
	if denom <= 0 {
		return 0, false
	}
	return (sumFT - n*meanF*pc.meanT) / denom, true
}

// matchFlat handles constant templates, where correlation is undefined: only
// a window with exactly the same constant value counts, scoring 1.
func matchFlat(pre *grayPrecomp, pc *templatePrecomp, stride int) Match {
	ref := pc.gray[0]
	w, h := pc.W, pc.H
	n := float64(w * h)
	for y := 0; y <= pre.H-h; y += stride {
		for x := 0; x <= pre.W-w; x += stride {
			sumF := integralSum(pre.integral, pre.W, x, y, x+w-1, y+h-1)
			sumF2 := integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
			if math.Abs(sumF/n-ref) > flatEps || (sumF2-sumF*sumF/n)/n > flatEps {
				continue
			}
			return Match{X: x, Y: y, Score: 1}
		}
	}
	return Match{Score: -1}
}

// clampScore keeps rounding noise out of the score: values are clamped to
// [-1, 1] and values within flatEps of 1 become exactly 1.
func clampScore(s float64) float64 {
	switch {
	case s >= 1-flatEps:
		return 1
	case s < -1:
		return -1
	}
	return s
}
