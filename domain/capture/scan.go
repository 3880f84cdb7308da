package capture

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultPrecompMemo = 4

// MatchFunc scores one template against one frame. The default runs NCC
// with the scanner's options.
type MatchFunc func(f *Frame, t *Template) (float64, error)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	Stride   int
	Refine   bool
	Workers  int       // parallel template matches; default NumCPU
	MemoSize int       // frames whose integral images are kept; default 4
	Match    MatchFunc // overrides NCC, mainly for tests
}

// Detection is one template scored at or above threshold.
type Detection struct {
	Name  string
	Key   string
	Score float64
}

// DetectionResult holds the positive detections of one frame, at most one
// per key.
type DetectionResult struct {
	byKey map[string]Detection
}

// NewDetectionResult builds a result from ds, keeping the highest score per
// key. On equal scores the earlier detection wins.
func NewDetectionResult(ds ...Detection) DetectionResult {
	r := DetectionResult{byKey: make(map[string]Detection, len(ds))}
	for _, d := range ds {
		r.add(d)
	}
	return r
}

func (r DetectionResult) add(d Detection) {
	if prev, ok := r.byKey[d.Key]; ok && prev.Score >= d.Score {
		return
	}
	r.byKey[d.Key] = d
}

// Keys returns the detected keys in sorted order.
func (r DetectionResult) Keys() []string {
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key was detected.
func (r DetectionResult) Has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

// Get returns the detection recorded for key.
func (r DetectionResult) Get(key string) (Detection, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// Len returns the number of detected keys.
func (r DetectionResult) Len() int { return len(r.byKey) }

// ScanStats reports scanner counters.
type ScanStats struct {
	Scans     uint64
	Skipped   uint64
	MemoHits  uint64
	Templates uint64
}

// Scanner runs template matching over frames. It is safe for concurrent use;
// the spam and hold engines may share one instance.
type Scanner struct {
	opts   ScanOptions
	match  MatchFunc
	memo   *lru.Cache[uint64, *grayPrecomp]
	logger *slog.Logger

	scans     atomic.Uint64
	skipped   atomic.Uint64
	memoHits  atomic.Uint64
	templates atomic.Uint64
}

// NewScanner builds a Scanner. A nil logger disables logging.
func NewScanner(opts ScanOptions, logger *slog.Logger) *Scanner {
	if opts.Stride <= 0 {
		opts.Stride = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultPrecompMemo
	}
	memo, _ := lru.New[uint64, *grayPrecomp](opts.MemoSize)
	s := &Scanner{opts: opts, memo: memo, logger: logger}
	s.match = opts.Match
	if s.match == nil {
		s.match = s.nccScore
	}
	return s
}

// Stats returns a snapshot of the scanner counters.
func (s *Scanner) Stats() ScanStats {
	return ScanStats{
		Scans:     s.scans.Load(),
		Skipped:   s.skipped.Load(),
		MemoHits:  s.memoHits.Load(),
		Templates: s.templates.Load(),
	}
}

// precomp returns the integral images of f, memoised by sequence number.
// Frames not built by NewFrame carry Seq 0 and are never memoised.
func (s *Scanner) precomp(f *Frame) *grayPrecomp {
	if f.Seq == 0 {
		return buildGrayPrecomp(f.Image)
	}
	if pre, ok := s.memo.Get(f.Seq); ok {
		s.memoHits.Add(1)
		return pre
	}
	pre := buildGrayPrecomp(f.Image)
	s.memo.Add(f.Seq, pre)
	return pre
}

func (s *Scanner) nccScore(f *Frame, t *Template) (float64, error) {
	if t == nil {
		return -1, ErrEmptyTemplate
	}
	m, err := matchPrecomp(s.precomp(f), t.pre, MatchOptions{Stride: s.opts.Stride, Refine: s.opts.Refine})
	if err != nil {
		return -1, err
	}
	return m.Score, nil
}

type scored struct {
	score float64
	err   error
}

// scoreAll matches every template in parallel. Results keep template order.
func (s *Scanner) scoreAll(f *Frame, templates []*Template) []scored {
	out := make([]scored, len(templates))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Workers)
	for i, t := range templates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t *Template) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					out[i] = scored{score: -1, err: fmt.Errorf("%w: panic: %v", ErrMatch, r)}
				}
			}()
			score, err := s.match(f, t)
			out[i] = scored{score: score, err: err}
		}(i, t)
	}
	wg.Wait()
	s.scans.Add(1)
	s.templates.Add(uint64(len(templates)))
	return out
}

func (s *Scanner) skip(t *Template, err error) {
	s.skipped.Add(1)
	if s.logger != nil {
		name := ""
		if t != nil {
			name = t.Name
		}
		s.logger.Debug("scan.skip", "template", name, "error", err)
	}
}

// ScanAll returns every template scoring at or above threshold, mapped to
// its key. Two templates with the same key yield one detection carrying the
// higher score; on equal scores the earlier template wins. Templates that
// fail to match are skipped.
func (s *Scanner) ScanAll(f *Frame, templates []*Template, threshold float64) (DetectionResult, error) {
	res := NewDetectionResult()
	if f == nil || f.Image == nil {
		return res, ErrNoFrame
	}
	for i, sc := range s.scoreAll(f, templates) {
		t := templates[i]
		if sc.err != nil {
			s.skip(t, sc.err)
			continue
		}
		if sc.score < threshold {
			continue
		}
		res.add(Detection{Name: t.Name, Key: t.Key, Score: sc.score})
	}
	return res, nil
}

// ScanBest returns the single highest-scoring template at or above
// threshold. Ties go to the earlier template.
func (s *Scanner) ScanBest(f *Frame, templates []*Template, threshold float64) (Detection, bool, error) {
	if f == nil || f.Image == nil {
		return Detection{}, false, ErrNoFrame
	}
	var best Detection
	found := false
	for i, sc := range s.scoreAll(f, templates) {
		t := templates[i]
		if sc.err != nil {
			s.skip(t, sc.err)
			continue
		}
		if sc.score < threshold {
			continue
		}
		if !found || sc.score > best.Score {
			best = Detection{Name: t.Name, Key: t.Key, Score: sc.score}
			found = true
		}
	}
	return best, found, nil
}

// Locate runs NCC for a single template and returns the best window in
// frame coordinates.
func (s *Scanner) Locate(f *Frame, t *Template) (image.Point, float64, error) {
	if f == nil || f.Image == nil {
		return image.Point{}, -1, ErrNoFrame
	}
	if t == nil {
		return image.Point{}, -1, ErrEmptyTemplate
	}
	m, err := matchPrecomp(s.precomp(f), t.pre, MatchOptions{Stride: s.opts.Stride, Refine: s.opts.Refine})
	if err != nil {
		return image.Point{}, -1, err
	}
	return image.Pt(m.X, m.Y), m.Score, nil
}
