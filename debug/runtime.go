// Package debug periodically logs runtime and engine statistics. It is
// started only when config.Debug is true.
package debug

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// StatsFunc contributes extra attributes to each sample, typically engine
// or capture counters.
type StatsFunc func() []slog.Attr

// Sampler reads runtime metrics and the registered extras.
type Sampler struct {
	extras       []StatsFunc
	samples      []metrics.Sample
	rssErrLogged bool
}

// NewSampler returns a Sampler that appends extras to every sample.
func NewSampler(extras ...StatsFunc) *Sampler {
	return &Sampler{
		extras:  extras,
		samples: []metrics.Sample{{Name: "/sched/goroutines:goroutines"}},
	}
}

// Sample collects one set of attributes.
func (s *Sampler) Sample(logger *slog.Logger) []slog.Attr {
	metrics.Read(s.samples)
	var goroutines uint64
	if s.samples[0].Value.Kind() == metrics.KindUint64 {
		goroutines = s.samples[0].Value.Uint64()
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rss, err := processRSS()
	if err != nil && !s.rssErrLogged && logger != nil {
		logger.Warn("debug: rss unavailable", slog.String("err", err.Error()))
		s.rssErrLogged = true
	}

	attrs := []slog.Attr{
		slog.Uint64("goroutines", goroutines),
		slog.Uint64("stack_inuse", ms.StackInuse),
		slog.Uint64("heap_alloc", ms.HeapAlloc),
		slog.Uint64("heap_inuse", ms.HeapInuse),
		slog.Uint64("heap_sys", ms.HeapSys),
		slog.Uint64("num_gc", uint64(ms.NumGC)),
		slog.Uint64("rss", rss),
	}
	for _, f := range s.extras {
		if f != nil {
			attrs = append(attrs, f()...)
		}
	}
	return attrs
}

// StartRuntimeLogger logs a sample every interval until ctx is done.
func StartRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, extras ...StatsFunc) {
	if logger == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := NewSampler(extras...)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.LogAttrs(ctx, slog.LevelDebug, "runtime-stats", s.Sample(logger)...)
			}
		}
	}()
}
