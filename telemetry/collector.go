package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soocke/prompt-bot-go/domain/capture"
)

var (
	captureTotalDesc = prometheus.NewDesc(
		namespace+"_captures_total",
		"Screen grabs performed by a frame source.",
		[]string{"source"}, nil,
	)
	cacheHitsDesc = prometheus.NewDesc(
		namespace+"_capture_cache_hits_total",
		"Capture calls served from the frame cache.",
		[]string{"source"}, nil,
	)
	captureFailuresDesc = prometheus.NewDesc(
		namespace+"_capture_failures_total",
		"Screen grabs that returned an error.",
		[]string{"source"}, nil,
	)
	captureAvgDesc = prometheus.NewDesc(
		namespace+"_capture_avg_seconds",
		"Mean grab and convert time.",
		[]string{"source"}, nil,
	)
	frameAgeDesc = prometheus.NewDesc(
		namespace+"_frame_age_seconds",
		"Age of the newest cached frame.",
		[]string{"source"}, nil,
	)
	scansDesc = prometheus.NewDesc(
		namespace+"_scans_total",
		"Frames scanned against a template set.",
		nil, nil,
	)
	skippedDesc = prometheus.NewDesc(
		namespace+"_templates_skipped_total",
		"Template matches skipped because of an error.",
		nil, nil,
	)
	memoHitsDesc = prometheus.NewDesc(
		namespace+"_precomp_memo_hits_total",
		"Frames whose integral images were reused.",
		nil, nil,
	)
)

// SourceStats is the part of capture.Source the collector reads.
type SourceStats interface {
	Stats() capture.CaptureStats
}

// ScannerStats is the part of capture.Scanner the collector reads.
type ScannerStats interface {
	Stats() capture.ScanStats
}

// CaptureCollector reads capture and scan counters on each scrape.
type CaptureCollector struct {
	sources map[string]SourceStats
	scanner ScannerStats
}

// NewCaptureCollector returns a collector over the named sources and an
// optional scanner.
func NewCaptureCollector(sources map[string]SourceStats, scanner ScannerStats) *CaptureCollector {
	return &CaptureCollector{sources: sources, scanner: scanner}
}

// Describe sends the metric descriptors to the channel.
func (c *CaptureCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- captureTotalDesc
	ch <- cacheHitsDesc
	ch <- captureFailuresDesc
	ch <- captureAvgDesc
	ch <- frameAgeDesc
	if c.scanner != nil {
		ch <- scansDesc
		ch <- skippedDesc
		ch <- memoHitsDesc
	}
}

// Collect snapshots every source and the scanner.
func (c *CaptureCollector) Collect(ch chan<- prometheus.Metric) {
	for name, src := range c.sources {
		if src == nil {
			continue
		}
		st := src.Stats()
		ch <- prometheus.MustNewConstMetric(captureTotalDesc, prometheus.CounterValue, float64(st.Captures), name)
		ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(st.CacheHits), name)
		ch <- prometheus.MustNewConstMetric(captureFailuresDesc, prometheus.CounterValue, float64(st.Failures), name)
		ch <- prometheus.MustNewConstMetric(captureAvgDesc, prometheus.GaugeValue, st.AvgCapture.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(frameAgeDesc, prometheus.GaugeValue, st.LatestFrameAge.Seconds(), name)
	}
	if c.scanner == nil {
		return
	}
	st := c.scanner.Stats()
	ch <- prometheus.MustNewConstMetric(scansDesc, prometheus.CounterValue, float64(st.Scans))
	ch <- prometheus.MustNewConstMetric(skippedDesc, prometheus.CounterValue, float64(st.Skipped))
	ch <- prometheus.MustNewConstMetric(memoHitsDesc, prometheus.CounterValue, float64(st.MemoHits))
}
