package llm

import (
	"sync"
	"time"

	"github.com/ahrav/questlog/internal/ports"
)

// pngImage is a minimal PNG header, enough for providers that only forward
// bytes.
var pngImage = ports.Image{
	MIMEType: "image/png",
	Data:     []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0},
}

// recordingCollector captures metrics emitted through ports.MetricsCollector.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	labels     map[string][]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
		labels:     make(map[string][]map[string]string),
	}
}

func (c *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	c.RecordHistogram(op, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(metric string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metric] += v
	c.labels[metric] = append(c.labels[metric], labels)
}

func (c *recordingCollector) RecordGauge(metric string, v float64, labels map[string]string) {}

func (c *recordingCollector) RecordHistogram(metric string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[metric] = append(c.histograms[metric], v)
	c.labels[metric] = append(c.labels[metric], labels)
}

func (c *recordingCollector) counter(metric string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[metric]
}

func (c *recordingCollector) lastLabels(metric string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.labels[metric]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}
