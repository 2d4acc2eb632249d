package observability

import (
	"sync"
)

// MemoryFactory is a MetricFactory that keeps every metric in memory.
// Useful in tests and for exposing a snapshot on a debug endpoint.
type MemoryFactory struct {
	mu         sync.Mutex
	counters   map[string]*memoryCounter
	histograms map[string]*memoryHistogram
}

// NewMemoryFactory returns an empty MemoryFactory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		counters:   make(map[string]*memoryCounter),
		histograms: make(map[string]*memoryHistogram),
	}
}

// Counter implements MetricFactory. Repeated calls return the same counter.
func (f *MemoryFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[name]
	if !ok {
		c = &memoryCounter{}
		f.counters[name] = c
	}
	return c
}

// Histogram implements MetricFactory. Repeated calls return the same histogram.
func (f *MemoryFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.histograms[name]
	if !ok {
		h = &memoryHistogram{}
		f.histograms[name] = h
	}
	return h
}

// CounterValue returns the current value of the named counter.
func (f *MemoryFactory) CounterValue(name string) float64 {
	f.mu.Lock()
	c := f.counters[name]
	f.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.value()
}

// Observations returns a copy of everything observed by the named histogram.
func (f *MemoryFactory) Observations(name string) []float64 {
	f.mu.Lock()
	h := f.histograms[name]
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.values()
}

type memoryCounter struct {
	mu sync.Mutex
	n  float64
}

func (c *memoryCounter) Inc() { c.Add(1) }

func (c *memoryCounter) Add(v float64) {
	c.mu.Lock()
	c.n += v
	c.mu.Unlock()
}

func (c *memoryCounter) value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type memoryHistogram struct {
	mu  sync.Mutex
	obs []float64
}

func (h *memoryHistogram) Observe(v float64) {
	h.mu.Lock()
	h.obs = append(h.obs, v)
	h.mu.Unlock()
}

func (h *memoryHistogram) values() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.obs...)
}
