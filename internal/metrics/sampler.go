package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "cpu_percent",
			Help:      "Backend CPU usage in percent.",
		}, []string{"pid"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "memory_rss_bytes",
			Help:      "Backend resident set size.",
		}, []string{"pid"},
	)
	threads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "threads",
			Help:      "Backend thread count.",
		}, []string{"pid"},
	)
)

// Sample is one resource reading of the backend.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sampler periodically reads CPU, memory and thread counts of one pid.
type Sampler struct {
	pid      int32
	interval time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last *Sample

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSampler(pid int, interval time.Duration, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{pid: int32(pid), interval: interval, logger: logger, stopCh: make(chan struct{})}
}

// Start samples until ctx is done or Stop is called. A non-positive interval does nothing.
func (s *Sampler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-t.C:
				sample, err := Read(s.pid)
				if err != nil {
					s.logger.Debug("Failed to sample backend", "pid", s.pid, "error", err)
					continue
				}
				s.record(sample)
			}
		}
	}()
}

// Stop ends sampling and removes the pid's series.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	if regOK.Load() {
		l := pidLabel(s.pid)
		cpuPercent.DeleteLabelValues(l)
		memoryRSS.DeleteLabelValues(l)
		threads.DeleteLabelValues(l)
	}
}

// Last returns the most recent sample, nil before the first tick.
func (s *Sampler) Last() *Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	c := *s.last
	return &c
}

func (s *Sampler) record(sample *Sample) {
	s.mu.Lock()
	s.last = sample
	s.mu.Unlock()
	if regOK.Load() {
		l := pidLabel(sample.PID)
		cpuPercent.WithLabelValues(l).Set(sample.CPUPercent)
		memoryRSS.WithLabelValues(l).Set(float64(sample.MemoryRSS))
		threads.WithLabelValues(l).Set(float64(sample.NumThreads))
	}
}

// Read takes a single reading of pid.
func Read(pid int32) (*Sample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}
	// CPU and thread counts are best effort; some platforms deny them.
	cpu, _ := proc.CPUPercent()
	n, _ := proc.NumThreads()
	return &Sample{PID: pid, CPUPercent: cpu, MemoryRSS: mem.RSS, NumThreads: n, Timestamp: time.Now()}, nil
}
