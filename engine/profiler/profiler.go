package profiler

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/orchestrator"
)

// Report is one interval of aggregated frame statistics.
type Report struct {
	Frames   int
	FPS      float64
	Interval time.Duration

	// AvgCPU is the mean time ExecuteFrame took, fence waits included.
	AvgCPU time.Duration
	MaxCPU time.Duration

	AvgBuffers     float64
	AvgGlue        float64
	AvgTransitions float64

	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	MaxPauseUs  uint64
}

// Profiler aggregates orchestrator frame statistics and memory usage, logging a Report at a
// configurable interval.
type Profiler struct {
	mu *sync.Mutex

	logger         *slog.Logger
	updateInterval time.Duration
	now            func() time.Time

	lastTime    time.Time
	frames      int
	cpu, maxCPU time.Duration
	buffers     int
	glue        int
	transitions int

	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	last Report
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		logger:         common.Logger(),
		updateInterval: time.Second,
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick records one executed frame. It logs and returns a Report once the update interval has
// elapsed.
//
// Parameters:
//   - stats: the statistics of the frame that just completed
//
// Returns:
//   - Report: the aggregated report, valid only when ok is true
//   - bool: true if a report was produced this tick
func (p *Profiler) Tick(stats orchestrator.FrameStats) (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frames++
	p.cpu += stats.Elapsed
	p.maxCPU = max(p.maxCPU, stats.Elapsed)
	p.buffers += stats.Buffers
	p.glue += stats.GlueBuffers
	p.transitions += stats.Transitions

	current := p.now()
	elapsed := current.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	n := float64(p.frames)
	r := Report{
		Frames:         p.frames,
		FPS:            n / elapsed.Seconds(),
		Interval:       elapsed,
		AvgCPU:         p.cpu / time.Duration(p.frames),
		MaxCPU:         p.maxCPU,
		AvgBuffers:     float64(p.buffers) / n,
		AvgGlue:        float64(p.glue) / n,
		AvgTransitions: float64(p.transitions) / n,
	}
	p.readMemory(&r, elapsed)

	p.logger.Info("profiler",
		"fps", r.FPS,
		"cpu_avg", r.AvgCPU,
		"cpu_max", r.MaxCPU,
		"buffers", r.AvgBuffers,
		"glue", r.AvgGlue,
		"transitions", r.AvgTransitions,
		"heap_mb", r.HeapMB,
		"alloc_mb_s", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_max_pause_us", r.MaxPauseUs,
	)

	p.frames, p.cpu, p.maxCPU = 0, 0, 0
	p.buffers, p.glue, p.transitions = 0, 0, 0
	p.lastTime = current
	p.last = r
	return r, true
}

// Last returns the most recent report, or the zero Report before the first interval.
func (p *Profiler) Last() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// readMemory fills the memory fields of r. Caller must hold the mutex.
func (p *Profiler) readMemory(r *Report, elapsed time.Duration) {
	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	r.GCCount = gcCount
	// PauseNs is a circular buffer of the last 256 pauses
	start := p.lastGCCount
	if gcCount-start > 256 {
		start = gcCount - 256
	}
	for i := start; i < gcCount; i++ {
		r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
}
