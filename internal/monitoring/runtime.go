package monitoring

import (
	"context"
	"runtime"
	"time"
)

// RuntimeSampler periodically copies Go runtime statistics into Metrics so
// that /health can report them without stopping the world per request.
type RuntimeSampler struct {
	metrics  *Metrics
	logger   *Logger
	interval time.Duration
	// heapWarnRatio is the heap in-use / heap sys ratio above which a
	// memory pressure event is logged.
	heapWarnRatio float64
}

func NewRuntimeSampler(metrics *Metrics, logger *Logger, interval time.Duration) *RuntimeSampler {
	return &RuntimeSampler{
		metrics:       metrics,
		logger:        logger,
		interval:      interval,
		heapWarnRatio: 0.9,
	}
}

// Sample reads the runtime statistics once.
func (rs *RuntimeSampler) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rs.metrics.RecordRuntime(
		int64(ms.NumGC),
		int64(ms.HeapAlloc),
		int64(ms.HeapSys),
		int64(runtime.NumGoroutine()),
	)

	if ms.HeapSys > 0 {
		if ratio := float64(ms.HeapInuse) / float64(ms.HeapSys); ratio > rs.heapWarnRatio {
			rs.logger.PerformanceLogger("heap_utilization", ratio, "ratio")
		}
	}
}

// Run samples until ctx is cancelled.
func (rs *RuntimeSampler) Run(ctx context.Context) {
	rs.Sample()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.Sample()
		}
	}
}
