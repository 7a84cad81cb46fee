package monitoring

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	latencyWindow = 1000
	// scoreBucketWidth groups composite scores into ten buckets of ten points.
	scoreBucketWidth = 10
	numScoreBuckets  = 100/scoreBucketWidth + 1
)

// Metrics holds service metrics. Counters are updated atomically; the
// latency window and distributions are guarded by their own locks.
type Metrics struct {
	RequestCount int64
	ErrorCount   int64
	CacheHits    int64
	CacheMisses  int64
	StartTime    time.Time

	// Pipeline and scoring counters
	TensorsProcessed   int64
	ProcessingFailures int64
	KeypointsDetected  int64
	Assessments        int64
	NullAssessments    int64
	AssessmentErrors   int64

	trafficLights      map[string]int64
	scoreBuckets       [numScoreBuckets]int64
	distributionsMutex sync.RWMutex

	// Processing latency window in milliseconds
	processingTimes      []float64
	processingTimesMutex sync.RWMutex

	// Request latency window
	responseTimes      []time.Duration
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	// Rate limit metrics
	RateLimitIPBlocks      int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	// Runtime gauges, sampled by RuntimeSampler
	GCCount      int64
	HeapAlloc    int64
	HeapSys      int64
	NumGoroutine int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		trafficLights:        make(map[string]int64),
		processingTimes:      make([]float64, 0, latencyWindow),
		responseTimes:        make([]time.Duration, 0, latencyWindow),
		requestCountByStatus: make(map[int]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordProcessing records one processed tensor and how long decode plus
// extraction took.
func (m *Metrics) RecordProcessing(success bool, keypoints int, duration time.Duration) {
	atomic.AddInt64(&m.TensorsProcessed, 1)
	if !success {
		atomic.AddInt64(&m.ProcessingFailures, 1)
	}
	atomic.AddInt64(&m.KeypointsDetected, int64(keypoints))

	m.processingTimesMutex.Lock()
	m.processingTimes = append(m.processingTimes, float64(duration)/float64(time.Millisecond))
	if len(m.processingTimes) > latencyWindow {
		m.processingTimes = m.processingTimes[1:]
	}
	m.processingTimesMutex.Unlock()
}

// RecordAssessment records a risk assessment outcome. A nil composite is
// counted as a null assessment; a non-empty errMsg as a scoring error.
func (m *Metrics) RecordAssessment(composite *int, light string, errMsg string) {
	atomic.AddInt64(&m.Assessments, 1)
	switch {
	case errMsg != "":
		atomic.AddInt64(&m.AssessmentErrors, 1)
		return
	case composite == nil:
		atomic.AddInt64(&m.NullAssessments, 1)
		return
	}

	bucket := *composite / scoreBucketWidth
	if bucket < 0 {
		bucket = 0
	}
	if bucket >= len(m.scoreBuckets) {
		bucket = len(m.scoreBuckets) - 1
	}

	m.distributionsMutex.Lock()
	m.trafficLights[light]++
	m.scoreBuckets[bucket]++
	m.distributionsMutex.Unlock()
}

// RecordResponseTime records request latency for percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.responseTimesMutex.Lock()
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > latencyWindow {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// RecordRuntime stores the latest runtime gauges
func (m *Metrics) RecordRuntime(gcCount, heapAlloc, heapSys, goroutines int64) {
	atomic.StoreInt64(&m.GCCount, gcCount)
	atomic.StoreInt64(&m.HeapAlloc, heapAlloc)
	atomic.StoreInt64(&m.HeapSys, heapSys)
	atomic.StoreInt64(&m.NumGoroutine, goroutines)
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// LatencyStats summarises the processing latency window.
type LatencyStats struct {
	Samples       int     `json:"samples"`
	MeanMs        float64 `json:"mean_latency_ms"`
	P50Ms         float64 `json:"p50_latency_ms"`
	P95Ms         float64 `json:"p95_latency_ms"`
	P99Ms         float64 `json:"p99_latency_ms"`
	ThroughputFPS float64 `json:"throughput_fps"`
}

// ProcessingLatency returns quantiles over the last processed tensors.
// Throughput is derived from the median as 1000/p50.
func (m *Metrics) ProcessingLatency() LatencyStats {
	m.processingTimesMutex.RLock()
	samples := make([]float64, len(m.processingTimes))
	copy(samples, m.processingTimes)
	m.processingTimesMutex.RUnlock()

	if len(samples) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(samples)

	ls := LatencyStats{
		Samples: len(samples),
		MeanMs:  stat.Mean(samples, nil),
		P50Ms:   stat.Quantile(0.50, stat.Empirical, samples, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, samples, nil),
		P99Ms:   stat.Quantile(0.99, stat.Empirical, samples, nil),
	}
	if ls.P50Ms > 0 {
		ls.ThroughputFPS = 1000 / ls.P50Ms
	}
	return ls
}

// GetPercentileResponseTime returns the request latency at percentile (0..100)
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.responseTimesMutex.RLock()
	samples := make([]float64, len(m.responseTimes))
	for i, d := range m.responseTimes {
		samples[i] = float64(d)
	}
	m.responseTimesMutex.RUnlock()

	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)

	return time.Duration(stat.Quantile(percentile/100, stat.Empirical, samples, nil))
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetAssessmentStats returns traffic-light totals and the composite score
// distribution keyed by bucket lower bound.
func (m *Metrics) GetAssessmentStats() map[string]interface{} {
	m.distributionsMutex.RLock()
	lights := make(map[string]int64, len(m.trafficLights))
	for k, v := range m.trafficLights {
		lights[k] = v
	}
	buckets := make(map[string]int64)
	for i, n := range m.scoreBuckets {
		if n > 0 {
			buckets[bucketLabel(i)] = n
		}
	}
	m.distributionsMutex.RUnlock()

	return map[string]interface{}{
		"total":              atomic.LoadInt64(&m.Assessments),
		"null_assessments":   atomic.LoadInt64(&m.NullAssessments),
		"errors":             atomic.LoadInt64(&m.AssessmentErrors),
		"traffic_lights":     lights,
		"score_distribution": buckets,
	}
}

func bucketLabel(i int) string {
	lo := i * scoreBucketWidth
	if lo >= 100 {
		return "100"
	}
	return strconv.Itoa(lo) + "-" + strconv.Itoa(lo+scoreBucketWidth-1)
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":      atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":   atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count": atomic.LoadInt64(&m.RateLimitFallbackCount),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	heapAlloc := atomic.LoadInt64(&m.HeapAlloc)
	heapSys := atomic.LoadInt64(&m.HeapSys)
	heapUsage := float64(0)
	if heapSys > 0 {
		heapUsage = float64(heapAlloc) / float64(heapSys) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"start_time":             m.StartTime.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / float64(time.Millisecond),
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / float64(time.Millisecond),
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / float64(time.Millisecond),
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"tensors_processed":   atomic.LoadInt64(&m.TensorsProcessed),
		"processing_failures": atomic.LoadInt64(&m.ProcessingFailures),
		"keypoints_detected":  atomic.LoadInt64(&m.KeypointsDetected),
		"processing_latency":  m.ProcessingLatency(),
		"assessments":         m.GetAssessmentStats(),
		"rate_limit":          m.GetRateLimitStats(),

		"go_gc_count":           atomic.LoadInt64(&m.GCCount),
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": heapUsage,
		"go_goroutines":         atomic.LoadInt64(&m.NumGoroutine),
	}
}

// Reset clears all metrics
func (m *Metrics) Reset() {
	for _, c := range []*int64{
		&m.RequestCount, &m.ErrorCount, &m.CacheHits, &m.CacheMisses,
		&m.TensorsProcessed, &m.ProcessingFailures, &m.KeypointsDetected,
		&m.Assessments, &m.NullAssessments, &m.AssessmentErrors,
		&m.RateLimitIPBlocks, &m.RateLimitRedisErrors, &m.RateLimitFallbackCount,
	} {
		atomic.StoreInt64(c, 0)
	}

	m.distributionsMutex.Lock()
	m.trafficLights = make(map[string]int64)
	m.scoreBuckets = [numScoreBuckets]int64{}
	m.distributionsMutex.Unlock()

	m.processingTimesMutex.Lock()
	m.processingTimes = m.processingTimes[:0]
	m.processingTimesMutex.Unlock()

	m.responseTimesMutex.Lock()
	m.responseTimes = m.responseTimes[:0]
	m.responseTimesMutex.Unlock()

	m.statusMutex.Lock()
	m.requestCountByStatus = make(map[int]int64)
	m.statusMutex.Unlock()

	m.StartTime = time.Now()
}
