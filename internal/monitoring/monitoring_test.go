package monitoring

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(buf *bytes.Buffer) *Logger {
	return NewLoggerTo(buf, "debug")
}

func intp(v int) *int { return &v }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestAssessmentLoggerNullComposite(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	l.AssessmentLogger("req-1", 0, 0, nil, "", time.Millisecond, false)
	assert.Contains(t, buf.String(), `"composite_score":null`)

	buf.Reset()
	l.AssessmentLogger("req-2", 9, 8, intp(70), "red", time.Millisecond, true)
	assert.Contains(t, buf.String(), `"composite_score":70`)
	assert.Contains(t, buf.String(), `"traffic_light":"red"`)
}

func TestProcessingLatency(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, LatencyStats{}, m.ProcessingLatency())

	for i := 1; i <= 100; i++ {
		m.RecordProcessing(true, 17, time.Duration(i)*time.Millisecond)
	}

	ls := m.ProcessingLatency()
	assert.Equal(t, 100, ls.Samples)
	assert.InDelta(t, 50.5, ls.MeanMs, 1e-9)
	assert.InDelta(t, 50, ls.P50Ms, 1e-9)
	assert.InDelta(t, 95, ls.P95Ms, 1e-9)
	assert.InDelta(t, 99, ls.P99Ms, 1e-9)
	assert.InDelta(t, 20, ls.ThroughputFPS, 1e-9)
	assert.Equal(t, int64(1700), m.KeypointsDetected)
}

func TestProcessingLatencyWindowIsBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < latencyWindow+50; i++ {
		m.RecordProcessing(i%2 == 0, 0, time.Millisecond)
	}

	assert.Equal(t, latencyWindow, m.ProcessingLatency().Samples)
	assert.Equal(t, int64(latencyWindow+50), m.TensorsProcessed)
	assert.Equal(t, int64((latencyWindow+50)/2), m.ProcessingFailures)
}

func TestRecordAssessment(t *testing.T) {
	m := NewMetrics()

	m.RecordAssessment(intp(70), "red", "")
	m.RecordAssessment(intp(35), "green", "")
	m.RecordAssessment(intp(100), "red", "")
	m.RecordAssessment(nil, "", "")
	m.RecordAssessment(nil, "", "risk scoring failed")

	stats := m.GetAssessmentStats()
	assert.Equal(t, int64(5), stats["total"])
	assert.Equal(t, int64(1), stats["null_assessments"])
	assert.Equal(t, int64(1), stats["errors"])
	assert.Equal(t, map[string]int64{"red": 2, "green": 1}, stats["traffic_lights"])
	assert.Equal(t, map[string]int64{"30-39": 1, "70-79": 1, "100": 1}, stats["score_distribution"])
}

func TestResetClearsMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.RecordAssessment(intp(10), "green", "")
	m.RecordProcessing(true, 3, time.Millisecond)

	m.Reset()

	assert.Equal(t, int64(0), m.RequestCount)
	assert.Equal(t, int64(0), m.Assessments)
	assert.Equal(t, 0, m.ProcessingLatency().Samples)
	assert.Empty(t, m.GetAssessmentStats()["traffic_lights"])
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "client-supplied", w.Header().Get(RequestIDHeader))
}

func TestMonitoringMiddlewareCountsErrors(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()

	router := gin.New()
	router.Use(MonitoringMiddleware(m, testLogger(&buf)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/ok", "/bad"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, int64(3), m.RequestCount)
	assert.Equal(t, int64(1), m.ErrorCount)
	assert.Equal(t, map[int]int64{200: 2, 400: 1}, m.GetStatusCodeDistribution())
	assert.Contains(t, buf.String(), "HTTP Request")
}

func TestTracerNestsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewTracer("posture-risk", testLogger(&buf))

	root, ctx := tracer.StartSpan(context.Background(), "request")
	var child *Span
	err := tracer.Trace(ctx, "decode", func(ctx context.Context) error {
		child = SpanFromContext(ctx)
		return nil
	})
	require.NoError(t, err)

	require.NotNil(t, child)
	assert.Equal(t, root.TraceID, child.TraceID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.SpanID, *child.ParentID)
	assert.Equal(t, 1, tracer.ActiveSpans())

	tracer.EndSpan(root, nil)
	assert.Equal(t, 0, tracer.ActiveSpans())
	assert.Contains(t, buf.String(), `"operation":"decode"`)
}

func TestTraceRecordsErrorsAndPanics(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewTracer("posture-risk", testLogger(&buf))

	err := tracer.Trace(context.Background(), "score", func(context.Context) error {
		return errors.New("not finite")
	})
	assert.EqualError(t, err, "not finite")
	assert.Contains(t, buf.String(), `"status":"error"`)

	assert.Panics(t, func() {
		_ = tracer.Trace(context.Background(), "extract", func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, tracer.ActiveSpans())
}

type recordingNotifier struct {
	fired, resolved []Alert
}

func (r *recordingNotifier) SendAlert(_ context.Context, a Alert) error {
	r.fired = append(r.fired, a)
	return nil
}

func (r *recordingNotifier) ResolveAlert(_ context.Context, a Alert) error {
	r.resolved = append(r.resolved, a)
	return nil
}

func TestAlertManagerFiresAndResolves(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	am := NewAlertManager(m, testLogger(&buf), time.Minute)
	n := &recordingNotifier{}
	am.AddNotifier(n)

	rule := AlertRule{Name: "high_error_rate", Query: QueryErrorRate, Threshold: 10, Operator: "gt", For: 0}
	am.AddRule(rule)

	for i := 0; i < 4; i++ {
		m.IncrementRequest()
	}
	m.IncrementError()
	am.Evaluate(context.Background())

	require.Len(t, n.fired, 1)
	assert.InDelta(t, 25, n.fired[0].Value, 1e-9)
	assert.Len(t, am.ActiveAlerts(), 1)

	am.Evaluate(context.Background())
	assert.Len(t, n.fired, 1, "an active alert is not re-sent")

	for i := 0; i < 96; i++ {
		m.IncrementRequest()
	}
	am.Evaluate(context.Background())

	require.Len(t, n.resolved, 1)
	assert.Empty(t, am.ActiveAlerts())
}

func TestAlertManagerRedShare(t *testing.T) {
	m := NewMetrics()
	am := NewAlertManager(m, testLogger(&bytes.Buffer{}), time.Minute)

	m.RecordAssessment(intp(90), "red", "")
	m.RecordAssessment(intp(20), "green", "")
	m.RecordAssessment(intp(80), "red", "")
	m.RecordAssessment(intp(75), "red", "")

	v, ok := am.read(QueryRedShare)
	require.True(t, ok)
	assert.InDelta(t, 75, v, 1e-9)

	_, ok = am.read("bogus")
	assert.False(t, ok)
}

func TestRuntimeSamplerRecordsGauges(t *testing.T) {
	m := NewMetrics()
	NewRuntimeSampler(m, testLogger(&bytes.Buffer{}), time.Second).Sample()

	assert.Positive(t, m.HeapSys)
	assert.Positive(t, m.NumGoroutine)
}

func TestSecurityMonitoringFlagsScanners(t *testing.T) {
	var buf bytes.Buffer
	router := gin.New()
	router.Use(SecurityMonitoringMiddleware(testLogger(&buf)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 sqlmap/1.7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), "suspicious_user_agent")
}
