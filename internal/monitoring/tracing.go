package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceID represents a unique trace identifier
type TraceID string

// SpanID represents a unique span identifier
type SpanID string

// SpanStatus represents the status of a span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span is one timed operation, such as a request or a pipeline stage.
type Span struct {
	TraceID     TraceID           `json:"trace_id"`
	SpanID      SpanID            `json:"span_id"`
	ParentID    *SpanID           `json:"parent_id,omitempty"`
	ServiceName string            `json:"service_name"`
	Operation   string            `json:"operation"`
	StartTime   time.Time         `json:"start_time"`
	Duration    time.Duration     `json:"duration"`
	Tags        map[string]string `json:"tags,omitempty"`
	Error       string            `json:"error,omitempty"`
	Status      SpanStatus        `json:"status"`

	mu sync.Mutex
}

// SetTag sets a tag on the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

type spanKey struct{}

// SpanFromContext returns the active span, if any.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Tracer records spans and emits each finished span as a log line.
type Tracer struct {
	serviceName string
	logger      *Logger
	active      map[SpanID]*Span
	activeMutex sync.RWMutex
}

// NewTracer creates a new tracer instance
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		logger:      logger,
		active:      make(map[SpanID]*Span),
	}
}

// StartSpan starts a span, nesting it under the span carried by ctx.
func (t *Tracer) StartSpan(ctx context.Context, operation string, tags ...string) (*Span, context.Context) {
	span := &Span{
		SpanID:      SpanID(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		ServiceName: t.serviceName,
		Operation:   operation,
		StartTime:   time.Now(),
		Status:      SpanStatusOK,
	}

	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parentID := parent.SpanID
		span.ParentID = &parentID
	} else {
		span.TraceID = TraceID(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}

	for i := 0; i+1 < len(tags); i += 2 {
		span.SetTag(tags[i], tags[i+1])
	}

	t.activeMutex.Lock()
	t.active[span.SpanID] = span
	t.activeMutex.Unlock()

	return span, context.WithValue(ctx, spanKey{}, span)
}

// EndSpan finishes the span and logs it
func (t *Tracer) EndSpan(span *Span, err error) {
	span.mu.Lock()
	span.Duration = time.Since(span.StartTime)
	if err != nil {
		span.Error = err.Error()
		span.Status = SpanStatusError
	}
	span.mu.Unlock()

	t.logSpan(span)

	t.activeMutex.Lock()
	delete(t.active, span.SpanID)
	t.activeMutex.Unlock()
}

// Trace runs fn inside a child span of ctx. A panic is recorded on the span
// and re-raised.
func (t *Tracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) (err error) {
	span, spanCtx := t.StartSpan(ctx, operation)

	defer func() {
		if r := recover(); r != nil {
			span.SetTag("panic", "true")
			t.EndSpan(span, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		t.EndSpan(span, err)
	}()

	return fn(spanCtx)
}

// ActiveSpans returns the number of spans not yet ended
func (t *Tracer) ActiveSpans() int {
	t.activeMutex.RLock()
	defer t.activeMutex.RUnlock()
	return len(t.active)
}

func (t *Tracer) logSpan(span *Span) {
	span.mu.Lock()
	defer span.mu.Unlock()

	entry := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", span.ServiceName,
		"operation", span.Operation,
		"status", span.Status,
		"duration_ms", float64(span.Duration) / float64(time.Millisecond),
	}
	if span.ParentID != nil {
		entry = append(entry, "parent_id", *span.ParentID)
	}
	if span.Error != "" {
		entry = append(entry, "error", span.Error)
	}
	for k, v := range span.Tags {
		entry = append(entry, "tag_"+k, v)
	}

	t.logger.Debug("Trace Span", entry...)
}

// TracingMiddleware opens a root span per request and exposes its IDs in the
// response headers.
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			operation = c.Request.Method + " " + c.Request.URL.Path
		}

		span, ctx := tracer.StartSpan(c.Request.Context(), operation,
			"http.method", c.Request.Method,
			"client_ip", c.ClientIP(),
		)
		if id := c.GetString("request_id"); id != "" {
			span.SetTag("request_id", id)
		}

		c.Header("X-Trace-ID", string(span.TraceID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetTag("http.status_code", strconv.Itoa(c.Writer.Status()))

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = fmt.Errorf("request errors: %v", c.Errors.String())
		}
		tracer.EndSpan(span, spanErr)
	}
}
