package monitoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive   AlertStatus = "active"
	StatusResolved AlertStatus = "resolved"
)

// Alert is a rule that fired
type Alert struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	FiredAt     time.Time     `json:"fired_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Query names a value read from Metrics.
type Query string

const (
	QueryErrorRate    Query = "error_rate_percent"
	QueryLatencyP95   Query = "processing_p95_ms"
	QueryRedShare     Query = "red_light_percent"
	QueryHeapUsage    Query = "heap_usage_percent"
	QueryNullFraction Query = "null_assessment_percent"
)

// AlertRule defines a threshold on a metric query
type AlertRule struct {
	Name        string
	Query       Query
	Threshold   float64
	Operator    string // "gt", "gte", "lt", "lte"
	Severity    AlertSeverity
	Description string
	// For is how long a firing alert stays active after its condition clears.
	For time.Duration
}

// AlertNotifier receives alert transitions
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert Alert) error
	ResolveAlert(ctx context.Context, alert Alert) error
}

// LogNotifier writes alert transitions to the structured log
type LogNotifier struct {
	logger *Logger
}

func NewLogNotifier(logger *Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	n.logger.Warn("Alert Fired",
		"alert", alert.Name,
		"severity", alert.Severity,
		"value", alert.Value,
		"threshold", alert.Threshold,
		"description", alert.Description,
	)
	return nil
}

func (n *LogNotifier) ResolveAlert(_ context.Context, alert Alert) error {
	n.logger.Info("Alert Resolved", "alert", alert.Name, "value", alert.Value)
	return nil
}

// DefaultAlertRules returns the rules the server installs at startup
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			Name:        "high_error_rate",
			Query:       QueryErrorRate,
			Threshold:   10,
			Operator:    "gt",
			Severity:    SeverityCritical,
			Description: "More than 10% of requests are failing",
			For:         time.Minute,
		},
		{
			Name:        "slow_processing",
			Query:       QueryLatencyP95,
			Threshold:   250,
			Operator:    "gt",
			Severity:    SeverityWarning,
			Description: "p95 tensor processing latency is above 250ms",
			For:         time.Minute,
		},
		{
			Name:        "elevated_red_share",
			Query:       QueryRedShare,
			Threshold:   50,
			Operator:    "gt",
			Severity:    SeverityInfo,
			Description: "More than half of assessed subjects are in the red band",
			For:         5 * time.Minute,
		},
		{
			Name:        "unassessable_inputs",
			Query:       QueryNullFraction,
			Threshold:   50,
			Operator:    "gt",
			Severity:    SeverityWarning,
			Description: "More than half of assessments had no observable features",
			For:         5 * time.Minute,
		},
		{
			Name:        "heap_pressure",
			Query:       QueryHeapUsage,
			Threshold:   90,
			Operator:    "gt",
			Severity:    SeverityWarning,
			Description: "Heap usage is above 90%",
			For:         time.Minute,
		},
	}
}

// AlertManager evaluates rules against Metrics on an interval
type AlertManager struct {
	metrics       *Metrics
	logger        *Logger
	checkInterval time.Duration

	mu        sync.RWMutex
	rules     []AlertRule
	alerts    map[string]*Alert
	notifiers []AlertNotifier
}

// NewAlertManager creates a new alert manager
func NewAlertManager(metrics *Metrics, logger *Logger, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		metrics:       metrics,
		logger:        logger,
		checkInterval: checkInterval,
		alerts:        make(map[string]*Alert),
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start evaluates the rules until ctx is cancelled
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.Evaluate(ctx)
		}
	}
}

// Evaluate checks every rule once
func (am *AlertManager) Evaluate(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule, time.Now())
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule, now time.Time) {
	value, ok := am.read(rule.Query)
	if !ok {
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	am.mu.Lock()
	alert, exists := am.alerts[rule.Name]
	conditionMet := checkCondition(value, rule.Operator, rule.Threshold)

	var fire, resolve bool
	switch {
	case conditionMet && (!exists || alert.Status != StatusActive):
		alert = &Alert{
			ID:          fmt.Sprintf("%s:%d", rule.Name, now.Unix()),
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Status:      StatusActive,
			Value:       value,
			Threshold:   rule.Threshold,
			FiredAt:     now,
		}
		am.alerts[rule.Name] = alert
		fire = true
	case conditionMet:
		alert.Value = value
	case exists && alert.Status == StatusActive && now.Sub(alert.FiredAt) >= rule.For:
		resolvedAt := now
		alert.Status = StatusResolved
		alert.ResolvedAt = &resolvedAt
		alert.Value = value
		resolve = true
	}

	var snapshot Alert
	if alert != nil {
		snapshot = *alert
	}
	notifiers := am.notifiers
	am.mu.Unlock()

	for _, n := range notifiers {
		var err error
		switch {
		case fire:
			err = n.SendAlert(ctx, snapshot)
		case resolve:
			err = n.ResolveAlert(ctx, snapshot)
		}
		if err != nil {
			am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("alert %s: %v", rule.Name, err))
		}
	}
}

func (am *AlertManager) read(q Query) (float64, bool) {
	m := am.metrics
	switch q {
	case QueryErrorRate:
		return percent(atomic.LoadInt64(&m.ErrorCount), atomic.LoadInt64(&m.RequestCount)), true
	case QueryLatencyP95:
		return m.ProcessingLatency().P95Ms, true
	case QueryRedShare:
		m.distributionsMutex.RLock()
		var scored int64
		for _, n := range m.trafficLights {
			scored += n
		}
		red := m.trafficLights["red"]
		m.distributionsMutex.RUnlock()
		return percent(red, scored), true
	case QueryNullFraction:
		return percent(atomic.LoadInt64(&m.NullAssessments), atomic.LoadInt64(&m.Assessments)), true
	case QueryHeapUsage:
		return percent(atomic.LoadInt64(&m.HeapAlloc), atomic.LoadInt64(&m.HeapSys)), true
	default:
		return 0, false
	}
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

// ActiveAlerts returns the alerts currently firing
func (am *AlertManager) ActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	active := make([]Alert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if a.Status == StatusActive {
			active = append(active, *a)
		}
	}
	return active
}
