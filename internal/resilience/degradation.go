package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Level represents the current degradation state of a dependency
type Level int

const (
	LevelNormal Level = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// DegradationConfig holds configuration for dependency health tracking
type DegradationConfig struct {
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	// Window is how many recent outcomes the error rate is computed over.
	Window             int
	DegradedThreshold  float64 // error rate in [0,1]
	CriticalThreshold  float64
	EmergencyThreshold float64
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		Window:              20,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
	}
}

// HealthCheckFunc reports whether a dependency is reachable
type HealthCheckFunc func(ctx context.Context) error

// ServiceHealth is a snapshot of one dependency
type ServiceHealth struct {
	ServiceName   string     `json:"service_name"`
	Level         Level      `json:"level"`
	ErrorRate     float64    `json:"error_rate"`
	TotalChecks   int64      `json:"total_checks"`
	ErrorCount    int64      `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
	StatusMessage string     `json:"status_message"`
}

type service struct {
	health   ServiceHealth
	check    HealthCheckFunc
	outcomes []bool // ring of recent results, true is a failure
	next     int
	filled   int
}

// DegradationManager tracks the health of the service's dependencies
type DegradationManager struct {
	config   DegradationConfig
	mu       sync.RWMutex
	services map[string]*service
}

func NewDegradationManager(config DegradationConfig) *DegradationManager {
	def := DefaultDegradationConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = def.HealthCheckInterval
	}
	if config.HealthCheckTimeout <= 0 {
		config.HealthCheckTimeout = def.HealthCheckTimeout
	}
	return &DegradationManager{
		config:   config,
		services: make(map[string]*service),
	}
}

// RegisterService registers a dependency with its health check function
func (dm *DegradationManager) RegisterService(name string, check HealthCheckFunc) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.services[name] = &service{
		health: ServiceHealth{
			ServiceName:   name,
			StatusMessage: "Service is healthy",
		},
		check:    check,
		outcomes: make([]bool, dm.config.Window),
	}

	slog.Info("Registered service for degradation management", "service", name)
}

// Record stores the outcome of one call or health check
func (dm *DegradationManager) Record(name string, err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	s, ok := dm.services[name]
	if !ok {
		return
	}

	s.health.TotalChecks++
	s.outcomes[s.next] = err != nil
	s.next = (s.next + 1) % len(s.outcomes)
	if s.filled < len(s.outcomes) {
		s.filled++
	}

	if err != nil {
		now := time.Now()
		s.health.ErrorCount++
		s.health.LastError = err.Error()
		s.health.LastErrorTime = &now
	}

	failures := 0
	for i := 0; i < s.filled; i++ {
		if s.outcomes[i] {
			failures++
		}
	}
	s.health.ErrorRate = float64(failures) / float64(s.filled)

	dm.updateLevel(s)
}

func (dm *DegradationManager) updateLevel(s *service) {
	old := s.health.Level

	switch rate := s.health.ErrorRate; {
	case rate >= dm.config.EmergencyThreshold:
		s.health.Level = LevelEmergency
		s.health.StatusMessage = "Service is in emergency state - high error rate"
	case rate >= dm.config.CriticalThreshold:
		s.health.Level = LevelCritical
		s.health.StatusMessage = "Service is in critical state - elevated error rate"
	case rate >= dm.config.DegradedThreshold:
		s.health.Level = LevelDegraded
		s.health.StatusMessage = "Service is degraded - moderate error rate"
	default:
		s.health.Level = LevelNormal
		s.health.StatusMessage = "Service is healthy"
	}

	if old != s.health.Level {
		slog.Warn("Service degradation level changed",
			"service", s.health.ServiceName,
			"old_level", old.String(),
			"new_level", s.health.Level.String(),
			"error_rate", s.health.ErrorRate)
	}
}

// GetServiceHealth returns a copy of one dependency's health
func (dm *DegradationManager) GetServiceHealth(name string) (ServiceHealth, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	s, ok := dm.services[name]
	if !ok {
		return ServiceHealth{}, false
	}
	return s.health, true
}

// GetAllServiceHealth returns copies of every dependency's health
func (dm *DegradationManager) GetAllServiceHealth() map[string]ServiceHealth {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	out := make(map[string]ServiceHealth, len(dm.services))
	for name, s := range dm.services {
		out[name] = s.health
	}
	return out
}

// WorstLevel returns the most severe level across all dependencies
func (dm *DegradationManager) WorstLevel() Level {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	worst := LevelNormal
	for _, s := range dm.services {
		if s.health.Level > worst {
			worst = s.health.Level
		}
	}
	return worst
}

// StartHealthChecks runs the registered checks every interval until ctx ends
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.CheckNow(ctx)
		}
	}
}

// CheckNow runs every registered check once and waits for them
func (dm *DegradationManager) CheckNow(ctx context.Context) {
	dm.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(dm.services))
	for name, s := range dm.services {
		if s.check != nil {
			checks[name] = s.check
		}
	}
	dm.mu.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
			defer cancel()

			if err := check(checkCtx); err != nil {
				dm.Record(name, fmt.Errorf("health check failed for service %s: %w", name, err))
				return
			}
			dm.Record(name, nil)
		}()
	}
	wg.Wait()
}
