// Package health aggregates component probes behind one endpoint. The
// service stays up with a degraded report when a dependency is down; the
// QR surfaces keep serving template fallbacks either way.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"snapreview/pkg/logging"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	DurationMS  int64          `json:"duration_ms"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth is the aggregate report.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	UptimeSec  int64                      `json:"uptime_seconds"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker probes one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func NewCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) Checker {
	return CheckFunc{name: name, fn: fn}
}

func (c CheckFunc) Name() string                              { return c.name }
func (c CheckFunc) Check(ctx context.Context) ComponentHealth { return c.fn(ctx) }

// Manager runs registered checkers concurrently.
type Manager struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	startTime time.Time
	version   string
	timeout   time.Duration
	logger    *logging.Logger
}

func NewManager(version string, timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		checkers:  make(map[string]Checker),
		startTime: time.Now(),
		version:   version,
		timeout:   timeout,
		logger:    logger.Component("health"),
	}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// CheckAll runs every probe concurrently and folds the results into one
// system status. Any unhealthy component makes the system unhealthy; any
// degraded one degrades it.
func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results <- c.Check(cctx)
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	components := make(map[string]ComponentHealth)
	status := StatusHealthy
	for r := range results {
		components[r.Name] = r
		switch r.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status != StatusUnhealthy {
				status = StatusDegraded
			}
		}
	}
	if len(components) == 0 {
		status = StatusUnknown
	}

	return SystemHealth{
		Status:     status,
		Timestamp:  time.Now(),
		Version:    m.version,
		UptimeSec:  int64(time.Since(m.startTime).Seconds()),
		Components: components,
	}
}

// Handler serves the aggregate report. Unhealthy maps to 503 so load
// balancers can act on it.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.CheckAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// NewDatabaseChecker probes connectivity with a ping and reports pool
// stats.
func NewDatabaseChecker(conn *sql.DB) Checker {
	return NewCheckFunc("database", func(ctx context.Context) ComponentHealth {
		start := time.Now()
		h := ComponentHealth{Name: "database", LastChecked: start}
		if conn == nil {
			h.Status = StatusUnhealthy
			h.Message = "database not configured"
			return h
		}
		if err := conn.PingContext(ctx); err != nil {
			h.Status = StatusUnhealthy
			h.Error = err.Error()
			h.DurationMS = time.Since(start).Milliseconds()
			return h
		}
		stats := conn.Stats()
		h.Status = StatusHealthy
		h.DurationMS = time.Since(start).Milliseconds()
		h.Metadata = map[string]any{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		}
		return h
	})
}

// NewGenerationChecker reports whether live generation is configured. A
// missing API key degrades rather than fails: templates still serve.
func NewGenerationChecker(apiKeySet func() bool) Checker {
	return NewCheckFunc("generation", func(ctx context.Context) ComponentHealth {
		h := ComponentHealth{Name: "generation", LastChecked: time.Now()}
		if apiKeySet() {
			h.Status = StatusHealthy
			return h
		}
		h.Status = StatusDegraded
		h.Message = "no OpenRouter API key; serving template feedback only"
		return h
	})
}
