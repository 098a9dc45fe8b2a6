package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"example.com/backstage/services/provenance/domain"
)

// TimerSnapshot summarizes recorded durations
type TimerSnapshot struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// OperationSnapshot summarizes outcomes of a ledger operation
type OperationSnapshot struct {
	Total    int64            `json:"total"`
	Failures int64            `json:"failures"`
	ByKind   map[string]int64 `json:"by_kind,omitempty"`
	Timer    TimerSnapshot    `json:"timer"`
}

// Snapshot is the JSON view served on /metrics
type Snapshot struct {
	UptimeSeconds int64                        `json:"uptime_seconds"`
	Counters      map[string]int64             `json:"counters"`
	Gauges        map[string]int64             `json:"gauges"`
	Operations    map[string]OperationSnapshot `json:"operations"`
	Health        map[string]bool              `json:"health"`
}

type timer struct {
	count   int64
	totalMs int64
	maxMs   int64
}

type operation struct {
	total    int64
	failures int64
	timer    timer
	mu       sync.Mutex
	byKind   map[string]int64
}

// Metrics is an in-process collector. The zero value is not usable; use NewMetrics.
type Metrics struct {
	mu         sync.RWMutex
	counters   map[string]*int64
	gauges     map[string]*int64
	operations map[string]*operation
	health     map[string]bool
	startTime  time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		operations: make(map[string]*operation),
		health:     make(map[string]bool),
		startTime:  time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(m.cell(m.counters, name), value)
}

// SetGauge sets a gauge to value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(m.cell(m.gauges, name), value)
}

// SetHealth records the health of a dependency
func (m *Metrics) SetHealth(name string, healthy bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.health[name] = healthy
	m.mu.Unlock()
}

// ObserveOperation records the outcome and latency of one ledger operation.
// Failures are bucketed by error kind.
func (m *Metrics) ObserveOperation(name string, started time.Time, err error) {
	if m == nil {
		return
	}

	m.mu.RLock()
	op, ok := m.operations[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if op, ok = m.operations[name]; !ok {
			op = &operation{byKind: make(map[string]int64)}
			m.operations[name] = op
		}
		m.mu.Unlock()
	}

	elapsed := time.Since(started).Milliseconds()
	atomic.AddInt64(&op.total, 1)
	atomic.AddInt64(&op.timer.count, 1)
	atomic.AddInt64(&op.timer.totalMs, elapsed)
	for {
		current := atomic.LoadInt64(&op.timer.maxMs)
		if elapsed <= current || atomic.CompareAndSwapInt64(&op.timer.maxMs, current, elapsed) {
			break
		}
	}

	if err != nil {
		atomic.AddInt64(&op.failures, 1)
		op.mu.Lock()
		op.byKind[string(domain.KindOf(err))]++
		op.mu.Unlock()
	}
}

// GetAllMetrics returns a point-in-time copy of every metric
func (m *Metrics) GetAllMetrics() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Counters:      make(map[string]int64, len(m.counters)),
		Gauges:        make(map[string]int64, len(m.gauges)),
		Operations:    make(map[string]OperationSnapshot, len(m.operations)),
		Health:        make(map[string]bool, len(m.health)),
	}
	for name, c := range m.counters {
		snap.Counters[name] = atomic.LoadInt64(c)
	}
	for name, g := range m.gauges {
		snap.Gauges[name] = atomic.LoadInt64(g)
	}
	for name, healthy := range m.health {
		snap.Health[name] = healthy
	}
	for name, op := range m.operations {
		count := atomic.LoadInt64(&op.timer.count)
		total := atomic.LoadInt64(&op.timer.totalMs)
		opSnap := OperationSnapshot{
			Total:    atomic.LoadInt64(&op.total),
			Failures: atomic.LoadInt64(&op.failures),
			ByKind:   make(map[string]int64),
			Timer: TimerSnapshot{
				Count:       count,
				TotalTimeMs: total,
				MaxTimeMs:   atomic.LoadInt64(&op.timer.maxMs),
			},
		}
		if count > 0 {
			opSnap.Timer.AverageTimeMs = float64(total) / float64(count)
		}
		op.mu.Lock()
		for kind, n := range op.byKind {
			opSnap.ByKind[kind] = n
		}
		op.mu.Unlock()
		snap.Operations[name] = opSnap
	}

	return snap
}

// Healthy reports whether every recorded dependency is healthy
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, healthy := range m.health {
		if !healthy {
			return false
		}
	}
	return true
}

func (m *Metrics) cell(cells map[string]*int64, name string) *int64 {
	m.mu.RLock()
	c, ok := cells[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = cells[name]; !ok {
		var v int64
		c = &v
		cells[name] = c
	}
	return c
}
