package scheduler

import (
	"sync"
	"time"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

const recentRuns = 50

// Metrics holds in-process job metrics
type Metrics struct {
	mu       sync.RWMutex
	started  time.Time
	last     map[string]models.JobRun
	recent   []models.JobRun
	runs     map[string]int
	failures map[string]int
}

// MetricsSnapshot is the JSON view served on /metrics
type MetricsSnapshot struct {
	Uptime   string                   `json:"uptime"`
	LastRuns map[string]models.JobRun `json:"last_runs"`
	Runs     map[string]int           `json:"runs"`
	Failures map[string]int           `json:"unit_failures"`
}

// NewMetrics creates an empty metrics set
func NewMetrics() *Metrics {
	return &Metrics{
		started:  time.Now(),
		last:     make(map[string]models.JobRun),
		runs:     make(map[string]int),
		failures: make(map[string]int),
	}
}

func (m *Metrics) record(run models.JobRun) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last[run.Job] = run
	m.runs[run.Job]++
	m.failures[run.Job] += run.Failures

	m.recent = append(m.recent, run)
	if len(m.recent) > recentRuns {
		m.recent = m.recent[len(m.recent)-recentRuns:]
	}
}

// Recent returns runs that started at or after since, oldest first
func (m *Metrics) Recent(since time.Time) []models.JobRun {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.JobRun
	for _, run := range m.recent {
		if !run.StartedAt.Before(since) {
			out = append(out, run)
		}
	}
	return out
}

// Snapshot copies the current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Uptime:   time.Since(m.started).Round(time.Second).String(),
		LastRuns: make(map[string]models.JobRun, len(m.last)),
		Runs:     make(map[string]int, len(m.runs)),
		Failures: make(map[string]int, len(m.failures)),
	}
	for k, v := range m.last {
		snap.LastRuns[k] = v
	}
	for k, v := range m.runs {
		snap.Runs[k] = v
	}
	for k, v := range m.failures {
		snap.Failures[k] = v
	}
	return snap
}
