package triage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// MemoryRunLog keeps runs and step results in process memory.
type MemoryRunLog struct {
	mu    sync.Mutex
	runs  map[string]domain.WorkflowRun
	steps map[string]map[string]json.RawMessage
	now   func() time.Time
}

// NewMemoryRunLog builds an empty log.
func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{
		runs:  make(map[string]domain.WorkflowRun),
		steps: make(map[string]map[string]json.RawMessage),
		now:   time.Now,
	}
}

func (m *MemoryRunLog) Begin(_ context.Context, run domain.WorkflowRun) (*domain.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.runs[run.ID]; ok {
		return &stored, nil
	}
	now := m.now()
	run.Status = domain.RunStatusRunning
	run.StartedAt, run.UpdatedAt = now, now
	m.runs[run.ID] = run
	return &run, nil
}

func (m *MemoryRunLog) Finish(_ context.Context, id string, status domain.RunStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return errRunNotFound
	}
	run.Status, run.Reason, run.UpdatedAt = status, reason, m.now()
	m.runs[id] = run
	return nil
}

// ListStale returns RUNNING runs untouched since idleSince, oldest first.
func (m *MemoryRunLog) ListStale(_ context.Context, idleSince time.Time, limit int) ([]domain.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkflowRun
	for _, run := range m.runs {
		if run.Status == domain.RunStatusRunning && run.UpdatedAt.Before(idleSince) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRunLog) LoadStep(_ context.Context, runID, step string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.steps[runID][step]
	return raw, ok, nil
}

// SaveStep keeps the first result saved for a step.
func (m *MemoryRunLog) SaveStep(_ context.Context, runID, step string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[runID] == nil {
		m.steps[runID] = make(map[string]json.RawMessage)
	}
	if _, exists := m.steps[runID][step]; !exists {
		m.steps[runID][step] = append(json.RawMessage(nil), result...)
	}
	if run, ok := m.runs[runID]; ok {
		run.UpdatedAt = m.now()
		m.runs[runID] = run
	}
	return nil
}

// Run returns a copy of the stored run header.
func (m *MemoryRunLog) Run(id string) (domain.WorkflowRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	return run, ok
}
