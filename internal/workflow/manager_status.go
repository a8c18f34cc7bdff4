package workflow

import (
	"kiln/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Concurrency int
	Sessions    int
	LastError   string
	QueueStats  queue.Stats
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:     m.running,
		Concurrency: m.cfg.Generation.Concurrency,
		Sessions:    len(m.sessions),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.QueueStats = m.queue.Stats()
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
