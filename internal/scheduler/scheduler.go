package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/session"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// Scheduler owns a set of Tasks and runs each on its own goroutine. It
// depends on store.Store for reads/writes and *session.Session for
// anything that needs to touch the physical transport, mirroring §5's
// "all writes go through the session's single send queue" rule.
type Scheduler struct {
	store   store.Store
	session *session.Session
	logger  *zap.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// New constructs an empty Scheduler; call Register for each automation
// before Start.
func New(st store.Store, sess *session.Session) *Scheduler {
	return &Scheduler{
		store:   st,
		session: sess,
		logger:  logging.With(zap.String("component", "scheduler")),
		tasks:   make(map[string]*Task),
	}
}

// Register adds a task. Calling Register after Start has no effect on
// already-running tasks; call before Start.
func (s *Scheduler) Register(t *Task) {
	t.logger = s.logger
	s.mu.Lock()
	s.tasks[t.Name] = t
	s.mu.Unlock()
}

// Start runs every registered task's loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		go t.Run(ctx)
	}
}

// Stop halts every registered task and waits for each to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
}

// Task looks up a registered task by name, for diagnostics/tests.
func (s *Scheduler) Task(name string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	return t, ok
}

// TaskCount reports how many automations are registered, for the
// operator TUI's status panel.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func auditf(ctx context.Context, st store.Store, now int64, category, format string, args ...any) {
	_ = st.AppendAuditLog(ctx, store.AuditLogEntry{
		TimestampMs: now,
		Category:    category,
		Message:     fmt.Sprintf(format, args...),
	})
}
