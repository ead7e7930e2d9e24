// Package scheduler provides the priority-tiered task scheduler that feeds
// cache fetches to the database layer.
package scheduler

import (
	"sync"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
	"go.uber.org/atomic"
)

// Priority tiers a task. High tasks never wait behind other tiers; low tasks
// run only when nothing else is pending.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Task is one unit of scheduled work.
type Task func()

// Scheduler drains three FIFO tiers cooperatively. Only one drain pass runs
// at a time, guarded by an atomic compare-and-swap. Each pass runs every
// queued high task, then at most one normal task, then one low task only if
// the high and normal tiers are both empty; a pass with work left over
// reschedules itself on a fresh goroutine instead of looping in place. The
// tie-break deliberately starves background work in favor of interactive
// queries.
type Scheduler struct {
	mu     sync.Mutex
	high   []Task
	normal []Task
	low    []Task

	draining atomic.Bool
	logger   *logging.ChanneledLogger
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *logging.ChanneledLogger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Enqueue submits a task at the given priority and starts a drain pass if
// none is running. High tasks jump every queue: the next pass runs all of
// them before touching the other tiers.
func (s *Scheduler) Enqueue(task Task, priority Priority) {
	s.mu.Lock()
	switch priority {
	case PriorityHigh:
		s.high = append(s.high, task)
	case PriorityNormal:
		s.normal = append(s.normal, task)
	default:
		s.low = append(s.low, task)
	}
	s.mu.Unlock()

	s.kick()
}

// Pending returns the total number of queued tasks across all tiers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high) + len(s.normal) + len(s.low)
}

// QueueLengths returns the per-tier queue depths for introspection.
func (s *Scheduler) QueueLengths() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"high":   len(s.high),
		"normal": len(s.normal),
		"low":    len(s.low),
	}
}

// kick starts a drain pass unless one is already running.
func (s *Scheduler) kick() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	go s.drainPass()
}

// drainPass runs one pass of the tie-break, then releases the guard and
// reschedules itself while work remains.
func (s *Scheduler) drainPass() {
	defer func() {
		s.draining.Store(false)
		if s.Pending() > 0 {
			s.kick()
		}
	}()

	for {
		task := s.popHigh()
		if task == nil {
			break
		}
		task()
	}

	if task := s.popNormal(); task != nil {
		task()
		return
	}

	if task := s.popLowIfStarved(); task != nil {
		task()
	}
}

func (s *Scheduler) popHigh() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.high) == 0 {
		return nil
	}
	task := s.high[0]
	s.high = s.high[1:]
	return task
}

func (s *Scheduler) popNormal() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.normal) == 0 {
		return nil
	}
	task := s.normal[0]
	s.normal = s.normal[1:]
	return task
}

// popLowIfStarved takes one low task only when the high and normal tiers are
// both empty, checked atomically with the pop.
func (s *Scheduler) popLowIfStarved() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.high) > 0 || len(s.normal) > 0 || len(s.low) == 0 {
		return nil
	}
	task := s.low[0]
	s.low = s.low[1:]
	return task
}
