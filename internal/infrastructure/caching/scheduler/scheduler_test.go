package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/LearnStack/learnstack-go/internal/infrastructure/observability/logging"
)

// orderRecorder collects task execution order.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
	done  chan struct{} // closed when expected count reached
	want  int
}

func newOrderRecorder(want int) *orderRecorder {
	return &orderRecorder{done: make(chan struct{}), want: want}
}

func (r *orderRecorder) task(name string) Task {
	return func() {
		r.mu.Lock()
		r.order = append(r.order, name)
		if len(r.order) == r.want {
			close(r.done)
		}
		r.mu.Unlock()
	}
}

func (r *orderRecorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tasks did not all run, got %v", r.snapshot())
	}
	return r.snapshot()
}

func (r *orderRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestDrainOrderPrefersHighThenOneNormalThenLow(t *testing.T) {
	s := NewScheduler(logging.NewTestLogger())
	rec := newOrderRecorder(5)

	// Block the drain loop on a gate task so the remaining tasks queue up
	// behind it, then observe the order of the following passes.
	gate := make(chan struct{})
	blocked := make(chan struct{})
	s.Enqueue(func() {
		close(blocked)
		<-gate
	}, PriorityNormal)
	<-blocked

	s.Enqueue(rec.task("low-1"), PriorityLow)
	s.Enqueue(rec.task("normal-1"), PriorityNormal)
	s.Enqueue(rec.task("normal-2"), PriorityNormal)
	s.Enqueue(rec.task("high-1"), PriorityHigh)
	s.Enqueue(rec.task("high-2"), PriorityHigh)
	close(gate)

	order := rec.wait(t)

	// All high first (FIFO), then normals one per pass, low last once the
	// other tiers are empty.
	want := []string{"high-1", "high-2", "normal-1", "normal-2", "low-1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLowRunsOnlyWhenOtherTiersEmpty(t *testing.T) {
	s := NewScheduler(logging.NewTestLogger())
	rec := newOrderRecorder(3)

	gate := make(chan struct{})
	blocked := make(chan struct{})
	s.Enqueue(func() {
		close(blocked)
		<-gate
	}, PriorityNormal)
	<-blocked

	s.Enqueue(rec.task("low"), PriorityLow)
	s.Enqueue(rec.task("normal-a"), PriorityNormal)
	s.Enqueue(rec.task("normal-b"), PriorityNormal)
	close(gate)

	order := rec.wait(t)
	if order[len(order)-1] != "low" {
		t.Fatalf("low task must run last, got %v", order)
	}
}

func TestSingleDrainPassAtATime(t *testing.T) {
	s := NewScheduler(logging.NewTestLogger())

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	var wg sync.WaitGroup

	const tasks = 50
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		s.Enqueue(func() {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			wg.Done()
		}, PriorityNormal)
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Fatalf("observed %d concurrent tasks, drain must serialize to 1", maxRunning)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after drain, want 0", s.Pending())
	}
}

func TestPendingAndQueueLengths(t *testing.T) {
	s := NewScheduler(logging.NewTestLogger())

	gate := make(chan struct{})
	blocked := make(chan struct{})
	s.Enqueue(func() {
		close(blocked)
		<-gate
	}, PriorityNormal)
	<-blocked

	s.Enqueue(func() {}, PriorityHigh)
	s.Enqueue(func() {}, PriorityLow)
	s.Enqueue(func() {}, PriorityLow)

	lengths := s.QueueLengths()
	if lengths["high"] != 1 || lengths["low"] != 2 {
		t.Fatalf("queue lengths = %v", lengths)
	}
	if s.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", s.Pending())
	}
	close(gate)
}
