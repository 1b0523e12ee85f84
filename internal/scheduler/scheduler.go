// Package scheduler is the heap-based priority-queue scheduler from
// spec.md §4.6. Grounded on the teacher's internal/poller.SchedulerImpl:
// same container/heap.Interface shape (HeapItem deadline-ordered,
// ScheduledMonitor state kept in a side map, not the heap itself), same
// tick-dequeue-dispatch loop, same heapMu-guarded reschedule. Adapted
// from its plugin-batch/liveness-phase design (irisett has no separate
// liveness probe) to a single global concurrency semaphore plus
// randomized deferral backpressure when that semaphore is exhausted, and
// to a run callback so this package stays independent of the Check
// Outcome Pipeline it drives.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/irisett-go/irisett/internal/activemonitor"
)

// heapItem is a deadline-ordered entry; all other state lives in the
// Active Monitor Registry, not here, so rescheduling never copies it.
type heapItem struct {
	instanceID int64
	deadline   time.Time
	index      int
}

type priorityQueue []*heapItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].deadline.Before(pq[j].deadline) }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index, pq[j].index = i, j }
func (pq *priorityQueue) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// RunFunc executes one check cycle for instanceID. It must itself honor
// activemonitor's single-in-flight guarantee (TryAcquire/Release) —
// the scheduler only decides *when* to call it, not whether a run is
// already in progress.
type RunFunc func(ctx context.Context, instanceID int64)

// Scheduler dispatches due monitor instances to RunFunc, capped at
// maxConcurrentJobs simultaneous runs, with a failsafe full rescan in
// case a heap entry is ever lost.
type Scheduler struct {
	registry *activemonitor.Registry
	run      RunFunc
	logger   *slog.Logger

	tickInterval     time.Duration
	failsafeInterval time.Duration
	maxConcurrent    int
	defaultInterval  time.Duration

	mu   sync.Mutex
	heap priorityQueue
	pos  map[int64]*heapItem

	sem chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

type Config struct {
	TickInterval      time.Duration
	FailsafeInterval  time.Duration
	MaxConcurrentJobs int
	// DefaultInterval is used only as the rescheduling fallback when the
	// run callback panics; normal rescheduling is the callback's own job
	// (spec.md §4.6: the dispatcher's only unconditional duty is
	// decrementing the in-flight count, not re-arming the next tick).
	DefaultInterval time.Duration
}

func New(registry *activemonitor.Registry, run RunFunc, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FailsafeInterval <= 0 {
		cfg.FailsafeInterval = 600 * time.Second
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 200
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 180 * time.Second
	}
	return &Scheduler{
		registry:         registry,
		run:              run,
		logger:           logger.With("component", "scheduler"),
		tickInterval:     cfg.TickInterval,
		failsafeInterval: cfg.FailsafeInterval,
		maxConcurrent:    cfg.MaxConcurrentJobs,
		defaultInterval:  cfg.DefaultInterval,
		heap:             make(priorityQueue, 0),
		pos:              make(map[int64]*heapItem),
		sem:              make(chan struct{}, cfg.MaxConcurrentJobs),
		stop:             make(chan struct{}),
	}
}

// LoadAll seeds the heap with every instance currently in the registry,
// due immediately. Call once at startup after activemonitor.Registry.Load.
func (s *Scheduler) LoadAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.registry.All() {
		s.pushLocked(inst.Row.ID, time.Now())
	}
}

// Schedule enqueues instanceID to run at deadline, replacing any existing
// entry for it.
func (s *Scheduler) Schedule(instanceID int64, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.pos[instanceID]; ok {
		heap.Remove(&s.heap, item.index)
		delete(s.pos, instanceID)
	}
	s.pushLocked(instanceID, deadline)
}

func (s *Scheduler) pushLocked(instanceID int64, deadline time.Time) {
	item := &heapItem{instanceID: instanceID, deadline: deadline}
	heap.Push(&s.heap, item)
	s.pos[instanceID] = item
}

// Run drives the scheduler's tick/failsafe loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	failsafe := time.NewTicker(s.failsafeInterval)
	defer failsafe.Stop()

	s.logger.Info("scheduler started", "tick_interval", s.tickInterval, "max_concurrent_jobs", s.maxConcurrent)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			s.wg.Wait()
			return
		case <-s.stop:
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-failsafe.C:
			s.logger.Debug("failsafe rescan")
			s.rescan()
		}
	}
}

// Stop signals Run to return after draining in-flight dispatches.
func (s *Scheduler) Stop() { close(s.stop) }

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due := s.dequeueDue(now)
	for _, instanceID := range due {
		s.dispatch(ctx, instanceID)
	}
}

func (s *Scheduler) dequeueDue(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []int64
	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		item := heap.Pop(&s.heap).(*heapItem)
		delete(s.pos, item.instanceID)
		due = append(due, item.instanceID)
	}
	return due
}

// dispatch tries to acquire a concurrency slot and run instanceID. If the
// global cap is exhausted it defers the instance by a random [10,30]s
// interval rather than blocking, per spec.md §4.6's backpressure rule.
func (s *Scheduler) dispatch(ctx context.Context, instanceID int64) {
	inst := s.registry.Get(instanceID)
	if inst == nil {
		return // stale heap entry; instance was deleted
	}
	if !inst.ChecksEnabled() {
		s.Schedule(instanceID, time.Now().Add(inst.GetInterval()))
		return
	}

	select {
	case s.sem <- struct{}{}:
	default:
		deferFor := time.Duration(10+rand.Intn(21)) * time.Second
		s.logger.Debug("deferring instance under concurrency backpressure", "instance_id", instanceID, "defer", deferFor)
		s.Schedule(instanceID, time.Now().Add(deferFor))
		return
	}

	if !inst.TryAcquire() {
		<-s.sem
		// already running (or deleted); the run in progress will
		// reschedule this instance when it completes.
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		// Normal rescheduling is RunFunc's own job (it knows the
		// hysteresis-computed delay); this defer only covers the
		// "unhandled error from the pipeline" case in spec.md §4.6,
		// which re-arms at the default interval and swallows the panic
		// so one bad run never kills the scheduler loop.
		defer func() {
			deleted := inst.Release()
			if deleted {
				return // caller (pipeline/registry) purges deleted instances
			}
			if r := recover(); r != nil {
				s.logger.Error("run callback panicked; rescheduling at default interval",
					"instance_id", instanceID, "panic", r)
				s.Schedule(instanceID, time.Now().Add(s.defaultInterval))
			}
		}()
		s.run(ctx, instanceID)
	}()
}

// rescan re-enqueues any registry instance missing from the heap — the
// failsafe against a lost heap entry (e.g. a bug, or a race during a
// concurrent create/delete) ever silently stopping a monitor's polling.
func (s *Scheduler) rescan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.registry.All() {
		if _, ok := s.pos[inst.Row.ID]; !ok {
			s.pushLocked(inst.Row.ID, time.Now())
		}
	}
}
