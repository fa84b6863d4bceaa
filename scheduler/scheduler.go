// Package scheduler implements spec §4.6's cooperative task scheduler:
// a worker-thread pool running active tasks, a suspended-task table
// keyed by wake condition, a hash-wheel timer, inter-task mailboxes,
// and commit-conflict retry with exponential backoff. It replaces the
// teacher's single-threaded, ticker-driven server.Scheduler (which
// mixed telnet/session concerns into the same type) while keeping its
// task bookkeeping shape — task/manager.go's Manager and task/task.go's
// Task are reused as-is; this package adds the concurrency and wake
// machinery spec.md's source ecosystem implements around them.
package scheduler

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moocore/scheduler/timerwheel"
	"moocore/storage"
	"moocore/task"
	"moocore/types"
)

// RunFunc executes one scheduling quantum of a task: run until it
// finishes, suspends with a wake condition, hits a commit conflict, or
// is killed. Supplied by the caller (the vm/eval integration layer) so
// this package stays free of a dependency on the bytecode VM.
type RunFunc func(ctx context.Context, t *task.Task) Outcome

// Outcome reports what a RunFunc invocation produced.
type Outcome struct {
	Done   bool          // task finished (normally or killed); remove from scheduler
	Wake   WakeCondition // how to resume, when not Done
	Result types.Result  // final result, when Done
	Retry  bool          // commit conflict: re-run from pre-execution snapshot
}

type suspendedTask struct {
	t    *task.Task
	wake WakeCondition
	elem *list.Element // set in the timer wheel when wake.Kind == WakeTime/WakeRetry
}

// Scheduler holds spec §4.6's `active`/`suspended` tables plus the
// timer wheel, mailboxes, and worker pool that drive them.
type Scheduler struct {
	mu sync.Mutex

	active    map[int64]*task.Task
	suspended map[int64]*suspendedTask
	wheel     *timerwheel.Wheel

	inputRequests  map[uuid.UUID]int64
	workerRequests map[uuid.UUID]int64
	dependencies   map[int64][]int64 // who waits on whom (WakeTask)

	immediateQueue []int64

	Mailboxes *Mailboxes
	pool      *workerPool
	run       RunFunc

	retryBase  time.Duration
	retryMax   int

	engine *storage.Engine

	logger zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config controls pool sizing and retry discipline.
type Config struct {
	Workers   int
	RetryBase time.Duration
	RetryMax  int
}

// DefaultConfig sizes the worker pool to GOMAXPROCS, matching spec
// §4.6's "thread_pool — a work-stealing pool sized to CPU count"; Go's
// runtime scheduler already work-steals goroutines across Ms, so a
// plain bounded goroutine pool gets the same property without a
// hand-rolled work-stealing deque.
func DefaultConfig() Config {
	return Config{Workers: 0, RetryBase: 10 * time.Millisecond, RetryMax: 8}
}

// New creates a Scheduler driving tasks via run, committing property
// and world-state writes through engine.
func New(run RunFunc, engine *storage.Engine, cfg Config) *Scheduler {
	s := &Scheduler{
		active:         make(map[int64]*task.Task),
		suspended:      make(map[int64]*suspendedTask),
		wheel:          timerwheel.New(10*time.Millisecond, 4096, time.Now()),
		inputRequests:  make(map[uuid.UUID]int64),
		workerRequests: make(map[uuid.UUID]int64),
		dependencies:   make(map[int64][]int64),
		Mailboxes:      NewMailboxes(),
		run:            run,
		retryBase:      cfg.RetryBase,
		retryMax:       cfg.RetryMax,
		engine:         engine,
		logger:         log.With().Str("component", "scheduler").Logger(),
		stop:           make(chan struct{}),
	}
	s.pool = newWorkerPool(cfg.Workers, s.execute)
	return s
}

// Start launches the worker pool and the wake-path goroutine.
func (s *Scheduler) Start() {
	s.pool.start()
	s.wg.Add(1)
	go s.wakeLoop()
}

// Stop drains in-flight work and stops the pool.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.pool.stop()
}

// Submit enqueues t onto the worker pool (spec §4.6 "active" table).
func (s *Scheduler) Submit(t *task.Task) {
	s.mu.Lock()
	s.active[t.ID] = t
	s.mu.Unlock()
	s.pool.submit(t)
}

// execute runs one task to completion/suspension/conflict via RunFunc,
// implementing the retry discipline of spec §4.6 "Retry discipline".
func (s *Scheduler) execute(t *task.Task) {
	attempt := 0
	for {
		outcome := s.run(context.Background(), t)

		if outcome.Retry {
			attempt++
			if attempt > s.retryMax {
				s.logger.Warn().Int64("task", t.ID).Msg("commit retry budget exhausted")
				s.finish(t, types.Err(types.E_QUOTA))
				return
			}
			backoff := s.retryBase * time.Duration(1<<uint(attempt))
			backoff += time.Duration(rand.Int63n(int64(s.retryBase)))
			select {
			case <-time.After(backoff):
			case <-s.stop:
				return
			}
			continue
		}

		if outcome.Done {
			s.finish(t, outcome.Result)
			return
		}

		s.suspend(t, outcome.Wake)
		return
	}
}

func (s *Scheduler) finish(t *task.Task, result types.Result) {
	t.Result = result
	if t.GetState() != task.TaskKilled {
		t.SetState(task.TaskCompleted)
	}
	s.mu.Lock()
	delete(s.active, t.ID)
	delete(s.suspended, t.ID)
	s.mu.Unlock()
	s.Mailboxes.Clear(t.ID)
	s.wakeDependents(t.ID)
}

func (s *Scheduler) suspend(t *task.Task, wake WakeCondition) {
	s.mu.Lock()
	delete(s.active, t.ID)
	st := &suspendedTask{t: t, wake: wake}
	s.suspended[t.ID] = st
	switch wake.Kind {
	case WakeInput:
		s.inputRequests[wake.Token] = t.ID
	case WakeWorker:
		s.workerRequests[wake.Token] = t.ID
	case WakeImmediate:
		s.immediateQueue = append(s.immediateQueue, t.ID)
	case WakeTime, WakeRetry:
		st.elem = s.wheel.Add(timerwheel.TimerEntry{Deadline: wake.Deadline, Payload: t.ID})
	}
	s.mu.Unlock()
}

// wakeDependents re-queues tasks whose WakeTask condition named id.
func (s *Scheduler) wakeDependents(id int64) {
	s.mu.Lock()
	waiters := s.dependencies[id]
	delete(s.dependencies, id)
	s.mu.Unlock()
	for _, w := range waiters {
		s.Resume(w, nil)
	}
}

// DeliverInput wakes the task waiting on token with Worker/Input event
// data, the "external event... target task is enqueued for immediate
// wake" path of spec §4.6.
func (s *Scheduler) DeliverInput(token uuid.UUID) {
	s.mu.Lock()
	id, ok := s.inputRequests[token]
	delete(s.inputRequests, token)
	s.mu.Unlock()
	if ok {
		s.Resume(id, nil)
	}
}

// DeliverWorkerReply wakes the task waiting on a worker request.
func (s *Scheduler) DeliverWorkerReply(token uuid.UUID) {
	s.mu.Lock()
	id, ok := s.workerRequests[token]
	delete(s.workerRequests, token)
	s.mu.Unlock()
	if ok {
		s.Resume(id, nil)
	}
}

// DeliverMessage enqueues msg for recipient and wakes it if it's
// suspended waiting on TaskMessage.
func (s *Scheduler) DeliverMessage(recipient int64, msg types.Value) {
	s.Mailboxes.Send(recipient, msg)
	s.mu.Lock()
	st, ok := s.suspended[recipient]
	s.mu.Unlock()
	if ok && st.wake.Kind == WakeTaskMessage {
		s.Resume(recipient, nil)
	}
}

// Resume moves a suspended task back onto the active worker pool.
func (s *Scheduler) Resume(id int64, value types.Value) bool {
	s.mu.Lock()
	st, ok := s.suspended[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.suspended, id)
	if st.elem != nil {
		s.wheel.Cancel(st.elem)
	}
	s.active[st.t.ID] = st.t
	s.mu.Unlock()

	if value != nil {
		st.t.WakeValue = value
	}
	st.t.SetState(task.TaskQueued)
	s.pool.submit(st.t)
	return true
}

// Kill marks a task killed; the next opcode poll inside RunFunc's VM
// loop observes the kill switch and unwinds try/finally before exiting
// (spec §5 "Cancellation").
func (s *Scheduler) Kill(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.active[id]; ok {
		t.Kill()
		return true
	}
	if st, ok := s.suspended[id]; ok {
		st.t.Kill()
		delete(s.suspended, id)
		if st.elem != nil {
			s.wheel.Cancel(st.elem)
		}
		return true
	}
	return false
}

// wakeLoop advances the timer wheel and drains the immediate-wake
// queue, the scheduler's two non-external wake paths (spec §4.6
// "Wake paths" 1 and the Immediate variant of 2).
func (s *Scheduler) wakeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.advanceTimers(now)
			s.drainImmediate()
		}
	}
}

func (s *Scheduler) advanceTimers(now time.Time) {
	s.mu.Lock()
	fired := s.wheel.Advance(now)
	s.mu.Unlock()
	for _, entry := range fired {
		s.Resume(entry.Payload.(int64), nil)
	}
}

func (s *Scheduler) drainImmediate() {
	s.mu.Lock()
	queue := s.immediateQueue
	s.immediateQueue = nil
	s.mu.Unlock()
	for _, id := range queue {
		s.Resume(id, nil)
	}
}

// AddDependency registers that waiter should wake when target finishes
// (WakeTask).
func (s *Scheduler) AddDependency(target, waiter int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependencies[target] = append(s.dependencies[target], waiter)
}
