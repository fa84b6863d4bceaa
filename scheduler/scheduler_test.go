package scheduler

import (
	"context"
	"testing"
	"time"

	"moocore/storage"
	"moocore/task"
	"moocore/types"
)

func waitForResult(t *testing.T, tk *task.Task, timeout time.Duration) types.Result {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tk.GetState() == task.TaskCompleted {
			return tk.Result
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %d did not complete within %s (state=%s)", tk.ID, timeout, tk.GetState())
	return types.Result{}
}

func TestSchedulerRunsTaskToCompletion(t *testing.T) {
	engine := storage.NewEngine()
	defer engine.Close()

	run := func(ctx context.Context, tk *task.Task) Outcome {
		return Outcome{Done: true, Result: types.Ok(types.NewInt(7))}
	}

	s := New(run, engine, Config{Workers: 2, RetryBase: time.Millisecond, RetryMax: 3})
	s.Start()
	defer s.Stop()

	tk := task.NewTask(1, types.ObjNothing, 1000, 1.0)
	tk.SetState(task.TaskQueued)
	s.Submit(tk)

	result := waitForResult(t, tk, time.Second)
	if result.Flow == types.FlowException {
		t.Fatalf("expected success, got error %v", result.Error)
	}
}

func TestSchedulerSuspendAndResume(t *testing.T) {
	engine := storage.NewEngine()
	defer engine.Close()

	calls := 0
	run := func(ctx context.Context, tk *task.Task) Outcome {
		calls++
		if calls == 1 {
			return Outcome{Wake: Immediate(nil)}
		}
		return Outcome{Done: true, Result: types.Ok(types.NewInt(1))}
	}

	s := New(run, engine, Config{Workers: 1, RetryBase: time.Millisecond, RetryMax: 3})
	s.Start()
	defer s.Stop()

	tk := task.NewTask(2, types.ObjNothing, 1000, 1.0)
	tk.SetState(task.TaskQueued)
	s.Submit(tk)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, suspended := s.suspended[2]
		s.mu.Unlock()
		if suspended {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if !s.Resume(2, nil) {
		t.Fatal("expected Resume to find the suspended task")
	}

	waitForResult(t, tk, time.Second)
}

func TestSchedulerRetriesOnConflict(t *testing.T) {
	engine := storage.NewEngine()
	defer engine.Close()

	attempts := 0
	run := func(ctx context.Context, tk *task.Task) Outcome {
		attempts++
		if attempts < 3 {
			return Outcome{Retry: true}
		}
		return Outcome{Done: true, Result: types.Ok(types.NewInt(int64(attempts)))}
	}

	s := New(run, engine, Config{Workers: 1, RetryBase: time.Millisecond, RetryMax: 5})
	s.Start()
	defer s.Stop()

	tk := task.NewTask(3, types.ObjNothing, 1000, 1.0)
	tk.SetState(task.TaskQueued)
	s.Submit(tk)

	waitForResult(t, tk, time.Second)
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
