package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// WakeKind enumerates spec §4.6's wake condition variants.
type WakeKind int

const (
	WakeNever WakeKind = iota
	WakeTime
	WakeInput
	WakeTask
	WakeImmediate
	WakeWorker
	WakeGCComplete
	WakeRetry
	WakeTaskMessage
)

func (k WakeKind) String() string {
	switch k {
	case WakeNever:
		return "Never"
	case WakeTime:
		return "Time"
	case WakeInput:
		return "Input"
	case WakeTask:
		return "Task"
	case WakeImmediate:
		return "Immediate"
	case WakeWorker:
		return "Worker"
	case WakeGCComplete:
		return "GCComplete"
	case WakeRetry:
		return "Retry"
	case WakeTaskMessage:
		return "TaskMessage"
	default:
		return "Unknown"
	}
}

// WakeCondition is the tagged union of spec §4.6 "Wake conditions":
// `Never | Time(Instant) | Input(Uuid) | Task(TaskId) | Immediate(Option<Var>)
// | Worker(Uuid) | GCComplete | Retry(Instant) | TaskMessage(deadline)`.
type WakeCondition struct {
	Kind     WakeKind
	Deadline time.Time   // Time, Retry, TaskMessage
	Token    uuid.UUID   // Input, Worker
	TaskID   int64       // Task
	Value    any         // Immediate's optional payload
}

func Never() WakeCondition                   { return WakeCondition{Kind: WakeNever} }
func At(t time.Time) WakeCondition           { return WakeCondition{Kind: WakeTime, Deadline: t} }
func OnInput(token uuid.UUID) WakeCondition  { return WakeCondition{Kind: WakeInput, Token: token} }
func OnTask(id int64) WakeCondition          { return WakeCondition{Kind: WakeTask, TaskID: id} }
func Immediate(v any) WakeCondition          { return WakeCondition{Kind: WakeImmediate, Value: v} }
func OnWorker(token uuid.UUID) WakeCondition { return WakeCondition{Kind: WakeWorker, Token: token} }
func GCComplete() WakeCondition              { return WakeCondition{Kind: WakeGCComplete} }
func RetryAt(t time.Time) WakeCondition      { return WakeCondition{Kind: WakeRetry, Deadline: t} }
func TaskMessageBy(deadline time.Time) WakeCondition {
	return WakeCondition{Kind: WakeTaskMessage, Deadline: deadline}
}
