package scheduler

import (
	"sync"

	"moocore/types"
)

// Mailboxes implements spec §4.6's `task_message_queues`: a per-task
// FIFO deque of Vars, delivered in order per (sender, receiver) pair
// (spec §5 "Ordering guarantees").
type Mailboxes struct {
	mu    sync.Mutex
	boxes map[int64][]types.Value
}

// NewMailboxes creates an empty mailbox table.
func NewMailboxes() *Mailboxes {
	return &Mailboxes{boxes: make(map[int64][]types.Value)}
}

// Send appends msg to recipient's queue; called from task_message-
// sending builtins such as `task_send` (wired via eval/builtins).
func (m *Mailboxes) Send(recipient int64, msg types.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes[recipient] = append(m.boxes[recipient], msg)
}

// Receive pops the oldest message for taskID, or ok=false if its queue
// is empty (the caller should then suspend with WakeTaskMessage).
func (m *Mailboxes) Receive(taskID int64) (types.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.boxes[taskID]
	if len(q) == 0 {
		return nil, false
	}
	msg := q[0]
	m.boxes[taskID] = q[1:]
	return msg, true
}

// Pending reports whether taskID has at least one queued message,
// used to decide whether a TaskMessage-waiting task can wake early.
func (m *Mailboxes) Pending(taskID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes[taskID]) > 0
}

// Clear drops a task's mailbox, called when the task completes or is killed.
func (m *Mailboxes) Clear(taskID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, taskID)
}
