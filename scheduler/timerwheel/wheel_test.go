package timerwheel

import (
	"testing"
	"time"
)

func TestAdvanceFiresExpiredEntries(t *testing.T) {
	start := time.Unix(0, 0)
	w := New(10*time.Millisecond, 8, start)

	w.Add(TimerEntry{Deadline: start.Add(25 * time.Millisecond), Payload: "a"})
	w.Add(TimerEntry{Deadline: start.Add(55 * time.Millisecond), Payload: "b"})

	expired := w.Advance(start.Add(30 * time.Millisecond))
	if len(expired) != 1 || expired[0].Payload != "a" {
		t.Fatalf("expected entry a to expire, got %+v", expired)
	}

	expired = w.Advance(start.Add(60 * time.Millisecond))
	if len(expired) != 1 || expired[0].Payload != "b" {
		t.Fatalf("expected entry b to expire, got %+v", expired)
	}
}

func TestCancelRemovesEntry(t *testing.T) {
	start := time.Unix(0, 0)
	w := New(10*time.Millisecond, 8, start)

	el := w.Add(TimerEntry{Deadline: start.Add(20 * time.Millisecond), Payload: "x"})
	w.Cancel(el)

	expired := w.Advance(start.Add(50 * time.Millisecond))
	if len(expired) != 0 {
		t.Fatalf("expected no expired entries after cancel, got %+v", expired)
	}
}

func TestWheelWrapsAcrossRounds(t *testing.T) {
	start := time.Unix(0, 0)
	w := New(10*time.Millisecond, 4, start) // span = 40ms, so 90ms needs 2 rounds

	w.Add(TimerEntry{Deadline: start.Add(90 * time.Millisecond), Payload: "late"})

	expired := w.Advance(start.Add(85 * time.Millisecond))
	if len(expired) != 0 {
		t.Fatalf("expected no expiry before deadline, got %+v", expired)
	}
	expired = w.Advance(start.Add(95 * time.Millisecond))
	if len(expired) != 1 || expired[0].Payload != "late" {
		t.Fatalf("expected 'late' to expire, got %+v", expired)
	}
}
