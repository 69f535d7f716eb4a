package sim

import (
	"container/heap"
	"errors"
	"fmt"

	"latsim/pkg/model"
)

// ErrTimeTravel is an invariant violation: all future timestamps are
// "now + non-negative delay", so scheduling into the past means a bug.
var ErrTimeTravel = errors.New("event scheduled before current virtual time")

// eventHeap orders by (time, seq). The dedicated monotonic counter makes
// the heap's internal tie-breaking irrelevant: two events at the same
// virtual time always dispatch in schedule order, run after run.
type eventHeap []*model.Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*model.Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// Scheduler owns virtual time. Time advances only by popping the
// next-lowest-keyed event; nothing here blocks on the wall clock.
type Scheduler struct {
	events     eventHeap
	seq        uint64
	now        model.Time
	dispatched uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{events: make(eventHeap, 0, 64)}
}

// Schedule enqueues ev for dispatch no earlier than at. The sequence
// number is assigned here, at schedule time.
func (s *Scheduler) Schedule(ev *model.Event, at model.Time) error {
	if at < s.now {
		return fmt.Errorf("%w: at=%d now=%d kind=%s", ErrTimeTravel, at, s.now, ev.Kind)
	}
	s.seq++
	ev.Time = at
	ev.Seq = s.seq
	heap.Push(&s.events, ev)
	return nil
}

// Pop removes and returns the next event, advancing virtual time to its
// scheduled time. Returns nil when the queue is empty.
func (s *Scheduler) Pop() *model.Event {
	if len(s.events) == 0 {
		return nil
	}
	ev := heap.Pop(&s.events).(*model.Event)
	s.now = ev.Time
	s.dispatched++
	return ev
}

// Peek returns the next event without removing it.
func (s *Scheduler) Peek() *model.Event {
	if len(s.events) == 0 {
		return nil
	}
	return s.events[0]
}

func (s *Scheduler) Len() int { return len(s.events) }

// Now is the current virtual time: the time of the last dispatched event.
func (s *Scheduler) Now() model.Time { return s.now }

// Dispatched is the number of events popped so far.
func (s *Scheduler) Dispatched() uint64 { return s.dispatched }
