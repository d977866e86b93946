// Package tasks is a deferred-action queue keyed by due time. It is polled
// once per control-loop iteration and is not safe for concurrent use: the
// loop goroutine owns it.
package tasks

import (
	"container/heap"
	"time"
)

// Action runs when its task comes due. now is the time passed to Poll.
type Action func(now time.Time)

type task struct {
	name string
	due  time.Time
	seq  uint64
	fn   Action
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue holds pending one-shot actions.
type Queue struct {
	h   taskHeap
	seq uint64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Schedule adds a one-shot action due at due. Actions with equal due times run
// in scheduling order.
func (q *Queue) Schedule(name string, due time.Time, fn Action) {
	q.seq++
	heap.Push(&q.h, &task{name: name, due: due, seq: q.seq, fn: fn})
}

// Poll runs every action due at or before now and returns how many ran.
// Actions scheduled by a running action are run in the same call if they
// are already due.
func (q *Queue) Poll(now time.Time) int {
	ran := 0
	for len(q.h) > 0 && !q.h[0].due.After(now) {
		t := heap.Pop(&q.h).(*task)
		t.fn(now)
		ran++
	}
	return ran
}

// Pending reports whether an action with name is queued.
func (q *Queue) Pending(name string) bool {
	for _, t := range q.h {
		if t.name == name {
			return true
		}
	}
	return false
}

// Cancel drops every queued action with name and returns how many were dropped.
func (q *Queue) Cancel(name string) int {
	kept := q.h[:0]
	dropped := 0
	for _, t := range q.h {
		if t.name == name {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = nil
	}
	q.h = kept
	heap.Init(&q.h)
	return dropped
}

// Clear drops every queued action.
func (q *Queue) Clear() {
	q.h = nil
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	return len(q.h)
}

