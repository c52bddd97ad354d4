// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"container/heap"
	"time"
)

// Queue holds pending items ordered by due time, first in first out among
// items due at the same instant
type Queue struct {
	h   itemHeap
	seq uint64
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues a copy of it
func (q *Queue) Push(it Item) {
	q.seq++
	heap.Push(&q.h, entry{item: it, seq: q.seq})
}

// Peek returns the next item without removing it
func (q *Queue) Peek() (Item, bool) {
	if len(q.h) == 0 {
		return Item{}, false
	}
	return q.h[0].item, true
}

// PopDue removes and returns the next item if it is due at now
func (q *Queue) PopDue(now time.Time) (Item, bool) {
	if len(q.h) == 0 || q.h[0].item.Due.After(now) {
		return Item{}, false
	}
	return heap.Pop(&q.h).(entry).item, true
}

// Len returns the number of pending items
func (q *Queue) Len() int {
	return len(q.h)
}

// IsEmpty reports whether nothing is pending
func (q *Queue) IsEmpty() bool {
	return len(q.h) == 0
}

// Reset drops every pending item
func (q *Queue) Reset() {
	q.h = nil
}

type entry struct {
	item Item
	seq  uint64
}

type itemHeap []entry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Due.Equal(h[j].item.Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].item.Due.Before(h[j].item.Due)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
