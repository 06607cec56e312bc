// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler distributes packets of scheduled queues between
// workers and places worker goroutines on cores.
//
// Queues with Parallel synchronization are served by any worker at any
// time. Atomic queue is served by at most one worker at a time: the worker
// which got an event from it owns the queue until its next Schedule call.
// Ordered queues are served in parallel, but work passed to Release is
// executed in the order events were taken from the queue.
package scheduler

import (
	"runtime"
	"sync/atomic"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
)

// Event is a burst of packets taken from one queue by Schedule.
type Event struct {
	Queue *Queue
	Pkts  []*packet.Packet
	seq   uint64
}

// Scheduler serves a fixed set of scheduled queues.
type Scheduler struct {
	queues  []*Queue
	workers int32
}

// NewScheduler creates a scheduler for queues. Plain queues can't be
// scheduled.
func NewScheduler(queues []*Queue) (*Scheduler, error) {
	for _, q := range queues {
		if q.sync == Plain {
			return nil, common.WrapWithNFError(nil, "plain queue "+q.name+" can't be scheduled", common.CreateQueueErr)
		}
	}
	scheduler := new(Scheduler)
	scheduler.queues = append([]*Queue(nil), queues...)
	return scheduler, nil
}

// Queues returns scheduled queues.
func (scheduler *Scheduler) Queues() []*Queue {
	return scheduler.queues
}

// NewWorker registers a new consumer. Each dispatch goroutine should use
// its own Worker.
func (scheduler *Scheduler) NewWorker() *Worker {
	id := atomic.AddInt32(&scheduler.workers, 1) - 1
	common.LogDebug(common.Initialization, "Registered scheduler worker", id)
	return &Worker{scheduler: scheduler, id: id}
}

// Worker is a scheduler consumer. It is not safe for concurrent use.
type Worker struct {
	scheduler *Scheduler
	id        int32
	next      int
	held      *Queue
}

// Schedule takes up to len(pkts) packets from the next non empty queue
// which this worker is allowed to serve. Atomic queue taken by previous
// call is released first. Returns false if there is nothing to serve.
// Schedule never blocks.
func (w *Worker) Schedule(pkts []*packet.Packet) (Event, bool) {
	w.ReleaseAtomic()
	queues := w.scheduler.queues
	for i := range queues {
		idx := (w.next + i) % len(queues)
		q := queues[idx]
		if q.Len() == 0 {
			continue
		}
		var n int
		var seq uint64
		switch q.sync {
		case Atomic:
			if !q.tryAcquire(w.id) {
				continue
			}
			if n = q.Dequeue(pkts); n == 0 {
				q.releaseOwner(w.id)
				continue
			}
			w.held = q
		case Ordered:
			q.deqLock.Lock()
			n, seq = q.dequeueLocked(pkts)
			q.deqLock.Unlock()
		default:
			n = q.Dequeue(pkts)
		}
		if n == 0 {
			continue
		}
		w.next = (idx + 1) % len(queues)
		return Event{Queue: q, Pkts: pkts[:n], seq: seq}, true
	}
	return Event{}, false
}

// ReleaseAtomic gives up atomic queue held by the worker, if any.
func (w *Worker) ReleaseAtomic() {
	if w.held != nil {
		w.held.releaseOwner(w.id)
		w.held = nil
	}
}

// Release finishes processing of ev with done. For ordered queues done
// is called only after done of every earlier event of the same queue has
// returned. Every event of an ordered queue must be released exactly once.
func (w *Worker) Release(ev Event, done func([]*packet.Packet)) {
	q := ev.Queue
	if q == nil || q.sync != Ordered {
		done(ev.Pkts)
		return
	}
	for atomic.LoadUint64(&q.released) != ev.seq {
		runtime.Gosched()
	}
	done(ev.Pkts)
	atomic.AddUint64(&q.released, 1)
}
