// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/golang-collections/go-datastructures/queue"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
)

// SyncType is synchronization class of a queue.
type SyncType int

// Queue synchronization classes. Plain queues are polled explicitly
// by their owner, others are served by Scheduler.
const (
	Plain SyncType = iota
	Parallel
	Atomic
	Ordered
)

func (s SyncType) String() string {
	switch s {
	case Plain:
		return "plain"
	case Parallel:
		return "parallel"
	case Atomic:
		return "atomic"
	case Ordered:
		return "ordered"
	}
	return "unknown"
}

const noOwner = -1

// Queue is a bounded packet queue with a synchronization class. Enqueue
// is safe for concurrent use. Dequeue is safe for concurrent use too,
// but Atomic and Ordered guarantees are provided only to consumers which
// use Scheduler.
type Queue struct {
	name  string
	sync  SyncType
	depth int64
	q     *queue.Queue

	// Context is an opaque value attached by queue creator.
	Context interface{}

	deqLock sync.Mutex
	// Atomic queue owner: worker id or noOwner.
	owner int32
	// Ordered queue sequence numbers.
	nextSeq  uint64
	released uint64
	disposed int32
}

// NewQueue creates a queue which holds at most depth packets.
func NewQueue(name string, st SyncType, depth int) (*Queue, error) {
	if depth <= 0 || st < Plain || st > Ordered {
		return nil, common.WrapWithNFError(nil, "bad parameters of queue "+name, common.CreateQueueErr)
	}
	common.LogDebug(common.Initialization, "Created", st, "queue", name, "with depth", depth)
	return &Queue{
		name:  name,
		sync:  st,
		depth: int64(depth),
		q:     queue.New(int64(depth)),
		owner: noOwner,
	}, nil
}

// Name returns queue name.
func (q *Queue) Name() string {
	return q.name
}

// SyncType returns queue synchronization class.
func (q *Queue) SyncType() SyncType {
	return q.sync
}

// Len returns current number of packets in queue.
func (q *Queue) Len() int {
	return int(q.q.Len())
}

// Enqueue puts packets into queue and returns number of accepted ones.
// Packets which are not accepted stay owned by caller. Limit is checked
// before insertion so concurrent producers can overshoot depth by at most
// one burst each.
func (q *Queue) Enqueue(pkts []*packet.Packet) int {
	if atomic.LoadInt32(&q.disposed) != 0 {
		return 0
	}
	n := len(pkts)
	if free := q.depth - q.q.Len(); free < int64(n) {
		if free <= 0 {
			return 0
		}
		n = int(free)
	}
	items := make([]interface{}, n)
	for i := 0; i < n; i++ {
		items[i] = pkts[i]
	}
	if err := q.q.Put(items...); err != nil {
		return 0
	}
	return n
}

// Dequeue moves up to len(pkts) packets into pkts without blocking and
// returns their number.
func (q *Queue) Dequeue(pkts []*packet.Packet) int {
	q.deqLock.Lock()
	n, _ := q.dequeueLocked(pkts)
	q.deqLock.Unlock()
	return n
}

// dequeueLocked must be called with deqLock held. Consumers serialize on
// deqLock, so queue.Get never blocks here.
func (q *Queue) dequeueLocked(pkts []*packet.Packet) (int, uint64) {
	if q.q.Empty() || len(pkts) == 0 {
		return 0, 0
	}
	items, err := q.q.Get(int64(len(pkts)))
	if err != nil {
		return 0, 0
	}
	for i, item := range items {
		pkts[i] = item.(*packet.Packet)
	}
	seq := q.nextSeq
	q.nextSeq++
	return len(items), seq
}

// Dispose frees packets left in queue and makes further Enqueue calls fail.
func (q *Queue) Dispose() {
	q.deqLock.Lock()
	defer q.deqLock.Unlock()
	if !atomic.CompareAndSwapInt32(&q.disposed, 0, 1) {
		return
	}
	for !q.q.Empty() {
		items, err := q.q.Get(q.q.Len())
		if err != nil {
			break
		}
		for _, item := range items {
			item.(*packet.Packet).Free()
		}
	}
	q.q.Dispose()
}

func (q *Queue) tryAcquire(worker int32) bool {
	return atomic.CompareAndSwapInt32(&q.owner, noOwner, worker)
}

func (q *Queue) releaseOwner(worker int32) {
	atomic.CompareAndSwapInt32(&q.owner, worker, noOwner)
}
