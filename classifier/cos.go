// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"sync/atomic"

	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/pktio"
	"github.com/intel-go/nff-classifier/scheduler"
)

const defaultCoSName = "default"

// DropPolicy tells what happens to packet which can't be copied to CoS
// pool.
type DropPolicy int

// Drop policies.
const (
	// DropPool drops packet when CoS pool is exhausted.
	DropPool DropPolicy = iota
	// DropNever delivers original packet when CoS pool is exhausted.
	DropNever
)

func (d DropPolicy) String() string {
	if d == DropNever {
		return "never"
	}
	return "pool"
}

// CoSStats are counters of one CoS. Counters are updated atomically
// and can be read at any time.
type CoSStats struct {
	PktCount  uint64
	DropCount uint64
}

// CoS is a class of service: rule set bound to destination queue and
// buffer pool.
type CoS struct {
	Name       string
	PhysicalID int
	// SoftIndex is index of CoS inside its physical queue, -1 for
	// default CoS.
	SoftIndex  int
	Rules      []MatchRule
	Queue      *scheduler.Queue
	Pool       *packet.Pool
	DropPolicy DropPolicy

	stats CoSStats
}

// IsDefault reports whether CoS is a catch-all CoS of its physical queue.
func (cos *CoS) IsDefault() bool {
	return cos.SoftIndex < 0
}

// AddPkts increments packet counter.
func (cos *CoS) AddPkts(n int) {
	atomic.AddUint64(&cos.stats.PktCount, uint64(n))
}

// AddDrops increments drop counter.
func (cos *CoS) AddDrops(n int) {
	atomic.AddUint64(&cos.stats.DropCount, uint64(n))
}

// Stats returns current counters.
func (cos *CoS) Stats() CoSStats {
	return CoSStats{
		PktCount:  atomic.LoadUint64(&cos.stats.PktCount),
		DropCount: atomic.LoadUint64(&cos.stats.DropCount),
	}
}

// Admit moves packet into CoS pool. If pkt belongs to another pool it
// is copied and original is freed. Returns nil if packet is dropped, in
// this case pkt is still owned by caller.
func (cos *CoS) Admit(pkt *packet.Packet) *packet.Packet {
	if cos.Pool == nil || pkt.Pool() == cos.Pool {
		return pkt
	}
	dup := pkt.CopyTo(cos.Pool)
	if dup == nil {
		if cos.DropPolicy == DropNever {
			return pkt
		}
		return nil
	}
	pkt.Free()
	return dup
}

// PhysicalQueueStats are counters of one physical queue.
type PhysicalQueueStats struct {
	NormalQueueCount uint64
	DroppedPackets   uint64
}

// PhysicalQueue is an input queue of one port together with CoS
// attached to it. Global physical queue has Port == -1 and spans every
// port.
type PhysicalQueue struct {
	ID   int
	Name string
	Port int
	dev  pktio.Device

	// CoS are explicit classes in creation order.
	CoS     []*CoS
	Default *CoS

	stats PhysicalQueueStats
}

// IsGlobal reports whether queue spans all ports.
func (pq *PhysicalQueue) IsGlobal() bool {
	return pq.ID == GlobalQueueID
}

// PolicyCount returns number of explicit CoS.
func (pq *PhysicalQueue) PolicyCount() int {
	return len(pq.CoS)
}

// AddNormal increments counter of packets delivered to CoS queues.
func (pq *PhysicalQueue) AddNormal(n int) {
	atomic.AddUint64(&pq.stats.NormalQueueCount, uint64(n))
}

// AddDropped increments counter of packets dropped on this queue.
func (pq *PhysicalQueue) AddDropped(n int) {
	atomic.AddUint64(&pq.stats.DroppedPackets, uint64(n))
}

// Stats returns current counters.
func (pq *PhysicalQueue) Stats() PhysicalQueueStats {
	return PhysicalQueueStats{
		NormalQueueCount: atomic.LoadUint64(&pq.stats.NormalQueueCount),
		DroppedPackets:   atomic.LoadUint64(&pq.stats.DroppedPackets),
	}
}
