// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/scheduler"
	"github.com/intel-go/nff-classifier/types"
)

// dstMACBase is the last byte of destination address of port 0 set by
// Config.DstChange.
const dstMACBase = 0x05

// idle gives up processor to other goroutines. Returns false if ctx is
// done.
func idle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		runtime.Gosched()
		return true
	}
}

// fillEthAddrs sets Ethernet addresses of packet which is sent to port.
func (s *System) fillEthAddrs(pkt *packet.Packet, port int) {
	if s.cfg.SrcChange {
		pkt.SetSrcMAC(s.ports[port].MACAddress())
	}
	if s.cfg.DstChange {
		pkt.SetDstMAC(types.LocalMACAddress(dstMACBase, port))
	}
}

// dropErrors frees packets with malformed headers and compacts the rest
// to the beginning of pkts.
func (s *System) dropErrors(pkts []*packet.Packet) []*packet.Packet {
	good := pkts[:0]
	for _, pkt := range pkts {
		if pkt.HasError() {
			atomic.AddUint64(&s.rxErrors, 1)
			common.LogDrop(common.Verbose, "Packet from port", pkt.Port, "has malformed headers")
			pkt.Free()
			continue
		}
		good = append(good, pkt)
	}
	return good
}

// send transmits pkts to port queue. Packets which weren't sent are
// freed. Returns number of sent packets.
func (s *System) send(port, queue int, pkts []*packet.Packet) int {
	if len(pkts) == 0 {
		return 0
	}
	sent := s.ports[port].Send(queue, pkts)
	if sent < len(pkts) {
		packet.FreeBulk(pkts[sent:])
	}
	return sent
}

// directWorker polls bound receive queues and forwards packets to
// destination ports without classification.
func (s *System) directWorker(ctx context.Context, b ThreadBinding, stats *WorkerStats) error {
	pkts := make([]*packet.Packet, s.cfg.BurstSize)
	for {
		received := false
		for _, pb := range b.Ports {
			if ctx.Err() != nil {
				return nil
			}
			n := s.ports[pb.RxPort].Recv(pb.RxQueue, pkts)
			if n == 0 {
				continue
			}
			received = true
			stats.add(&stats.Rx, n)
			burst := pkts[:n]
			if s.cfg.ErrorCheck {
				burst = s.dropErrors(burst)
				stats.add(&stats.Dropped, n-len(burst))
			}
			for _, pkt := range burst {
				s.fillEthAddrs(pkt, pb.TxPort)
			}
			sent := s.send(pb.TxPort, pb.TxQueue, burst)
			stats.add(&stats.Tx, sent)
			stats.add(&stats.Dropped, len(burst)-sent)
		}
		if !received && !idle(ctx) {
			return nil
		}
	}
}

// staged collects burst of one CoS before it is enqueued.
type staged struct {
	cos  *classifier.CoS
	pq   *classifier.PhysicalQueue
	pkts []*packet.Packet
}

// pump receives packets from every port queue, classifies them and puts
// them to CoS queues.
func (s *System) pump(ctx context.Context) error {
	pkts := make([]*packet.Packet, s.cfg.BurstSize)
	stages := map[*classifier.CoS]*staged{}
	var order []*staged
	for {
		received := false
		for port, dev := range s.ports {
			for q := 0; q < dev.RxQueues(); q++ {
				if ctx.Err() != nil {
					return nil
				}
				n := dev.Recv(q, pkts)
				if n == 0 {
					continue
				}
				received = true
				burst := pkts[:n]
				if s.cfg.ErrorCheck {
					burst = s.dropErrors(burst)
				}
				for _, pkt := range burst {
					cos, pq := s.engine.Classify(port, pkt)
					if cos == nil {
						atomic.AddUint64(&s.unclassified, 1)
						pkt.Free()
						continue
					}
					admitted := cos.Admit(pkt)
					if admitted == nil {
						cos.AddDrops(1)
						pq.AddDropped(1)
						common.LogDrop(common.Verbose, "Pool of", cos.Name, "is exhausted")
						pkt.Free()
						continue
					}
					st := stages[cos]
					if st == nil {
						st = &staged{cos: cos, pq: pq}
						stages[cos] = st
					}
					if len(st.pkts) == 0 {
						order = append(order, st)
					}
					st.pkts = append(st.pkts, admitted)
				}
				for _, st := range order {
					s.enqueue(st)
				}
				order = order[:0]
			}
		}
		if !received && !idle(ctx) {
			return nil
		}
	}
}

func (s *System) enqueue(st *staged) {
	n := st.cos.Queue.Enqueue(st.pkts)
	if n > 0 {
		st.pq.AddNormal(n)
	}
	if rest := len(st.pkts) - n; rest > 0 {
		packet.FreeBulk(st.pkts[n:])
		st.cos.AddDrops(rest)
		st.pq.AddDropped(rest)
	}
	for i := range st.pkts {
		st.pkts[i] = nil
	}
	st.pkts = st.pkts[:0]
}

// forward rewrites addresses of packets of one CoS and sends them to
// destination ports of their input ports.
func (s *System) forward(cos *classifier.CoS, pkts []*packet.Packet, txq []int, byPort [][]*packet.Packet) {
	cos.AddPkts(len(pkts))
	for _, pkt := range pkts {
		pkt.SwapAddrs()
		dst := FindDestPort(pkt.Port, len(s.ports))
		s.fillEthAddrs(pkt, dst)
		byPort[dst] = append(byPort[dst], pkt)
	}
	for port, out := range byPort {
		if len(out) == 0 {
			continue
		}
		if sent := s.send(port, txq[port], out); sent < len(out) {
			cos.AddDrops(len(out) - sent)
		}
		for i := range out {
			out[i] = nil
		}
		byPort[port] = out[:0]
	}
}

// plainWorker serves queue of one CoS.
func (s *System) plainWorker(ctx context.Context, cos *classifier.CoS, txq []int) error {
	pkts := make([]*packet.Packet, s.cfg.BurstSize)
	byPort := make([][]*packet.Packet, len(s.ports))
	for {
		if ctx.Err() != nil {
			return nil
		}
		n := cos.Queue.Dequeue(pkts)
		if n == 0 {
			if !idle(ctx) {
				return nil
			}
			continue
		}
		s.forward(cos, pkts[:n], txq, byPort)
	}
}

// scheduledWorker serves every explicit CoS queue through scheduler.
func (s *System) scheduledWorker(ctx context.Context, w *scheduler.Worker, txq []int) error {
	pkts := make([]*packet.Packet, s.cfg.BurstSize)
	byPort := make([][]*packet.Packet, len(s.ports))
	defer w.ReleaseAtomic()
	for {
		if ctx.Err() != nil {
			return nil
		}
		ev, ok := w.Schedule(pkts)
		if !ok {
			if !idle(ctx) {
				return nil
			}
			continue
		}
		cos := ev.Queue.Context.(*classifier.CoS)
		w.Release(ev, func(burst []*packet.Packet) {
			s.forward(cos, burst, txq, byPort)
		})
	}
}

// defaultDrain counts and drops packets of default CoS of pq.
func (s *System) defaultDrain(ctx context.Context, pq *classifier.PhysicalQueue) error {
	pkts := make([]*packet.Packet, s.cfg.BurstSize)
	cos := pq.Default
	for {
		if ctx.Err() != nil {
			return nil
		}
		n := cos.Queue.Dequeue(pkts)
		if n == 0 {
			if !idle(ctx) {
				return nil
			}
			continue
		}
		cos.AddPkts(n)
		pq.AddDropped(n)
		packet.FreeBulk(pkts[:n])
	}
}
