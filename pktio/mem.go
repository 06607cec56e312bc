// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pktio

import (
	"sync"
	"sync/atomic"

	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

// macBase is last byte base of locally administered addresses of
// memory devices.
const macBase = 0x10

// MemDevice is a software device backed by channels. Frames are put to
// its receive queues with Inject. In loopback mode sent packets return
// to receive queue with the same index (modulo number of rx queues),
// otherwise their bytes are captured and can be read with Sent.
type MemDevice struct {
	name  string
	index int
	mac   types.MACAddress
	pool  *packet.Pool
	opts  Options
	loop  bool
	rx    []chan *packet.Packet

	mu      sync.Mutex
	sent    [][]byte
	capture int

	txPackets uint64
	rxDropped uint64
}

// NewMemDevice creates memory device. Captured transmitted frames are
// limited by opts.QueueDepth, after that only counter grows.
func NewMemDevice(name string, index int, pool *packet.Pool, opts Options, loop bool) *MemDevice {
	opts = opts.withDefaults()
	dev := &MemDevice{
		name:    name,
		index:   index,
		mac:     types.LocalMACAddress(macBase, index),
		pool:    pool,
		opts:    opts,
		loop:    loop,
		rx:      make([]chan *packet.Packet, opts.RxQueues),
		capture: opts.QueueDepth,
	}
	for i := range dev.rx {
		dev.rx[i] = make(chan *packet.Packet, opts.QueueDepth)
	}
	return dev
}

func (dev *MemDevice) Name() string                 { return dev.name }
func (dev *MemDevice) Index() int                   { return dev.index }
func (dev *MemDevice) MACAddress() types.MACAddress { return dev.mac }
func (dev *MemDevice) RxQueues() int                { return len(dev.rx) }
func (dev *MemDevice) TxQueues() int                { return dev.opts.TxQueues }
func (dev *MemDevice) PMRCapacity() int             { return dev.opts.PMRCapacity }

// Inject puts copies of frames into receive queue and returns number of
// accepted frames. Frames are rejected when pool or queue is exhausted.
func (dev *MemDevice) Inject(queue int, frames ...[]byte) int {
	if !checkQueue(queue, len(dev.rx)) {
		return 0
	}
	for i, frame := range frames {
		pkt := dev.pool.Alloc()
		if pkt == nil {
			return i
		}
		if !pkt.GeneratePacketFromByte(frame) || !dev.put(queue, pkt) {
			pkt.Free()
			return i
		}
	}
	return len(frames)
}

func (dev *MemDevice) put(queue int, pkt *packet.Packet) bool {
	select {
	case dev.rx[queue] <- pkt:
		return true
	default:
		atomic.AddUint64(&dev.rxDropped, 1)
		return false
	}
}

// Recv implements Device.
func (dev *MemDevice) Recv(queue int, pkts []*packet.Packet) int {
	if !checkQueue(queue, len(dev.rx)) {
		return 0
	}
	for i := range pkts {
		select {
		case pkt := <-dev.rx[queue]:
			pkt.Port = dev.index
			pkt.RxQueue = queue
			pkts[i] = pkt
		default:
			return i
		}
	}
	return len(pkts)
}

// Send implements Device.
func (dev *MemDevice) Send(queue int, pkts []*packet.Packet) int {
	if !checkQueue(queue, dev.opts.TxQueues) {
		return 0
	}
	if dev.loop {
		rxq := queue % len(dev.rx)
		for i, pkt := range pkts {
			if !dev.put(rxq, pkt) {
				atomic.AddUint64(&dev.txPackets, uint64(i))
				return i
			}
		}
		atomic.AddUint64(&dev.txPackets, uint64(len(pkts)))
		return len(pkts)
	}
	dev.mu.Lock()
	for _, pkt := range pkts {
		if len(dev.sent) < dev.capture {
			dev.sent = append(dev.sent, append([]byte(nil), pkt.GetRawPacketBytes()...))
		}
		pkt.Free()
	}
	dev.mu.Unlock()
	atomic.AddUint64(&dev.txPackets, uint64(len(pkts)))
	return len(pkts)
}

// Sent returns captured transmitted frames and forgets them.
func (dev *MemDevice) Sent() [][]byte {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	sent := dev.sent
	dev.sent = nil
	return sent
}

// TxPackets returns number of transmitted packets.
func (dev *MemDevice) TxPackets() uint64 {
	return atomic.LoadUint64(&dev.txPackets)
}

// RxDropped returns number of packets rejected by full receive queues.
func (dev *MemDevice) RxDropped() uint64 {
	return atomic.LoadUint64(&dev.rxDropped)
}

// Close frees packets left in receive queues.
func (dev *MemDevice) Close() error {
	for _, ch := range dev.rx {
	drain:
		for {
			select {
			case pkt := <-ch:
				pkt.Free()
			default:
				break drain
			}
		}
	}
	return nil
}
