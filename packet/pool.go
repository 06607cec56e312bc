// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"github.com/intel-go/nff-classifier/common"
)

// Default pool parameters.
const (
	DefaultPoolSize = 8191
	DefaultBufSize  = 2048
)

// Pool is a fixed size set of packet buffers. Alloc and Free are
// safe for concurrent use.
type Pool struct {
	name    string
	size    int
	bufSize int
	free    chan *Packet
}

// NewPool creates a pool with number preallocated packets of bufSize bytes each.
func NewPool(name string, number int, bufSize int) (*Pool, error) {
	if number <= 0 || bufSize < 64 {
		return nil, common.WrapWithNFError(nil, "bad pool parameters for "+name, common.CreatePoolErr)
	}
	pool := &Pool{
		name:    name,
		size:    number,
		bufSize: bufSize,
		free:    make(chan *Packet, number),
	}
	for i := 0; i < number; i++ {
		pool.free <- newPacket(bufSize, pool)
	}
	common.LogDebug(common.Initialization, "Created pool", name, "with", number, "packets of", bufSize, "bytes")
	return pool, nil
}

// Name returns pool name.
func (pool *Pool) Name() string {
	return pool.name
}

// Size returns total number of packets in pool.
func (pool *Pool) Size() int {
	return pool.size
}

// BufSize returns packet buffer capacity.
func (pool *Pool) BufSize() int {
	return pool.bufSize
}

// Available returns number of free packets.
func (pool *Pool) Available() int {
	return len(pool.free)
}

// Alloc returns empty packet or nil if pool is exhausted.
func (pool *Pool) Alloc() *Packet {
	select {
	case pkt := <-pool.free:
		return pkt
	default:
		return nil
	}
}

// AllocBulk fills pkts with empty packets and returns number of allocated ones.
func (pool *Pool) AllocBulk(pkts []*Packet) int {
	for i := range pkts {
		if pkts[i] = pool.Alloc(); pkts[i] == nil {
			return i
		}
	}
	return len(pkts)
}

func (pool *Pool) put(pkt *Packet) {
	pkt.reset()
	select {
	case pool.free <- pkt:
	default:
		common.LogWarning(common.Debug, "Packet is freed to full pool", pool.name)
	}
}

// FreeBulk returns packets to their pools.
func FreeBulk(pkts []*Packet) {
	for _, pkt := range pkts {
		if pkt != nil {
			pkt.Free()
		}
	}
}

// ReportPoolsState logs usage of given pools.
func ReportPoolsState(pools []*Pool) {
	for _, pool := range pools {
		common.LogDebug(common.Debug, "Pool", pool.name, "has", pool.Available(), "free packets out of", pool.size)
	}
}
