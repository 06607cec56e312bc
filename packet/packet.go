// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet provides functionality for fast parsing of packets with
// known structure and for managing buffers packets are kept in.
// The following header types are supported:
//	* L2 Ethernet with optional single VLAN tag
//	* L3 IPv4 and IPv6
//	* L4 TCP and UDP
// At the moment IPv6 is supported without extension headers.
//
// Packet parsing
//
// Parse function walks headers once and remembers offsets of L3 and L4
// headers. Field accessors use these offsets and return nil if requested
// header is absent or frame is too short, so callers never read outside of
// the frame.
//
// Packet buffers
//
// Packets are allocated from Pool. Buffer has fixed capacity which is set
// at pool creation. Packet should be returned to its pool with Free
// after it is sent or dropped.
package packet

import (
	"encoding/binary"

	"github.com/intel-go/nff-classifier/types"
)

// Field offsets inside headers.
const (
	etherDstOff  = 0
	etherSrcOff  = types.EtherAddrLen
	etherTypeOff = 2 * types.EtherAddrLen

	ipv4ProtoOff = 9
	ipv4SrcOff   = 12
	ipv4DstOff   = 16
	ipv6ProtoOff = 6

	l4SrcPortOff = 0
	l4DstPortOff = 2
)

const noHeader = -1

// Packet is a frame together with parsed header offsets.
//
// Empty packet means that only raw bytes are set. Parse should be called
// before header accessors are used; accessors call it implicitly.
type Packet struct {
	buf  []byte
	data []byte

	// Port is index of port the packet was received from.
	Port int
	// RxQueue is receive queue of Port the packet was received from.
	RxQueue int

	l3        int
	l4        int
	etherType uint16
	l4Proto   uint8
	parsed    bool
	bad       bool

	pool *Pool
}

func newPacket(bufSize int, pool *Pool) *Packet {
	pkt := &Packet{
		buf:  make([]byte, bufSize),
		pool: pool,
	}
	pkt.reset()
	return pkt
}

func (pkt *Packet) reset() {
	pkt.data = pkt.buf[:0]
	pkt.Port = noHeader
	pkt.RxQueue = noHeader
	pkt.l3 = noHeader
	pkt.l4 = noHeader
	pkt.etherType = 0
	pkt.l4Proto = 0
	pkt.parsed = false
	pkt.bad = false
}

// GeneratePacketFromByte sets packet content to a copy of frame.
// Returns false if frame doesn't fit into packet buffer.
func (pkt *Packet) GeneratePacketFromByte(frame []byte) bool {
	if len(frame) > len(pkt.buf) {
		return false
	}
	pkt.data = pkt.buf[:len(frame)]
	copy(pkt.data, frame)
	pkt.parsed = false
	return true
}

// GetRawPacketBytes returns frame bytes. Slice is valid until the packet is freed.
func (pkt *Packet) GetRawPacketBytes() []byte {
	return pkt.data
}

// Len returns frame length in bytes.
func (pkt *Packet) Len() int {
	return len(pkt.data)
}

// Pool returns pool the packet belongs to.
func (pkt *Packet) Pool() *Pool {
	return pkt.pool
}

// Free returns packet to its pool.
func (pkt *Packet) Free() {
	if pkt.pool != nil {
		pkt.pool.put(pkt)
	}
}

// Parse walks L2, L3 and L4 headers. Frames with truncated or
// inconsistent L2/L3 headers are marked as errored.
func (pkt *Packet) Parse() {
	if pkt.parsed {
		return
	}
	pkt.parsed = true
	pkt.l3, pkt.l4 = noHeader, noHeader
	pkt.bad = false
	data := pkt.data
	if len(data) < types.EtherLen {
		pkt.bad = true
		return
	}
	off := types.EtherLen
	pkt.etherType = binary.BigEndian.Uint16(data[etherTypeOff:])
	if pkt.etherType == types.VLANNumber {
		if len(data) < off+types.VLANLen {
			pkt.bad = true
			return
		}
		pkt.etherType = binary.BigEndian.Uint16(data[off+2:])
		off += types.VLANLen
	}
	switch pkt.etherType {
	case types.IPV4Number:
		if len(data) < off+types.IPv4MinLen || data[off]>>4 != 4 {
			pkt.bad = true
			return
		}
		ihl := int(data[off]&0x0f) * 4
		if ihl < types.IPv4MinLen || len(data) < off+ihl {
			pkt.bad = true
			return
		}
		pkt.l3 = off
		pkt.l4Proto = data[off+ipv4ProtoOff]
		// Only first fragment carries L4 header.
		if binary.BigEndian.Uint16(data[off+6:])&0x1fff == 0 {
			pkt.l4 = off + ihl
		}
	case types.IPV6Number:
		if len(data) < off+types.IPv6Len || data[off]>>4 != 6 {
			pkt.bad = true
			return
		}
		pkt.l3 = off
		pkt.l4Proto = data[off+ipv6ProtoOff]
		pkt.l4 = off + types.IPv6Len
	default:
		return
	}
	if pkt.l4 != noHeader && pkt.l4 >= len(data) {
		pkt.l4 = noHeader
	}
}

// HasError reports whether frame headers are malformed.
func (pkt *Packet) HasError() bool {
	pkt.Parse()
	return pkt.bad
}

// EtherType returns EtherType after optional VLAN tag.
func (pkt *Packet) EtherType() uint16 {
	pkt.Parse()
	return pkt.etherType
}

// IsIPv4 reports whether frame carries IPv4 header.
func (pkt *Packet) IsIPv4() bool {
	pkt.Parse()
	return pkt.l3 != noHeader && pkt.etherType == types.IPV4Number
}

// L4Proto returns L4 protocol number or 0 if there is no L3 header.
func (pkt *Packet) L4Proto() uint8 {
	pkt.Parse()
	if pkt.l3 == noHeader {
		return 0
	}
	return pkt.l4Proto
}

// Field returns size bytes of frame at offset or nil if frame is too short.
func (pkt *Packet) Field(offset, size int) []byte {
	if offset < 0 || size <= 0 || offset+size > len(pkt.data) {
		return nil
	}
	return pkt.data[offset : offset+size]
}

// IPv4Field returns size bytes at offset inside IPv4 header, nil if packet
// is not IPv4.
func (pkt *Packet) IPv4Field(offset, size int) []byte {
	if !pkt.IsIPv4() {
		return nil
	}
	return pkt.Field(pkt.l3+offset, size)
}

// IPProtoField returns one byte field with L4 protocol of IPv4 or IPv6 header.
func (pkt *Packet) IPProtoField() []byte {
	pkt.Parse()
	switch {
	case pkt.l3 == noHeader:
		return nil
	case pkt.etherType == types.IPV4Number:
		return pkt.Field(pkt.l3+ipv4ProtoOff, 1)
	default:
		return pkt.Field(pkt.l3+ipv6ProtoOff, 1)
	}
}

// IPv4SrcField returns IPv4 source address bytes.
func (pkt *Packet) IPv4SrcField() []byte {
	return pkt.IPv4Field(ipv4SrcOff, types.IPv4AddrLen)
}

// IPv4DstField returns IPv4 destination address bytes.
func (pkt *Packet) IPv4DstField() []byte {
	return pkt.IPv4Field(ipv4DstOff, types.IPv4AddrLen)
}

// TCPField returns size bytes at offset inside TCP header, nil if packet
// is not TCP.
func (pkt *Packet) TCPField(offset, size int) []byte {
	pkt.Parse()
	if pkt.l4 == noHeader || pkt.l4Proto != types.TCPNumber {
		return nil
	}
	return pkt.Field(pkt.l4+offset, size)
}

// TCPSrcPortField returns TCP source port bytes.
func (pkt *Packet) TCPSrcPortField() []byte {
	return pkt.TCPField(l4SrcPortOff, 2)
}

// TCPDstPortField returns TCP destination port bytes.
func (pkt *Packet) TCPDstPortField() []byte {
	return pkt.TCPField(l4DstPortOff, 2)
}

// CopyTo allocates packet from pool and copies frame and metadata into it.
// Returns nil if pool is exhausted.
func (pkt *Packet) CopyTo(pool *Pool) *Packet {
	dup := pool.Alloc()
	if dup == nil {
		return nil
	}
	if !dup.GeneratePacketFromByte(pkt.data) {
		dup.Free()
		return nil
	}
	dup.Port = pkt.Port
	dup.RxQueue = pkt.RxQueue
	return dup
}
