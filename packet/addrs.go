// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"github.com/intel-go/nff-classifier/types"
)

// SrcMAC returns Ethernet source address.
func (pkt *Packet) SrcMAC() (mac types.MACAddress) {
	if len(pkt.data) >= types.EtherLen {
		copy(mac[:], pkt.data[etherSrcOff:])
	}
	return mac
}

// DstMAC returns Ethernet destination address.
func (pkt *Packet) DstMAC() (mac types.MACAddress) {
	if len(pkt.data) >= types.EtherLen {
		copy(mac[:], pkt.data[etherDstOff:])
	}
	return mac
}

// SetSrcMAC overwrites Ethernet source address.
func (pkt *Packet) SetSrcMAC(mac types.MACAddress) {
	if len(pkt.data) >= types.EtherLen {
		copy(pkt.data[etherSrcOff:], mac[:])
	}
}

// SetDstMAC overwrites Ethernet destination address.
func (pkt *Packet) SetDstMAC(mac types.MACAddress) {
	if len(pkt.data) >= types.EtherLen {
		copy(pkt.data[etherDstOff:], mac[:])
	}
}

// SwapAddrs swaps Ethernet source and destination addresses and, for IPv4
// packets, IPv4 source and destination addresses. Header checksum stays
// valid because swapping doesn't change the sum.
func (pkt *Packet) SwapAddrs() {
	if len(pkt.data) < types.EtherLen {
		return
	}
	src, dst := pkt.SrcMAC(), pkt.DstMAC()
	pkt.SetSrcMAC(dst)
	pkt.SetDstMAC(src)

	srcIP, dstIP := pkt.IPv4SrcField(), pkt.IPv4DstField()
	if srcIP == nil || dstIP == nil {
		return
	}
	var tmp [types.IPv4AddrLen]byte
	copy(tmp[:], srcIP)
	copy(srcIP, dstIP)
	copy(dstIP, tmp[:])
}

// SwapBurstAddrs applies SwapAddrs to every packet of burst.
func SwapBurstAddrs(pkts []*Packet) {
	for _, pkt := range pkts {
		pkt.SwapAddrs()
	}
}
