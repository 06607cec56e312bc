// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pktio provides packet devices used by dispatch: in-memory and
// loopback devices, pcap file devices and Linux AF_PACKET sockets. Every
// device exposes the same burst receive / burst send contract.
package pktio

import (
	"strings"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

// DefaultPMRCapacity is number of match rules one PMR set can hold on
// software devices.
const DefaultPMRCapacity = 16

// Device is a packet input/output interface.
//
// Recv fills pkts with received packets and returns their number. It
// never blocks. Received packets have Port and RxQueue set.
//
// Send transmits packets from the beginning of pkts and returns number
// of sent ones. Sent packets are consumed by device, the rest stay owned
// by caller.
type Device interface {
	Name() string
	Index() int
	MACAddress() types.MACAddress
	RxQueues() int
	TxQueues() int
	// PMRCapacity is maximum number of rules one PMR set can hold.
	PMRCapacity() int
	Recv(queue int, pkts []*packet.Packet) int
	Send(queue int, pkts []*packet.Packet) int
	Close() error
}

// Options are device parameters. Zero values are replaced by defaults.
type Options struct {
	RxQueues    int
	TxQueues    int
	PMRCapacity int
	// QueueDepth is depth of software rx queues of memory devices.
	QueueDepth int
}

func (o Options) withDefaults() Options {
	if o.RxQueues <= 0 {
		o.RxQueues = 1
	}
	if o.TxQueues <= 0 {
		o.TxQueues = 1
	}
	if o.PMRCapacity <= 0 {
		o.PMRCapacity = DefaultPMRCapacity
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 1024
	}
	return o
}

// Open creates device described by uri:
//	mem:<name>               memory device, frames are injected by caller
//	loop:<name>              memory device which receives what it sends
//	pcap:<in>[:<out>]        reads frames from pcap file in, writes to out
//	<ifname>                 Linux network interface through AF_PACKET
// index is the port number of device, pool is used for received packets.
func Open(uri string, index int, pool *packet.Pool, opts Options) (Device, error) {
	opts = opts.withDefaults()
	if uri == "" {
		return nil, common.WrapWithNFError(nil, "empty interface name", common.BadArgument)
	}
	kind, rest := "", uri
	if i := strings.IndexByte(uri, ':'); i >= 0 {
		kind, rest = uri[:i], uri[i+1:]
	}
	var dev Device
	var err error
	switch kind {
	case "mem":
		dev = NewMemDevice(rest, index, pool, opts, false)
	case "loop":
		dev = NewMemDevice(rest, index, pool, opts, true)
	case "pcap":
		parts := strings.SplitN(rest, ":", 2)
		out := ""
		if len(parts) == 2 {
			out = parts[1]
		}
		dev, err = OpenPcap(uri, parts[0], out, index, pool, opts)
	case "":
		dev, err = OpenAFPacket(uri, index, pool, opts)
	default:
		return nil, common.WrapWithNFError(nil, "unknown interface type "+kind, common.BadArgument)
	}
	if err != nil {
		return nil, err
	}
	common.LogDebug(common.Initialization, "Opened port", index, dev.Name(), "MAC", dev.MACAddress(),
		"rx queues", dev.RxQueues(), "tx queues", dev.TxQueues())
	return dev, nil
}

func checkQueue(queue, number int) bool {
	return queue >= 0 && queue < number
}
