// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pktio

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/multierr"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

const pcapSnapLen = 65535

// PcapDevice receives frames from a pcap file and writes sent frames to
// another pcap file. Device has one receive queue. Sent frames are dropped
// if output file isn't given.
type PcapDevice struct {
	name  string
	index int
	mac   types.MACAddress
	pool  *packet.Pool
	opts  Options

	rxLock sync.Mutex
	in     *os.File
	reader *pcapgo.Reader
	eof    bool

	txLock sync.Mutex
	out    *os.File
	writer *pcapgo.Writer
}

// OpenPcap opens pcap device. Empty outFile means frames are not stored.
func OpenPcap(name, inFile, outFile string, index int, pool *packet.Pool, opts Options) (*PcapDevice, error) {
	opts = opts.withDefaults()
	opts.RxQueues = 1
	dev := &PcapDevice{
		name:  name,
		index: index,
		mac:   types.LocalMACAddress(macBase, index),
		pool:  pool,
		opts:  opts,
	}
	var err error
	if dev.in, err = os.Open(inFile); err != nil {
		return nil, common.WrapWithNFError(err, "can't open pcap file "+inFile, common.FileErr)
	}
	if dev.reader, err = pcapgo.NewReader(dev.in); err != nil {
		dev.in.Close()
		return nil, common.WrapWithNFError(err, "bad pcap file "+inFile, common.PcapReadFail)
	}
	if outFile != "" {
		if dev.out, err = os.Create(outFile); err != nil {
			dev.in.Close()
			return nil, common.WrapWithNFError(err, "can't create pcap file "+outFile, common.FileErr)
		}
		dev.writer = pcapgo.NewWriter(dev.out)
		if err = dev.writer.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
			dev.Close()
			return nil, common.WrapWithNFError(err, "can't write pcap header to "+outFile, common.PcapWriteFail)
		}
	}
	return dev, nil
}

func (dev *PcapDevice) Name() string                 { return dev.name }
func (dev *PcapDevice) Index() int                   { return dev.index }
func (dev *PcapDevice) MACAddress() types.MACAddress { return dev.mac }
func (dev *PcapDevice) RxQueues() int                { return 1 }
func (dev *PcapDevice) TxQueues() int                { return dev.opts.TxQueues }
func (dev *PcapDevice) PMRCapacity() int             { return dev.opts.PMRCapacity }

// Recv implements Device. After the end of input file it returns 0.
func (dev *PcapDevice) Recv(queue int, pkts []*packet.Packet) int {
	if queue != 0 {
		return 0
	}
	dev.rxLock.Lock()
	defer dev.rxLock.Unlock()
	if dev.eof {
		return 0
	}
	for i := range pkts {
		data, _, err := dev.reader.ReadPacketData()
		if err != nil {
			if err != io.EOF {
				common.LogWarning(common.Debug, "Reading", dev.name, "failed:", err)
			}
			dev.eof = true
			return i
		}
		pkt := dev.pool.Alloc()
		if pkt == nil {
			common.LogDrop(common.Debug, "Pool", dev.pool.Name(), "is exhausted, frame of", dev.name, "is lost")
			return i
		}
		if !pkt.GeneratePacketFromByte(data) {
			pkt.Free()
			common.LogDrop(common.Debug, "Frame of", len(data), "bytes doesn't fit packet buffer")
			return i
		}
		pkt.Port = dev.index
		pkt.RxQueue = 0
		pkts[i] = pkt
	}
	return len(pkts)
}

// Send implements Device.
func (dev *PcapDevice) Send(queue int, pkts []*packet.Packet) int {
	if !checkQueue(queue, dev.opts.TxQueues) {
		return 0
	}
	dev.txLock.Lock()
	defer dev.txLock.Unlock()
	now := time.Now()
	for i, pkt := range pkts {
		if dev.writer != nil {
			data := pkt.GetRawPacketBytes()
			ci := gopacket.CaptureInfo{Timestamp: now, CaptureLength: len(data), Length: len(data)}
			if err := dev.writer.WritePacket(ci, data); err != nil {
				common.LogWarning(common.Debug, "Writing", dev.name, "failed:", err)
				return i
			}
		}
		pkt.Free()
	}
	return len(pkts)
}

// Close closes pcap files.
func (dev *PcapDevice) Close() error {
	var err error
	if dev.in != nil {
		err = multierr.Append(err, dev.in.Close())
		dev.in = nil
	}
	dev.txLock.Lock()
	if dev.out != nil {
		err = multierr.Append(err, dev.out.Close())
		dev.out = nil
		dev.writer = nil
	}
	dev.txLock.Unlock()
	return err
}
