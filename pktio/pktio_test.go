// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pktio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

func newPool(t *testing.T, n int) *packet.Pool {
	pool, err := packet.NewPool(t.Name(), n, packet.DefaultBufSize)
	require.NoError(t, err)
	return pool
}

func TestOpenBadURI(t *testing.T) {
	pool := newPool(t, 4)
	for _, uri := range []string{"", "tap:foo", "pcap:/nonexistent/file.pcap"} {
		_, err := Open(uri, 0, pool, Options{})
		assert.Error(t, err, uri)
	}
}

func TestMemDevice(t *testing.T) {
	assert := assert.New(t)
	pool := newPool(t, 8)
	dev, err := Open("mem:eth0", 2, pool, Options{RxQueues: 2, TxQueues: 3, QueueDepth: 4})
	require.NoError(t, err)
	mem := dev.(*MemDevice)
	assert.Equal("eth0", dev.Name())
	assert.Equal(types.LocalMACAddress(macBase, 2), dev.MACAddress())
	assert.Equal(2, dev.RxQueues())
	assert.Equal(3, dev.TxQueues())
	assert.Equal(DefaultPMRCapacity, dev.PMRCapacity())

	frame := packet.GenerateTestFrame(packet.TestFrame{Proto: layers.IPProtocolUDP})
	assert.Equal(5-1, mem.Inject(1, frame, frame, frame, frame, frame))
	assert.EqualValues(1, mem.RxDropped())
	assert.Equal(0, mem.Inject(2, frame))

	pkts := make([]*packet.Packet, 8)
	assert.Equal(0, dev.Recv(0, pkts))
	n := dev.Recv(1, pkts)
	require.Equal(t, 4, n)
	assert.Equal(2, pkts[0].Port)
	assert.Equal(1, pkts[0].RxQueue)

	assert.Equal(0, dev.Send(3, pkts[:n]))
	assert.Equal(n, dev.Send(2, pkts[:n]))
	sent := mem.Sent()
	require.Len(t, sent, n)
	assert.Equal(frame, sent[0])
	assert.Nil(mem.Sent())
	assert.EqualValues(n, mem.TxPackets())
	assert.Equal(8, pool.Available())
	assert.NoError(dev.Close())
}

func TestLoopDevice(t *testing.T) {
	pool := newPool(t, 4)
	dev, err := Open("loop:lo0", 0, pool, Options{})
	require.NoError(t, err)
	mem := dev.(*MemDevice)
	frame := packet.GenerateTestFrame(packet.TestFrame{Proto: layers.IPProtocolTCP})
	require.Equal(t, 1, mem.Inject(0, frame))

	pkts := make([]*packet.Packet, 4)
	require.Equal(t, 1, dev.Recv(0, pkts))
	require.Equal(t, 1, dev.Send(0, pkts[:1]))
	require.Equal(t, 1, dev.Recv(0, pkts))
	assert.Equal(t, frame, pkts[0].GetRawPacketBytes())
	assert.Equal(t, 3, pool.Available())
	require.NoError(t, dev.Close())
	pkts[0].Free()
	assert.Equal(t, 4, pool.Available())
}

func writePcap(t *testing.T, name string, frames ...[]byte) {
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet))
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
}

func readPcap(t *testing.T, name string) [][]byte {
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	var frames [][]byte
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		frames = append(frames, data)
	}
	return frames
}

func TestPcapDevice(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")
	udp := packet.GenerateTestFrame(packet.TestFrame{Proto: layers.IPProtocolUDP})
	tcp := packet.GenerateTestFrame(packet.TestFrame{Proto: layers.IPProtocolTCP})
	writePcap(t, in, udp, tcp, udp)

	pool := newPool(t, 8)
	dev, err := Open("pcap:"+in+":"+out, 1, pool, Options{RxQueues: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, dev.RxQueues())

	pkts := make([]*packet.Packet, 2)
	require.Equal(t, 2, dev.Recv(0, pkts))
	assert.Equal(t, 1, pkts[0].Port)
	require.Equal(t, 2, dev.Send(0, pkts))
	require.Equal(t, 1, dev.Recv(0, pkts))
	require.Equal(t, 1, dev.Send(0, pkts[:1]))
	assert.Equal(t, 0, dev.Recv(0, pkts))
	require.NoError(t, dev.Close())

	assert.Equal(t, [][]byte{udp, tcp, udp}, readPcap(t, out))
	assert.Equal(t, 8, pool.Available())
}

func TestPcapDeviceBadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(name, []byte("not a pcap file"), 0o644))
	_, err := Open("pcap:"+name, 0, newPool(t, 1), Options{})
	assert.Equal(t, common.PcapReadFail, common.GetNFErrorCode(err))
}
