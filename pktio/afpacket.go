// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pktio

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

// AFPacketDevice is a Linux network interface opened through raw
// AF_PACKET socket. Kernel socket has a single receive queue, all transmit
// queues share the socket.
type AFPacketDevice struct {
	name    string
	index   int
	ifindex int
	mac     types.MACAddress
	pool    *packet.Pool
	opts    Options
	fd      int
	addr    unix.SockaddrLinklayer

	rxLock  sync.Mutex
	scratch []byte
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

// OpenAFPacket opens interface ifname. Interface index and MAC address are
// taken from netlink.
func OpenAFPacket(ifname string, index int, pool *packet.Pool, opts Options) (*AFPacketDevice, error) {
	opts = opts.withDefaults()
	opts.RxQueues = 1
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, common.WrapWithNFError(err, "can't find interface "+ifname, common.CreatePortErr)
	}
	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		common.LogWarning(common.Initialization, "Interface", ifname, "is down")
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, common.WrapWithNFError(err, "can't create AF_PACKET socket for "+ifname, common.BadSocket)
	}
	dev := &AFPacketDevice{
		name:    ifname,
		index:   index,
		ifindex: attrs.Index,
		mac:     types.NetHWAddressToMAC(attrs.HardwareAddr),
		pool:    pool,
		opts:    opts,
		fd:      fd,
		addr: unix.SockaddrLinklayer{
			Protocol: htons(unix.ETH_P_ALL),
			Ifindex:  attrs.Index,
		},
		scratch: make([]byte, pcapSnapLen),
	}
	if err := unix.Bind(fd, &dev.addr); err != nil {
		unix.Close(fd)
		return nil, common.WrapWithNFError(err, "can't bind AF_PACKET socket to "+ifname, common.BadSocket)
	}
	return dev, nil
}

func (dev *AFPacketDevice) Name() string                 { return dev.name }
func (dev *AFPacketDevice) Index() int                   { return dev.index }
func (dev *AFPacketDevice) MACAddress() types.MACAddress { return dev.mac }
func (dev *AFPacketDevice) RxQueues() int                { return 1 }
func (dev *AFPacketDevice) TxQueues() int                { return dev.opts.TxQueues }
func (dev *AFPacketDevice) PMRCapacity() int             { return dev.opts.PMRCapacity }

// Recv implements Device. Frames sent by the host itself are skipped.
func (dev *AFPacketDevice) Recv(queue int, pkts []*packet.Packet) int {
	if queue != 0 {
		return 0
	}
	dev.rxLock.Lock()
	defer dev.rxLock.Unlock()
	n := 0
	for n < len(pkts) {
		size, from, err := unix.Recvfrom(dev.fd, dev.scratch, unix.MSG_DONTWAIT)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				common.LogWarning(common.Debug, "Receiving from", dev.name, "failed:", err)
			}
			break
		}
		if ll, ok := from.(*unix.SockaddrLinklayer); ok && ll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		pkt := dev.pool.Alloc()
		if pkt == nil {
			common.LogDrop(common.Debug, "Pool", dev.pool.Name(), "is exhausted, frame of", dev.name, "is lost")
			break
		}
		if !pkt.GeneratePacketFromByte(dev.scratch[:size]) {
			pkt.Free()
			continue
		}
		pkt.Port = dev.index
		pkt.RxQueue = 0
		pkts[n] = pkt
		n++
	}
	return n
}

// Send implements Device. Transmission stops at first socket error.
func (dev *AFPacketDevice) Send(queue int, pkts []*packet.Packet) int {
	if !checkQueue(queue, dev.opts.TxQueues) {
		return 0
	}
	for i, pkt := range pkts {
		if err := unix.Sendto(dev.fd, pkt.GetRawPacketBytes(), unix.MSG_DONTWAIT, &dev.addr); err != nil {
			if err != unix.EAGAIN {
				common.LogWarning(common.Debug, "Sending to", dev.name, "failed:", err)
			}
			return i
		}
		pkt.Free()
	}
	return len(pkts)
}

// Close closes socket.
func (dev *AFPacketDevice) Close() error {
	if dev.fd < 0 {
		return nil
	}
	err := unix.Close(dev.fd)
	dev.fd = -1
	if err != nil {
		return common.WrapWithNFError(err, "closing "+dev.name+" failed", common.BadSocket)
	}
	return nil
}
